package ports

import (
	"context"
	"errors"
)

// ErrPermanentCredit is wrapped by ledger implementations when a credit can
// never succeed, ie. the recipient is unknown or blocked. Any other error is
// considered transient and worth a retry.
var ErrPermanentCredit = errors.New("credit permanently refused")

type LedgerService interface {
	// Credit moves amount minor units to userId. It must return applied=true
	// both the first time a key is seen and on every replay of the same key.
	Credit(ctx context.Context, userId string, amount uint64, idempotencyKey string) (bool, error)
	Close()
}
