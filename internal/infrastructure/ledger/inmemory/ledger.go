package inmemoryledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/lastword-games/roundd/internal/core/ports"
)

type credit struct {
	userId string
	amount uint64
}

// Ledger keeps balances in memory. Every idempotency key is applied at most
// once; replaying it with a different user or amount is refused.
type Ledger struct {
	lock     *sync.Mutex
	balances map[string]uint64
	credits  map[string]credit
	blocked  map[string]struct{}
}

func NewLedgerService() *Ledger {
	return &Ledger{
		lock:     &sync.Mutex{},
		balances: make(map[string]uint64),
		credits:  make(map[string]credit),
		blocked:  make(map[string]struct{}),
	}
}

func (l *Ledger) Credit(
	_ context.Context, userId string, amount uint64, idempotencyKey string,
) (bool, error) {
	if idempotencyKey == "" {
		return false, fmt.Errorf("%w: missing idempotency key", ports.ErrPermanentCredit)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	if c, ok := l.credits[idempotencyKey]; ok {
		if c.userId != userId || c.amount != amount {
			return false, fmt.Errorf(
				"%w: key %s already used for a different credit",
				ports.ErrPermanentCredit, idempotencyKey,
			)
		}
		return true, nil
	}
	if _, ok := l.blocked[userId]; ok {
		return false, fmt.Errorf("%w: account %s is blocked", ports.ErrPermanentCredit, userId)
	}

	l.credits[idempotencyKey] = credit{userId, amount}
	l.balances[userId] += amount
	return true, nil
}

func (l *Ledger) Balance(userId string) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.balances[userId]
}

// Applied returns the number of distinct credits applied so far.
func (l *Ledger) Applied() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.credits)
}

// Block makes every further credit to userId fail permanently.
func (l *Ledger) Block(userId string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.blocked[userId] = struct{}{}
}

func (l *Ledger) Close() {}
