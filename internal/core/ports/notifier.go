package ports

import (
	"context"

	"github.com/lastword-games/roundd/internal/core/domain"
)

// Notifier fans round events out to subscribers. Delivery is best effort
// from the engine's point of view.
type Notifier interface {
	Publish(ctx context.Context, event domain.RoundEvent) error
	Close()
}
