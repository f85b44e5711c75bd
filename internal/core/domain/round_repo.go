package domain

import (
	"context"
	"time"
)

// RoundRepository is the round store. UpdateRound is a conditional write:
// it succeeds only if the stored revision still equals round.Revision, in
// which case it bumps round.Revision. Otherwise it returns ErrStaleRound and
// leaves the store untouched.
type RoundRepository interface {
	AddRound(ctx context.Context, round *Round) error
	GetRound(ctx context.Context, id string) (*Round, error)
	UpdateRound(ctx context.Context, round *Round) error
	GetDueRounds(ctx context.Context, now time.Time) ([]string, error)
	Close()
}
