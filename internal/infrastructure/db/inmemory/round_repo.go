package inmemorydb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
)

type roundRepository struct {
	lock   *sync.RWMutex
	rounds map[string]*record.Round
}

func NewRoundRepository(_ ...interface{}) (domain.RoundRepository, error) {
	return &roundRepository{
		lock:   &sync.RWMutex{},
		rounds: make(map[string]*record.Round),
	}, nil
}

func (r *roundRepository) AddRound(_ context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, 1)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.rounds[round.Id]; ok {
		return domain.ErrRoundAlreadyExists
	}
	r.rounds[round.Id] = rec
	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetRound(_ context.Context, id string) (*domain.Round, error) {
	r.lock.RLock()
	rec, ok := r.rounds[id]
	r.lock.RUnlock()

	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	return rec.ToDomain()
}

func (r *roundRepository) UpdateRound(_ context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, round.Revision+1)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	current, ok := r.rounds[round.Id]
	if !ok {
		return domain.ErrRoundNotFound
	}
	if current.Revision != round.Revision {
		return domain.ErrStaleRound
	}
	r.rounds[round.Id] = rec
	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetDueRounds(_ context.Context, now time.Time) ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	limit := now.UnixMilli()
	due := make([]*record.Round, 0)
	for _, rec := range r.rounds {
		if rec.DueAt > 0 && rec.DueAt <= limit {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt < due[j].DueAt
	})

	ids := make([]string, 0, len(due))
	for _, rec := range due {
		ids = append(ids, rec.Id)
	}
	return ids, nil
}

func (r *roundRepository) Close() {}
