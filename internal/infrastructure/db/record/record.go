// Package record holds the storage layout shared by every round store: a few
// indexed columns next to the JSON encoded round.
package record

import (
	"encoding/json"
	"fmt"

	"github.com/lastword-games/roundd/internal/core/domain"
)

type Round struct {
	Id       string
	Status   int
	Revision uint64
	// DueAt is the unix time in milliseconds of the next pending transition,
	// 0 if there is none.
	DueAt int64
	Data  []byte
}

func FromDomain(round *domain.Round, revision uint64) (*Round, error) {
	data, err := json.Marshal(round)
	if err != nil {
		return nil, fmt.Errorf("failed to encode round %s: %w", round.Id, err)
	}
	return &Round{
		Id:       round.Id,
		Status:   int(round.Status),
		Revision: revision,
		DueAt:    DueAt(round),
		Data:     data,
	}, nil
}

func (r *Round) ToDomain() (*domain.Round, error) {
	return Decode(r.Data, r.Revision)
}

func Decode(data []byte, revision uint64) (*domain.Round, error) {
	round := &domain.Round{}
	if err := json.Unmarshal(data, round); err != nil {
		return nil, fmt.Errorf("corrupted round record: %w", err)
	}
	round.Revision = revision
	return round, nil
}

func DueAt(round *domain.Round) int64 {
	due := round.DueAt()
	if due.IsZero() {
		return 0
	}
	// the unix epoch itself is never a legit due time
	return max(due.UnixMilli(), 1)
}
