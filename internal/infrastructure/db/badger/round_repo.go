package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
	"github.com/timshannon/badgerhold/v4"
)

const roundStoreDir = "rounds"

type roundRecord struct {
	Id       string
	Status   int
	Revision uint64
	DueAt    int64 `badgerhold:"index"`
	Data     []byte
}

type roundRepository struct {
	store *badgerhold.Store
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, roundStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round store: %s", err)
	}

	return &roundRepository{store}, nil
}

func (r *roundRepository) AddRound(_ context.Context, round *domain.Round) error {
	rec, err := toRecord(round, 1)
	if err != nil {
		return err
	}

	if err := r.store.Insert(round.Id, *rec); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrRoundAlreadyExists
		}
		return err
	}
	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetRound(_ context.Context, id string) (*domain.Round, error) {
	var rec roundRecord
	if err := r.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, err
	}
	return record.Decode(rec.Data, rec.Revision)
}

// UpdateRound compares and writes inside the same badger transaction.
// Concurrent writers of the same key make all but one commit fail with a
// conflict, which is reported as a stale round.
func (r *roundRepository) UpdateRound(_ context.Context, round *domain.Round) error {
	rec, err := toRecord(round, round.Revision+1)
	if err != nil {
		return err
	}

	err = r.store.Badger().Update(func(tx *badger.Txn) error {
		var current roundRecord
		if err := r.store.TxGet(tx, round.Id, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrRoundNotFound
			}
			return err
		}
		if current.Revision != round.Revision {
			return domain.ErrStaleRound
		}
		return r.store.TxUpdate(tx, round.Id, *rec)
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return domain.ErrStaleRound
		}
		return err
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetDueRounds(_ context.Context, now time.Time) ([]string, error) {
	query := badgerhold.Where("DueAt").Gt(int64(0)).
		And("DueAt").Le(now.UnixMilli()).
		SortBy("DueAt")

	var recs []roundRecord
	if err := r.store.Find(&recs, query); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Id)
	}
	return ids, nil
}

func (r *roundRepository) Close() {
	// nolint
	r.store.Close()
}

func toRecord(round *domain.Round, revision uint64) (*roundRecord, error) {
	rec, err := record.FromDomain(round, revision)
	if err != nil {
		return nil, err
	}
	return &roundRecord{
		Id:       rec.Id,
		Status:   rec.Status,
		Revision: rec.Revision,
		DueAt:    rec.DueAt,
		Data:     rec.Data,
	}, nil
}
