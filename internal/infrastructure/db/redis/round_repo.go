package redisdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
	"github.com/redis/go-redis/v9"
)

const (
	roundKeyPrefix = "round:"
	dueRoundsKey   = "rounds:due"

	revisionField = "revision"
	dataField     = "data"
)

type roundRepository struct {
	rdb *redis.Client
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}

	var rdb *redis.Client
	switch v := config[0].(type) {
	case *redis.Client:
		rdb = v
	case string:
		opts, err := redis.ParseURL(v)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	default:
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected url at 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &roundRepository{rdb}, nil
}

func (r *roundRepository) AddRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, 1)
	if err != nil {
		return err
	}

	key := roundKey(round.Id)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrRoundAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(ctx, pipe, rec)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return domain.ErrRoundAlreadyExists
		}
		return err
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	return getRound(ctx, r.rdb, id)
}

// UpdateRound watches the round key: if anyone writes it between the
// revision check and EXEC the transaction aborts and the round is stale.
func (r *roundRepository) UpdateRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, round.Revision+1)
	if err != nil {
		return err
	}

	key := roundKey(round.Id)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getRound(ctx, tx, round.Id)
		if err != nil {
			return err
		}
		if current.Revision != round.Revision {
			return domain.ErrStaleRound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(ctx, pipe, rec)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return domain.ErrStaleRound
		}
		return err
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetDueRounds(ctx context.Context, now time.Time) ([]string, error) {
	return r.rdb.ZRangeByScore(ctx, dueRoundsKey, &redis.ZRangeBy{
		Min: "1",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
}

func (r *roundRepository) Close() {
	// nolint
	r.rdb.Close()
}

func getRound(ctx context.Context, rdb redis.Cmdable, id string) (*domain.Round, error) {
	values, err := rdb.HMGet(ctx, roundKey(id), revisionField, dataField).Result()
	if err != nil {
		return nil, err
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return nil, domain.ErrRoundNotFound
	}

	rawRevision, _ := values[0].(string)
	revision, err := strconv.ParseUint(rawRevision, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupted revision of round %s: %w", id, err)
	}
	data, _ := values[1].(string)
	return record.Decode([]byte(data), revision)
}

func write(ctx context.Context, pipe redis.Pipeliner, rec *record.Round) {
	pipe.HSet(ctx, roundKey(rec.Id), revisionField, rec.Revision, dataField, rec.Data)
	if rec.DueAt > 0 {
		pipe.ZAdd(ctx, dueRoundsKey, redis.Z{Score: float64(rec.DueAt), Member: rec.Id})
	} else {
		pipe.ZRem(ctx, dueRoundsKey, rec.Id)
	}
}

func roundKey(id string) string {
	return roundKeyPrefix + id
}
