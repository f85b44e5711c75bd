package pgdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
)

const (
	insertRoundQuery = `
INSERT INTO round (id, status, revision, due_at, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

	selectRoundQuery = `SELECT revision, data FROM round WHERE id = $1`

	updateRoundQuery = `
UPDATE round SET status = $1, revision = $2, due_at = $3, data = $4, updated_at = now()
WHERE id = $5 AND revision = $6`

	selectDueRoundsQuery = `
SELECT id FROM round WHERE due_at > 0 AND due_at <= $1 ORDER BY due_at`
)

type roundRepository struct {
	pool *pgxpool.Pool
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	pool, ok := config[0].(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected pool at 0")
	}

	return &roundRepository{pool}, nil
}

func (r *roundRepository) AddRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, 1)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(
		ctx, insertRoundQuery, rec.Id, rec.Status, int64(rec.Revision), rec.DueAt, rec.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoundAlreadyExists
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	var (
		revision int64
		data     []byte
	)
	if err := r.pool.QueryRow(ctx, selectRoundQuery, id).Scan(&revision, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return record.Decode(data, uint64(revision))
}

// UpdateRound relies on the row lock taken by UPDATE: a concurrent writer
// waits, then re-evaluates the revision predicate and matches no row.
func (r *roundRepository) UpdateRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, round.Revision+1)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(
		ctx, updateRoundQuery,
		rec.Status, int64(rec.Revision), rec.DueAt, rec.Data, rec.Id, int64(round.Revision),
	)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetRound(ctx, round.Id); err != nil {
			return err
		}
		return domain.ErrStaleRound
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetDueRounds(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, selectDueRoundsQuery, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to select due rounds: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to select due rounds: %w", err)
	}
	return ids, nil
}

func (r *roundRepository) Close() {
	r.pool.Close()
}
