package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
)

const (
	insertRoundQuery = `
INSERT INTO round (id, status, revision, due_at, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	selectRoundQuery = `SELECT revision, data FROM round WHERE id = ?`

	updateRoundQuery = `
UPDATE round SET status = ?, revision = ?, due_at = ?, data = ?, updated_at = ?
WHERE id = ? AND revision = ?`

	selectDueRoundsQuery = `
SELECT id FROM round WHERE due_at > 0 AND due_at <= ? ORDER BY due_at`
)

type roundRepository struct {
	db *sql.DB
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected db at 0")
	}

	return &roundRepository{db}, nil
}

func (r *roundRepository) AddRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, 1)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	res, err := r.db.ExecContext(
		ctx, insertRoundQuery,
		rec.Id, rec.Status, int64(rec.Revision), rec.DueAt, rec.Data, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrRoundAlreadyExists
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	var (
		revision uint64
		data     []byte
	)
	if err := r.db.QueryRowContext(ctx, selectRoundQuery, id).Scan(&revision, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return record.Decode(data, revision)
}

func (r *roundRepository) UpdateRound(ctx context.Context, round *domain.Round) error {
	rec, err := record.FromDomain(round, round.Revision+1)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(
		ctx, updateRoundQuery,
		rec.Status, int64(rec.Revision), rec.DueAt, rec.Data, time.Now().Unix(),
		rec.Id, int64(round.Revision),
	)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetRound(ctx, round.Id); err != nil {
			return err
		}
		return domain.ErrStaleRound
	}

	round.Revision = rec.Revision
	return nil
}

func (r *roundRepository) GetDueRounds(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectDueRoundsQuery, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to select due rounds: %w", err)
	}
	// nolint
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}
