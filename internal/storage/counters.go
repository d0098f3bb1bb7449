package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"church-messaging/internal/messaging"
	"church-messaging/pkg/utils"
)

// CounterRepo stores one jsonb counter map per (church, audience).
//
// Every update locks the row (FOR UPDATE) so concurrent inbound messages for
// the same church serialize on it. The row is created lazily.
type CounterRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewCounterRepo(db *sql.DB) *CounterRepo {
	return &CounterRepo{db: db, clock: time.Now}
}

func (r *CounterRepo) UpdateCounter(ctx context.Context, churchID string, audience messaging.Audience, fn func(counts map[string]int) error) error {
	if churchID == "" {
		return errors.New("storage: church id required")
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		now := r.clock().UTC()

		const ensure = `
INSERT INTO admin_connect (church_id, audience, counts, updated_at)
VALUES ($1, $2, '{}'::jsonb, $3)
ON CONFLICT (church_id, audience) DO NOTHING
`
		if _, err := tx.ExecContext(ctx, ensure, churchID, string(audience), now); err != nil {
			return err
		}

		const lock = `
SELECT counts
FROM admin_connect
WHERE church_id = $1 AND audience = $2
FOR UPDATE
`
		var raw []byte
		if err := tx.QueryRowContext(ctx, lock, churchID, string(audience)).Scan(&raw); err != nil {
			return err
		}
		counts, err := decodeCounts(raw)
		if err != nil {
			return err
		}

		if err := fn(counts); err != nil {
			return err
		}

		b, err := json.Marshal(counts)
		if err != nil {
			return err
		}
		const update = `
UPDATE admin_connect
SET counts = $3::jsonb, updated_at = $4
WHERE church_id = $1 AND audience = $2
`
		_, err = tx.ExecContext(ctx, update, churchID, string(audience), string(b), now)
		return err
	})
}

func (r *CounterRepo) GetCounter(ctx context.Context, churchID string, audience messaging.Audience) (map[string]int, error) {
	const q = `
SELECT counts
FROM admin_connect
WHERE church_id = $1 AND audience = $2
`
	var raw []byte
	if err := r.db.QueryRowContext(ctx, q, churchID, string(audience)).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]int{}, nil
		}
		return nil, err
	}
	return decodeCounts(raw)
}

func decodeCounts(raw []byte) (map[string]int, error) {
	counts := map[string]int{}
	if len(raw) == 0 {
		return counts, nil
	}
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("storage: decode counter map: %w", err)
	}
	return counts, nil
}
