package postgres

import (
	"context"
	"fmt"
)

type CursorRepo struct {
	db *DB
}

func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

func (r *CursorRepo) LastScannedBlock(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var block int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(max(last_block), 0) FROM run_cursor`,
	).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("get run cursor: %w", err)
	}
	return block, nil
}

// AdvanceTo is monotonic: GREATEST keeps the cursor from ever moving
// backwards, so repeated or overlapping passes are safe.
func (r *CursorRepo) AdvanceTo(ctx context.Context, block int64) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_cursor (id, last_block) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET
			last_block = GREATEST(run_cursor.last_block, EXCLUDED.last_block),
			updated_at = now()
	`, block)
	if err != nil {
		return fmt.Errorf("advance run cursor: %w", err)
	}
	return nil
}
