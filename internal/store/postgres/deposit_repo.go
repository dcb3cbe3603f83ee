package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattg1981/arb-one-migration/internal/domain/model"
)

const depositColumns = `id, source_tx_hash, source_address, handle, raw_amount::text, display_amount::text,
	source_block, source_time, discovered_at, settlement_tx_hash, settled_at, acknowledged_at, notified_at`

type DepositRepo struct {
	db *DB
}

func NewDepositRepo(db *DB) *DepositRepo {
	return &DepositRepo{db: db}
}

func (r *DepositRepo) InsertIfAbsent(ctx context.Context, d *model.Deposit) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deposits (source_tx_hash, source_address, handle, raw_amount, display_amount,
			source_block, source_time, discovered_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
		ON CONFLICT (source_tx_hash) DO NOTHING
	`,
		model.NormalizeHex(d.SourceTxHash),
		model.NormalizeHex(d.SourceAddress),
		d.Handle,
		d.RawAmount.String(),
		d.DisplayAmount.String(),
		d.SourceBlock,
		d.SourceTime,
		d.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert deposit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert deposit rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *DepositRepo) FindUnresolved(ctx context.Context) ([]model.Deposit, error) {
	return r.query(ctx, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE handle IS NULL AND settled_at IS NULL
		ORDER BY id
	`)
}

func (r *DepositRepo) AssignHandle(ctx context.Context, sourceAddress, handle string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE deposits
		SET handle = $1
		WHERE lower(source_address) = $2 AND handle IS NULL AND settled_at IS NULL
	`, handle, model.NormalizeHex(sourceAddress))
	if err != nil {
		return 0, fmt.Errorf("assign handle: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("assign handle rows affected: %w", err)
	}
	return rows, nil
}

// FindSettlementCandidates selects the earliest unsettled resolved deposit
// per address, at or above the minimum amount, skipping any address that has
// already been settled once.
func (r *DepositRepo) FindSettlementCandidates(ctx context.Context, minAmount decimal.Decimal) ([]model.Deposit, error) {
	return r.query(ctx, `
		SELECT `+depositColumns+`
		FROM (
			SELECT DISTINCT ON (source_address) `+depositColumns+`
			FROM deposits
			WHERE settled_at IS NULL
			  AND handle IS NOT NULL
			  AND display_amount >= $1::numeric
			  AND source_address NOT IN (
				SELECT source_address FROM deposits WHERE settled_at IS NOT NULL
			  )
			ORDER BY source_address, discovered_at, id
		) c
		ORDER BY discovered_at, id
	`, minAmount.String())
}

func (r *DepositRepo) MarkSettled(ctx context.Context, txHashes []string, settlementTxHash string, settledAt time.Time) error {
	if len(txHashes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark settled: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range txHashes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE deposits
			SET settlement_tx_hash = $1, settled_at = $2
			WHERE source_tx_hash = $3 AND settled_at IS NULL
		`, model.NormalizeHex(settlementTxHash), settledAt, model.NormalizeHex(h)); err != nil {
			return fmt.Errorf("mark settled %s: %w", h, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark settled: %w", err)
	}
	return nil
}

func (r *DepositRepo) FindPendingAcknowledgments(ctx context.Context) ([]model.Deposit, error) {
	return r.query(ctx, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE handle IS NOT NULL AND acknowledged_at IS NULL
		ORDER BY id
	`)
}

func (r *DepositRepo) MarkAcknowledged(ctx context.Context, txHash string, at time.Time) error {
	return r.stamp(ctx, "acknowledged_at", txHash, at)
}

func (r *DepositRepo) FindPendingNotifications(ctx context.Context) ([]model.Deposit, error) {
	return r.query(ctx, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE settled_at IS NOT NULL AND handle IS NOT NULL AND notified_at IS NULL
		ORDER BY id
	`)
}

func (r *DepositRepo) MarkNotified(ctx context.Context, txHash string, at time.Time) error {
	return r.stamp(ctx, "notified_at", txHash, at)
}

func (r *DepositRepo) FindLotteryEntrants(ctx context.Context, maxAmount decimal.Decimal) ([]model.LotteryEntrant, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, min(source_address)
		FROM deposits
		WHERE handle IS NOT NULL AND display_amount < $1::numeric
		GROUP BY handle
		ORDER BY handle
	`, maxAmount.String())
	if err != nil {
		return nil, fmt.Errorf("find lottery entrants: %w", err)
	}
	defer rows.Close()

	var entrants []model.LotteryEntrant
	for rows.Next() {
		var e model.LotteryEntrant
		if err := rows.Scan(&e.Handle, &e.Address); err != nil {
			return nil, fmt.Errorf("scan lottery entrant: %w", err)
		}
		entrants = append(entrants, e)
	}
	return entrants, rows.Err()
}

func (r *DepositRepo) LotteryPool(ctx context.Context, maxAmount decimal.Decimal) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var sum string
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(raw_amount), 0)::text
		FROM deposits
		WHERE handle IS NOT NULL AND display_amount < $1::numeric
	`, maxAmount.String()).Scan(&sum)
	if err != nil {
		return nil, fmt.Errorf("lottery pool: %w", err)
	}

	pool, ok := new(big.Int).SetString(sum, 10)
	if !ok {
		return nil, fmt.Errorf("lottery pool: parse sum %q", sum)
	}
	return pool, nil
}

func (r *DepositRepo) stamp(ctx context.Context, column, txHash string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`UPDATE deposits SET `+column+` = $1 WHERE source_tx_hash = $2 AND `+column+` IS NULL`,
		at, model.NormalizeHex(txHash))
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

func (r *DepositRepo) query(ctx context.Context, q string, args ...any) ([]model.Deposit, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query deposits: %w", err)
	}
	defer rows.Close()

	var deposits []model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func scanDeposit(rows *sql.Rows) (model.Deposit, error) {
	var (
		d          model.Deposit
		handle     sql.NullString
		rawStr     string
		displayStr string
		settleTx   sql.NullString
		settledAt  sql.NullTime
		ackedAt    sql.NullTime
		notifiedAt sql.NullTime
	)
	if err := rows.Scan(
		&d.ID, &d.SourceTxHash, &d.SourceAddress, &handle, &rawStr, &displayStr,
		&d.SourceBlock, &d.SourceTime, &d.DiscoveredAt, &settleTx, &settledAt, &ackedAt, &notifiedAt,
	); err != nil {
		return d, fmt.Errorf("scan deposit: %w", err)
	}

	raw, ok := new(big.Int).SetString(rawStr, 10)
	if !ok {
		return d, fmt.Errorf("scan deposit: parse raw amount %q", rawStr)
	}
	d.RawAmount = raw

	display, err := decimal.NewFromString(displayStr)
	if err != nil {
		return d, fmt.Errorf("scan deposit: parse display amount %q: %w", displayStr, err)
	}
	d.DisplayAmount = display

	if handle.Valid {
		d.Handle = &handle.String
	}
	if settleTx.Valid {
		d.SettlementTxHash = &settleTx.String
	}
	if settledAt.Valid {
		d.SettledAt = &settledAt.Time
	}
	if ackedAt.Valid {
		d.AcknowledgedAt = &ackedAt.Time
	}
	if notifiedAt.Valid {
		d.NotifiedAt = &notifiedAt.Time
	}
	return d, nil
}
