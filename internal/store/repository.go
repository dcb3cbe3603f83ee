package store

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattg1981/arb-one-migration/internal/domain/model"
)

// DepositRepository provides access to the deposit ledger. Every method is
// safe to call repeatedly with the same arguments: the ledger is the single
// source of truth for "has this already happened".
type DepositRepository interface {
	// InsertIfAbsent records a deposit keyed by its source tx hash. It
	// reports whether a new row was created; a duplicate is a no-op, not an
	// error.
	InsertIfAbsent(ctx context.Context, d *model.Deposit) (bool, error)

	// FindUnresolved returns unsettled deposits with no resolved handle.
	FindUnresolved(ctx context.Context) ([]model.Deposit, error)

	// AssignHandle sets the handle on every unresolved deposit from the
	// given address (case-insensitive). Returns the number of rows updated.
	AssignHandle(ctx context.Context, sourceAddress, handle string) (int64, error)

	// FindSettlementCandidates returns at most one unsettled,
	// identity-resolved, non-dust deposit per source address (earliest by
	// discovered_at, then id), excluding addresses that already have a
	// settled deposit. Results are ordered by discovered_at then id.
	FindSettlementCandidates(ctx context.Context, minAmount decimal.Decimal) ([]model.Deposit, error)

	// MarkSettled stamps the settlement tx hash and timestamp on each listed
	// deposit that is not already settled. All updates run in one database
	// transaction.
	MarkSettled(ctx context.Context, txHashes []string, settlementTxHash string, settledAt time.Time) error

	// FindPendingAcknowledgments returns resolved deposits whose discovery
	// acknowledgment has not been sent yet.
	FindPendingAcknowledgments(ctx context.Context) ([]model.Deposit, error)

	MarkAcknowledged(ctx context.Context, txHash string, at time.Time) error

	// FindPendingNotifications returns settled, resolved deposits whose
	// settlement notification has not been sent yet.
	FindPendingNotifications(ctx context.Context) ([]model.Deposit, error)

	MarkNotified(ctx context.Context, txHash string, at time.Time) error

	// FindLotteryEntrants returns one entry per distinct resolved depositor
	// with at least one below-minimum deposit.
	FindLotteryEntrants(ctx context.Context, maxAmount decimal.Decimal) ([]model.LotteryEntrant, error)

	// LotteryPool sums the raw amounts of all below-minimum deposits.
	LotteryPool(ctx context.Context, maxAmount decimal.Decimal) (*big.Int, error)
}

// CursorRepository tracks the highest fully scanned source block.
type CursorRepository interface {
	LastScannedBlock(ctx context.Context) (int64, error)

	// AdvanceTo moves the cursor forward. A target at or below the current
	// value is a no-op; the cursor never decreases.
	AdvanceTo(ctx context.Context, block int64) error
}
