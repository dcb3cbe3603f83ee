// Package scheduler decides when accumulated deposits are settled and submits
// the settlement transaction.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattg1981/arb-one-migration/internal/alert"
	"github.com/mattg1981/arb-one-migration/internal/chain"
	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/metrics"
	"github.com/mattg1981/arb-one-migration/internal/store"
)

// Policy controls when a settlement is triggered and what it may spend.
type Policy struct {
	// SizeThreshold triggers settlement once this many candidates exist.
	SizeThreshold int

	// AgeThreshold triggers settlement once the oldest candidate's source
	// transaction is this old, regardless of count.
	AgeThreshold time.Duration

	// MinDeposit is the display-unit amount below which a deposit is dust
	// and never settled individually.
	MinDeposit decimal.Decimal

	// MinGasReserve is the native balance, in wei, the settlement account
	// must hold before a transaction is attempted.
	MinGasReserve *big.Int
}

// Scheduler runs the settlement stage of a cycle.
type Scheduler struct {
	deposits store.DepositRepository
	settler  chain.Settler
	alerter  alert.Alerter
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time
}

func New(deposits store.DepositRepository, settler chain.Settler, alerter alert.Alerter, policy Policy, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		deposits: deposits,
		settler:  settler,
		alerter:  alerter,
		policy:   policy,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Run performs at most one settlement. It returns nil when no settlement is
// due; submission failures are returned so the cycle surfaces them, with
// nothing marked settled.
func (s *Scheduler) Run(ctx context.Context) error {
	candidates, err := s.deposits.FindSettlementCandidates(ctx, s.policy.MinDeposit)
	if err != nil {
		return fmt.Errorf("list settlement candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	if !s.due(candidates) {
		s.logger.Debug("settlement not due",
			"candidates", len(candidates),
			"oldest", candidates[0].SourceTime,
		)
		return nil
	}

	balance, err := s.settler.TokenBalance(ctx)
	if err != nil {
		return fmt.Errorf("query token balance: %w", err)
	}

	batch := model.NewBatch(candidates, balance)
	if len(batch.Deposits) == 0 {
		s.logger.Warn("settlement due but balance covers no candidate",
			"candidates", len(candidates),
			"balance", balance.String(),
		)
		return nil
	}

	gas, err := s.settler.GasBalance(ctx)
	if err != nil {
		return fmt.Errorf("query gas balance: %w", err)
	}
	if gas.Cmp(s.policy.MinGasReserve) < 0 {
		metrics.SettlementFailures.Inc()
		s.alertLowGas(ctx, gas)
		return fmt.Errorf("gas balance %s below reserve %s", gas, s.policy.MinGasReserve)
	}

	s.logger.Info("submitting settlement",
		"batch_id", batch.ID,
		"deposits", len(batch.Deposits),
		"total", batch.Total.String(),
	)
	metrics.SettlementsSubmitted.Inc()

	txHash, err := s.settler.Distribute(ctx, batch.Recipients(), batch.Amounts())
	if err != nil {
		metrics.SettlementFailures.Inc()
		s.alertSettlementFailed(ctx, batch, err)
		return fmt.Errorf("distribute batch %s: %w", batch.ID, err)
	}

	// One timestamp for the whole batch. A crash between Distribute and this
	// update leaves the batch unmarked and the next cycle would pay it again;
	// the batch_id and tx hash logged above are the reconciliation trail for
	// that window.
	if err := s.deposits.MarkSettled(ctx, batch.TxHashes(), model.NormalizeHex(txHash), s.now().UTC()); err != nil {
		return fmt.Errorf("mark batch %s settled (tx %s): %w", batch.ID, txHash, err)
	}
	metrics.DepositsSettled.Add(float64(len(batch.Deposits)))

	s.logger.Info("settlement confirmed",
		"batch_id", batch.ID,
		"tx_hash", txHash,
		"deposits", len(batch.Deposits),
	)
	return nil
}

// due reports whether the candidate set crosses the size or age threshold.
// Candidates arrive oldest first.
func (s *Scheduler) due(candidates []model.Deposit) bool {
	if len(candidates) >= s.policy.SizeThreshold {
		return true
	}
	return s.now().Sub(candidates[0].SourceTime) >= s.policy.AgeThreshold
}

func (s *Scheduler) alertLowGas(ctx context.Context, gas *big.Int) {
	_ = s.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeLowGas,
		Title:   "settlement account gas below reserve",
		Message: "top up the settlement account; settlements are paused until then",
		Fields: map[string]string{
			"gas_balance": gas.String(),
			"reserve":     s.policy.MinGasReserve.String(),
		},
	})
}

func (s *Scheduler) alertSettlementFailed(ctx context.Context, batch model.Batch, cause error) {
	_ = s.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeSettlementFailed,
		Title:   "settlement transaction failed",
		Message: cause.Error(),
		Fields: map[string]string{
			"batch_id": batch.ID.String(),
			"deposits": fmt.Sprintf("%d", len(batch.Deposits)),
			"total":    batch.Total.String(),
		},
	})
}
