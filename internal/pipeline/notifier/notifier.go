// Package notifier delivers depositor-facing messages for ledger events.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/messaging"
	"github.com/mattg1981/arb-one-migration/internal/metrics"
	"github.com/mattg1981/arb-one-migration/internal/store"
	"github.com/mattg1981/arb-one-migration/internal/template"
)

// Config holds the notifier's static inputs.
type Config struct {
	// TokenSymbol fills the #TOKEN# placeholder.
	TokenSymbol string

	// MinDeposit is the display-unit settlement minimum; deposits below it
	// get the lottery-entry acknowledgment instead of the standard one.
	MinDeposit decimal.Decimal

	// SendsPerSecond paces outgoing messages so the messaging channel's
	// rate limits are never hit.
	SendsPerSecond float64
}

// Notifier sends acknowledgments for newly matched deposits and confirmations
// for settled ones. Each recipient is independent; one failed send never
// blocks the rest, and the ledger timestamp is only stamped after a
// successful send so failures retry next cycle.
type Notifier struct {
	deposits  store.DepositRepository
	messenger messaging.Messenger
	templates *template.Set
	cfg       Config
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

func New(deposits store.DepositRepository, messenger messaging.Messenger, templates *template.Set, cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		deposits:  deposits,
		messenger: messenger,
		templates: templates,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), 1),
		logger:    logger.With("component", "notifier"),
		now:       time.Now,
	}
}

// Run sends every pending acknowledgment, then every pending settlement
// notification. It only returns an error when the ledger itself cannot be
// read; per-recipient send failures are logged and retried next cycle.
func (n *Notifier) Run(ctx context.Context) error {
	if err := n.sendAcknowledgments(ctx); err != nil {
		return err
	}
	return n.sendSettlementNotices(ctx)
}

func (n *Notifier) sendAcknowledgments(ctx context.Context) error {
	pending, err := n.deposits.FindPendingAcknowledgments(ctx)
	if err != nil {
		return fmt.Errorf("list pending acknowledgments: %w", err)
	}

	for _, d := range pending {
		tmpl := n.templates.DepositFound
		kind := "deposit_found"
		if d.DisplayAmount.LessThan(n.cfg.MinDeposit) {
			tmpl = n.templates.LotteryEntry
			kind = "lottery_entry"
		}

		vars := map[string]string{
			"NAME":           d.HandleOrEmpty(),
			"AMOUNT":         d.DisplayAmount.String(),
			"TOKEN":          n.cfg.TokenSymbol,
			"SOURCE_TX_HASH": d.SourceTxHash,
			"MINIMUM":        n.cfg.MinDeposit.String(),
		}

		if !n.deliver(ctx, d, tmpl, vars, kind) {
			continue
		}
		if err := n.deposits.MarkAcknowledged(ctx, d.SourceTxHash, n.now().UTC()); err != nil {
			return fmt.Errorf("mark %s acknowledged: %w", d.SourceTxHash, err)
		}
	}
	return nil
}

func (n *Notifier) sendSettlementNotices(ctx context.Context) error {
	pending, err := n.deposits.FindPendingNotifications(ctx)
	if err != nil {
		return fmt.Errorf("list pending notifications: %w", err)
	}

	for _, d := range pending {
		if d.SettlementTxHash == nil {
			// FindPendingNotifications only returns settled rows; guard anyway.
			continue
		}

		vars := map[string]string{
			"NAME":               d.HandleOrEmpty(),
			"AMOUNT":             d.DisplayAmount.String(),
			"TOKEN":              n.cfg.TokenSymbol,
			"SOURCE_TX_HASH":     d.SourceTxHash,
			"SETTLEMENT_TX_HASH": *d.SettlementTxHash,
		}

		if !n.deliver(ctx, d, n.templates.Settled, vars, "settled") {
			continue
		}
		if err := n.deposits.MarkNotified(ctx, d.SourceTxHash, n.now().UTC()); err != nil {
			return fmt.Errorf("mark %s notified: %w", d.SourceTxHash, err)
		}
	}
	return nil
}

// deliver renders and sends one message. It reports whether the send
// succeeded; rendering and sending failures are logged, not returned.
func (n *Notifier) deliver(ctx context.Context, d model.Deposit, tmpl template.Message, vars map[string]string, kind string) bool {
	subject, err := template.Render(tmpl.Subject, vars)
	if err != nil {
		metrics.MessageFailures.WithLabelValues(kind).Inc()
		n.logger.Error("render subject failed", "kind", kind, "tx_hash", d.SourceTxHash, "error", err)
		return false
	}
	body, err := template.Render(tmpl.Body, vars)
	if err != nil {
		metrics.MessageFailures.WithLabelValues(kind).Inc()
		n.logger.Error("render body failed", "kind", kind, "tx_hash", d.SourceTxHash, "error", err)
		return false
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return false
	}

	if err := n.messenger.Send(ctx, d.HandleOrEmpty(), subject, body); err != nil {
		metrics.MessageFailures.WithLabelValues(kind).Inc()
		n.logger.Warn("message send failed",
			"kind", kind,
			"recipient", d.HandleOrEmpty(),
			"tx_hash", d.SourceTxHash,
			"error", err,
		)
		return false
	}

	metrics.MessagesSent.WithLabelValues(kind).Inc()
	n.logger.Info("message sent", "kind", kind, "recipient", d.HandleOrEmpty(), "tx_hash", d.SourceTxHash)
	return true
}
