// Package pipeline runs the deposit shuttle cycle: ingest new deposits from
// the source chain, resolve depositor identities, settle accumulated
// deposits, and notify depositors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattg1981/arb-one-migration/internal/alert"
	"github.com/mattg1981/arb-one-migration/internal/chain"
	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/feed"
	"github.com/mattg1981/arb-one-migration/internal/metrics"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/filter"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
	"github.com/mattg1981/arb-one-migration/internal/store"
	"github.com/mattg1981/arb-one-migration/internal/tracing"
)

// Stage is one post-ingest step of a cycle.
type Stage interface {
	Run(ctx context.Context) error
}

// Config holds the pipeline's runtime settings.
type Config struct {
	// WatchAddress is the collection multisig on the source chain.
	WatchAddress string

	// StartBlock is treated as already scanned when the cursor is behind it,
	// so the first block actually scanned is StartBlock+1.
	StartBlock int64

	// Interval is the pause between cycles in loop mode.
	Interval time.Duration

	// RunOnce exits after a single cycle instead of looping.
	RunOnce bool

	// Retry bounds upstream fetches during ingest.
	Retry retry.Policy
}

// Pipeline wires the cycle stages together.
type Pipeline struct {
	cfg       Config
	rules     filter.Rules
	feed      feed.Feed
	reader    chain.Reader
	deposits  store.DepositRepository
	cursor    store.CursorRepository
	matcher   Stage
	scheduler Stage
	notifier  Stage
	alerter   alert.Alerter
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func New(
	cfg Config,
	rules filter.Rules,
	depositFeed feed.Feed,
	reader chain.Reader,
	deposits store.DepositRepository,
	cursor store.CursorRepository,
	matcher, scheduler, notifier Stage,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		rules:     rules,
		feed:      depositFeed,
		reader:    reader,
		deposits:  deposits,
		cursor:    cursor,
		matcher:   matcher,
		scheduler: scheduler,
		notifier:  notifier,
		alerter:   alerter,
		logger:    logger.With("component", "pipeline"),
		tracer:    tracing.Tracer("pipeline"),
		now:       time.Now,
	}
}

// Run executes cycles until the context is canceled, or exactly one cycle in
// run-once mode. Cycle errors are logged and alerted, never fatal to the
// loop; the next tick retries from durable state.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.cfg.RunOnce {
		return p.Cycle(ctx)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.Cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			p.logger.Error("cycle failed", "error", err)
			_ = p.alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeCycleError,
				Title:   "pipeline cycle failed",
				Message: err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Cycle runs every stage once. Stages run in a fixed order but are
// independent: a failing stage is reported while the remaining stages still
// run, so a broken directory feed never blocks settlements of deposits that
// are already resolved.
func (p *Pipeline) Cycle(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.cycle")
	defer span.End()

	start := p.now()
	metrics.CyclesTotal.Inc()
	p.logger.Info("cycle started")

	var errs []error
	for _, stage := range []struct {
		name string
		run  func(context.Context) error
	}{
		{"ingest", p.ingest},
		{"match", p.matcher.Run},
		{"schedule", p.scheduler.Run},
		{"notify", p.notifier.Run},
	} {
		if err := p.runStage(ctx, stage.name, stage.run); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			errs = append(errs, fmt.Errorf("%s: %w", stage.name, err))
		}
	}

	metrics.CycleDuration.Observe(p.now().Sub(start).Seconds())
	if len(errs) > 0 {
		metrics.CycleErrors.Inc()
		err := errors.Join(errs...)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	p.logger.Info("cycle finished", "duration", p.now().Sub(start))
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, name string, run func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ingest scans new source blocks for qualifying deposits and records them.
// The cursor only advances past a block once every transfer in it reached a
// final verdict; a transfer that is merely unconfirmed, or whose verification
// hit an upstream error, holds the cursor back so it is revisited.
func (p *Pipeline) ingest(ctx context.Context) error {
	from, err := p.cursor.LastScannedBlock(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	if from < p.cfg.StartBlock {
		from = p.cfg.StartBlock
	}
	from++

	var head int64
	err = retry.Do(ctx, p.cfg.Retry, p.logger, "head block", func(ctx context.Context) error {
		head, err = p.reader.HeadBlock(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if head < from {
		return nil
	}

	var transfers []feed.TokenTransfer
	err = retry.Do(ctx, p.cfg.Retry, p.logger, "list token transfers", func(ctx context.Context) error {
		transfers, err = p.feed.ListTokenTransfers(ctx, p.cfg.WatchAddress, from, head)
		return err
	})
	if err != nil {
		return err
	}

	advance := head
	for _, t := range transfers {
		metrics.TransfersSeen.Inc()

		block, err := t.Block()
		if err != nil {
			metrics.TransfersRejected.WithLabelValues("unparseable_block").Inc()
			p.logger.Warn("skipping malformed transfer", "tx_hash", t.Hash, "error", err)
			continue
		}

		outcome := p.rules.Screen(t)
		if outcome.Verdict == filter.Accept {
			outcome, err = p.verify(ctx, t)
			if err != nil {
				p.logger.Warn("verification unavailable, will revisit",
					"tx_hash", t.Hash, "block", block, "error", err)
				advance = min(advance, block-1)
				continue
			}
		}

		switch outcome.Verdict {
		case filter.RejectPermanent:
			metrics.TransfersRejected.WithLabelValues(outcome.Reason).Inc()
			continue
		case filter.RejectRetry:
			metrics.TransfersRejected.WithLabelValues(outcome.Reason).Inc()
			advance = min(advance, block-1)
			continue
		}

		if err := p.record(ctx, t, block); err != nil {
			return err
		}
	}

	if err := p.cursor.AdvanceTo(ctx, advance); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (p *Pipeline) verify(ctx context.Context, t feed.TokenTransfer) (filter.Outcome, error) {
	var outcome filter.Outcome
	err := retry.Do(ctx, p.cfg.Retry, p.logger, "verify transfer", func(ctx context.Context) error {
		var err error
		outcome, err = filter.Verify(ctx, p.reader, t)
		return err
	})
	return outcome, err
}

func (p *Pipeline) record(ctx context.Context, t feed.TokenTransfer, block int64) error {
	raw, err := t.RawValue()
	if err != nil {
		metrics.TransfersRejected.WithLabelValues("unparseable_value").Inc()
		p.logger.Warn("skipping malformed transfer", "tx_hash", t.Hash, "error", err)
		return nil
	}
	sourceTime, err := t.Time()
	if err != nil {
		metrics.TransfersRejected.WithLabelValues("unparseable_timestamp").Inc()
		p.logger.Warn("skipping malformed transfer", "tx_hash", t.Hash, "error", err)
		return nil
	}

	deposit := &model.Deposit{
		SourceTxHash:  model.NormalizeHex(t.Hash),
		SourceAddress: model.NormalizeHex(t.From),
		RawAmount:     raw,
		DisplayAmount: model.DisplayAmountFor(raw),
		SourceBlock:   block,
		SourceTime:    sourceTime,
		DiscoveredAt:  p.now().UTC(),
	}

	inserted, err := p.deposits.InsertIfAbsent(ctx, deposit)
	if err != nil {
		return fmt.Errorf("record deposit %s: %w", deposit.SourceTxHash, err)
	}
	if !inserted {
		metrics.DepositsDuplicate.Inc()
		return nil
	}

	metrics.DepositsInserted.Inc()
	p.logger.Info("deposit recorded",
		"tx_hash", deposit.SourceTxHash,
		"address", deposit.SourceAddress,
		"amount", deposit.DisplayAmount.String(),
		"block", block,
	)
	return nil
}
