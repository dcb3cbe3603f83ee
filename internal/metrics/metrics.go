package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, one subsystem per stage.

var (
	// Cycle
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "cycle",
		Name:      "runs_total",
		Help:      "Total pipeline cycles started",
	})

	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "cycle",
		Name:      "errors_total",
		Help:      "Total cycles aborted by a fatal condition",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shuttle",
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Full pipeline cycle duration",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// Ingest
	TransfersSeen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "ingest",
		Name:      "transfers_seen_total",
		Help:      "Raw transfer candidates returned by the feed",
	})

	DepositsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "ingest",
		Name:      "deposits_inserted_total",
		Help:      "New deposit rows created",
	})

	DepositsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "ingest",
		Name:      "deposits_duplicate_total",
		Help:      "Qualifying deposits already present in the ledger",
	})

	TransfersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "ingest",
		Name:      "transfers_rejected_total",
		Help:      "Transfer candidates rejected by the deposit filter",
	}, []string{"reason"})

	// Matcher
	HandlesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "matcher",
		Name:      "handles_matched_total",
		Help:      "Deposits resolved to a user handle",
	})

	// Scheduler
	SettlementsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "scheduler",
		Name:      "settlements_submitted_total",
		Help:      "Settlement transactions submitted",
	})

	DepositsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "scheduler",
		Name:      "deposits_settled_total",
		Help:      "Deposits marked settled",
	})

	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "scheduler",
		Name:      "settlement_failures_total",
		Help:      "Settlement transactions that failed or reverted",
	})

	// Notifier
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "notifier",
		Name:      "messages_sent_total",
		Help:      "Messages delivered, by kind",
	}, []string{"kind"})

	MessageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "notifier",
		Name:      "message_failures_total",
		Help:      "Message sends that failed, by kind",
	}, []string{"kind"})

	// Alerting
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Operator alerts sent, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shuttle",
		Subsystem: "alerts",
		Name:      "cooldown_skipped_total",
		Help:      "Operator alerts suppressed by cooldown",
	}, []string{"channel", "type"})
)
