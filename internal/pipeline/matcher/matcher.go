// Package matcher resolves depositor addresses to user handles.
package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattg1981/arb-one-migration/internal/directory"
	"github.com/mattg1981/arb-one-migration/internal/metrics"
	"github.com/mattg1981/arb-one-migration/internal/store"
)

// Matcher assigns handles to unresolved deposits from the published address
// book. A deposit whose address is absent from the book stays unresolved and
// is retried every cycle; registration can happen after the deposit.
type Matcher struct {
	deposits store.DepositRepository
	dir      directory.Directory
	logger   *slog.Logger
}

func New(deposits store.DepositRepository, dir directory.Directory, logger *slog.Logger) *Matcher {
	return &Matcher{
		deposits: deposits,
		dir:      dir,
		logger:   logger.With("component", "matcher"),
	}
}

// Run matches every unresolved deposit against a fresh directory snapshot.
// A directory fetch failure aborts the whole stage so stale data is never
// used; matching resumes next cycle.
func (m *Matcher) Run(ctx context.Context) error {
	unresolved, err := m.deposits.FindUnresolved(ctx)
	if err != nil {
		return fmt.Errorf("list unresolved deposits: %w", err)
	}
	if len(unresolved) == 0 {
		return nil
	}

	entries, err := m.dir.ListKnownAddresses(ctx)
	if err != nil {
		return fmt.Errorf("fetch directory: %w", err)
	}
	idx := directory.Index(entries)

	// One address can have several unresolved deposits; update them all in
	// one statement and only visit each address once.
	seen := make(map[string]struct{}, len(unresolved))
	for _, d := range unresolved {
		if _, ok := seen[d.SourceAddress]; ok {
			continue
		}
		seen[d.SourceAddress] = struct{}{}

		handle, ok := idx[d.SourceAddress]
		if !ok {
			continue
		}

		n, err := m.deposits.AssignHandle(ctx, d.SourceAddress, handle)
		if err != nil {
			return fmt.Errorf("assign handle %q to %s: %w", handle, d.SourceAddress, err)
		}
		metrics.HandlesMatched.Add(float64(n))
		m.logger.Info("matched depositor",
			"address", d.SourceAddress,
			"handle", handle,
			"deposits", n,
		)
	}
	return nil
}
