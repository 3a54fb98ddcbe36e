// Package retention removes client log entries older than the configured
// retention period.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/scheduler"
)

// CommandName is the scheduler name of the prune command.
const CommandName = "client-log-prune"

// Pruner enforces the retention period on a client log store.
type Pruner struct {
	store     clientlog.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a pruner. A zero retention keeps entries forever.
func NewPruner(store clientlog.Store, retention, interval time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "clientlog.retention"),
		now:       time.Now,
	}
}

// Prune deletes entries older than the retention period.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}

	start := p.now()
	cutoff := start.Add(-p.retention)
	deleted, err := p.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune client log: %w", err)
	}

	if deleted > 0 {
		p.logger.InfoContext(ctx, "pruned client log",
			"deleted", deleted,
			"cutoff", cutoff,
			"duration", p.now().Sub(start),
		)
	}
	return deleted, nil
}

// Command returns the pruner as a periodic scheduler command.
func (p *Pruner) Command() scheduler.Command {
	return scheduler.NewPeriodicCommand(CommandName, p.interval, func(ctx context.Context) error {
		_, err := p.Prune(ctx)
		return err
	})
}
