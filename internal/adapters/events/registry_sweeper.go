package events

import (
	"context"
	"log/slog"
	"time"
)

// SessionPruner removes refresh records that can no longer be redeemed.
type SessionPruner interface {
	PruneExpiredSessions(ctx context.Context, batchSize int) (int, error)
}

// RegistrySweeper periodically deletes expired refresh token records so the
// registry stays bounded by live sessions.
type RegistrySweeper struct {
	logger    *slog.Logger
	pruner    SessionPruner
	interval  time.Duration
	batchSize int
}

func NewRegistrySweeper(logger *slog.Logger, pruner SessionPruner, interval time.Duration, batchSize int) *RegistrySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RegistrySweeper{
		logger:    logger,
		pruner:    pruner,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *RegistrySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweepOnce drains full batches until a short one signals nothing is left.
func (w *RegistrySweeper) sweepOnce(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		removed, err := w.pruner.PruneExpiredSessions(ctx, w.batchSize)
		if err != nil {
			w.logger.ErrorContext(ctx, "registry sweep iteration failed",
				"module", "events.registry_sweeper",
				"layer", "adapter",
				"operation", "prune_expired_sessions",
				"outcome", "failure",
				"error", err,
			)
			break
		}
		total += removed
		if removed < w.batchSize {
			break
		}
	}
	if total > 0 {
		w.logger.InfoContext(ctx, "registry sweep completed",
			"module", "events.registry_sweeper",
			"layer", "adapter",
			"operation", "prune_expired_sessions",
			"outcome", "success",
			"removed_count", total,
		)
	}
	return total
}
