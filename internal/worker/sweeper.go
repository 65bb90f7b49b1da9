// Package worker runs the background maintenance of the shared store.
package worker

import (
	"context"
	"time"

	"lifelog/internal/docstore"
	"lifelog/internal/log"
	"lifelog/internal/providers"
)

// SweepFunc deletes orphaned habit logs and returns how many it removed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper removes habit logs whose habit is gone, for every user, on a fixed
// interval. It backs up the cascade in Habits.DeleteHabit for writers that
// bypass it.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	logger   *log.Logger
}

func NewSweeper(store docstore.Store, interval time.Duration, logger *log.Logger) *Sweeper {
	return &Sweeper{
		sweep: func(ctx context.Context) (int, error) {
			return providers.SweepOrphanLogs(ctx, store, "")
		},
		interval: interval,
		logger:   logger.OrDefault(log.ComponentWorker),
	}
}

// WithSweep replaces the sweep, for tests.
func (s *Sweeper) WithSweep(fn SweepFunc) *Sweeper {
	s.sweep = fn
	return s
}

// RunOnce performs one sweep and logs its outcome.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Orphan log sweep failed", log.FieldError, err)
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Removed orphaned habit logs", log.FieldCount, n)
	} else {
		s.logger.DebugContext(ctx, "No orphaned habit logs")
	}
	return n, nil
}

// Run sweeps once at startup and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	_, _ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.RunOnce(ctx); err == nil {
				s.logger.DebugContext(ctx, "Next orphan sweep", "next_check", now.Add(s.interval).Format("15:04:05"))
			}
		}
	}
}
