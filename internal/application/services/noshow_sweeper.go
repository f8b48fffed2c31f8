package services

import (
	"context"
	"time"

	"github.com/urgentcareq/backend/internal/infrastructure/observability"
)

// NoShowSweeper periodically prunes patients who missed their check-in
// deadline. It runs on its own schedule, fully independent of request
// handling, and swallows every error: a missed cycle self-heals on the next
// tick.
type NoShowSweeper struct {
	queue    *QueueService
	interval time.Duration
}

// NewNoShowSweeper creates a new no-show sweeper
func NewNoShowSweeper(queue *QueueService, interval time.Duration) *NoShowSweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &NoShowSweeper{queue: queue, interval: interval}
}

// Run sweeps immediately, then on every tick until the context is
// cancelled. Intended to be started as a goroutine from main.
func (s *NoShowSweeper) Run(ctx context.Context) {
	logger := observability.GetLogger()
	logger.Info().Dur("interval", s.interval).Msg("no-show sweeper started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("no-show sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs a single prune pass. Exported so staff tooling and tests can
// force a pass outside the ticker.
func (s *NoShowSweeper) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

func (s *NoShowSweeper) sweep(ctx context.Context) {
	pruned, err := s.queue.PruneNoShows(ctx)
	logger := observability.LoggerFromContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("no-show sweep failed, will retry next tick")
		return
	}
	if pruned > 0 {
		logger.Info().Int("pruned", pruned).Msg("removed no-show patients from queue")
	}
}
