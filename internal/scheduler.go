package internal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the engine on a fixed cadence. Ticks are numbered by the
// per-plan monotonic counter inside the engine, not by wall-clock time, so
// drift or downtime never skips an evaluation window.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a scheduler with the given cadence interval.
func NewScheduler(logger *zap.Logger, engine *Engine, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. One tick runs at a time; a cancellation
// arriving mid-tick takes effect only after the tick completes, so in-flight
// dispatch always reaches a terminal execution record before the loop halts.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("starting evaluation loop", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("evaluation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			// detach the tick from cancellation; adapter calls carry their
			// own timeouts, commits are never aborted midway
			records, err := s.engine.Tick(context.WithoutCancel(ctx), time.Now())
			if err != nil {
				s.logger.Error("tick failed", zap.Error(err))
				continue
			}
			for i := range records {
				rec := &records[i]
				s.logger.Info("tick execution",
					zap.String("plan", rec.PlanID),
					zap.String("rule", rec.RuleID),
					zap.Uint64("tick", rec.Tick),
					zap.String("status", string(rec.Status)))
			}
		}
	}
}
