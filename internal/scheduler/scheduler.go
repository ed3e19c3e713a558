package scheduler

import (
	"context"
	"fmt"
	"time"

	"owl-notify/internal/evaluator"
	"owl-notify/internal/metrics"

	"go.uber.org/zap"
)

// Scheduler runs every evaluator once per tick, in registration order
type Scheduler struct {
	evaluators []evaluator.Evaluator
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a scheduler
func New(logger *zap.Logger, interval time.Duration, evaluators ...evaluator.Evaluator) *Scheduler {
	return &Scheduler{
		evaluators: evaluators,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

// Run ticks immediately, then every interval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	names := make([]string, 0, len(s.evaluators))
	for _, e := range s.evaluators {
		names = append(names, e.Name())
	}
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Strings("evaluators", names),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs each evaluator once. A failing or panicking evaluator does not stop the
// ones after it.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	metrics.TicksTotal.Inc()

	for _, e := range s.evaluators {
		if ctx.Err() != nil {
			return
		}
		s.runOne(ctx, e, now)
	}
}

func (s *Scheduler) runOne(ctx context.Context, e evaluator.Evaluator, now time.Time) {
	name := e.Name()
	start := time.Now()
	outcome := "ok"

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			s.logger.Error("Evaluator panicked",
				zap.String("evaluator", name),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
		metrics.EvaluatorRunsTotal.WithLabelValues(name, outcome).Inc()
		metrics.EvaluatorDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	processed, err := e.Run(ctx, now)
	if err != nil {
		outcome = "error"
		s.logger.Error("Evaluator failed",
			zap.String("evaluator", name),
			zap.Int("processed", processed),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("Evaluator finished",
		zap.String("evaluator", name),
		zap.Int("processed", processed),
		zap.Duration("elapsed", time.Since(start)),
	)
}
