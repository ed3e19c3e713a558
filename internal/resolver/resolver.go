package resolver

import (
	"context"
	"fmt"
	"time"

	"owl-notify/internal/metrics"
	"owl-notify/internal/models"

	"go.uber.org/zap"
)

// ConfigRepository notification config storage used by the resolver
type ConfigRepository interface {
	FindAllDueByKind(ctx context.Context, kind models.ConfigKind, now time.Time) ([]models.NotificationConfig, error)
	MarkRun(ctx context.Context, id string, now time.Time) error
	SetNextDue(ctx context.Context, id string, next time.Time) error
}

// ProcessFunc domain evaluation of one due config. kindCfg is already decoded and validated.
type ProcessFunc func(ctx context.Context, cfg models.NotificationConfig, kindCfg models.KindConfig) error

// Resolver selects due configs and marks them run before they are evaluated
type Resolver struct {
	configs ConfigRepository
	logger  *zap.Logger
}

// NewResolver creates the resolver
func NewResolver(configs ConfigRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		configs: configs,
		logger:  logger,
	}
}

// DueConfigs enabled configs of kind with next_due_datetime null or <= now
func (r *Resolver) DueConfigs(ctx context.Context, kind models.ConfigKind, now time.Time) ([]models.NotificationConfig, error) {
	configs, err := r.configs.FindAllDueByKind(ctx, kind, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due %s configs: %w", kind, err)
	}

	due := configs[:0]
	for _, cfg := range configs {
		if cfg.Status != models.ConfigEnabled {
			r.logger.Info("Skipping config that is not enabled",
				zap.String("config_id", cfg.ID),
				zap.String("title", cfg.Title),
			)
			continue
		}
		if cfg.NextDueDatetime.Valid && cfg.NextDueDatetime.Time.After(now) {
			continue
		}
		due = append(due, cfg)
	}
	return due, nil
}

// MarkRun persists last_run_datetime = now
func (r *Resolver) MarkRun(ctx context.Context, id string, now time.Time) error {
	return r.configs.MarkRun(ctx, id, now)
}

// SetNextDue persists next_due_datetime
func (r *Resolver) SetNextDue(ctx context.Context, id string, next time.Time) error {
	return r.configs.SetNextDue(ctx, id, next)
}

// Process runs fn for every due config of kind. Each config is decoded, then marked
// run, then handed to fn; a config that fails to decode or mark is skipped. fn runs
// on a context that is not cancelled so a config always finishes, and cancellation
// of ctx stops the loop between configs. Returns the number of configs handed to fn.
func (r *Resolver) Process(ctx context.Context, kind models.ConfigKind, now time.Time, fn ProcessFunc) (int, error) {
	r.logger.Info("Processing configurations",
		zap.String("kind", string(kind)),
		zap.Time("due_at", now),
	)

	configs, err := r.DueConfigs(ctx, kind, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i, cfg := range configs {
		if ctx.Err() != nil {
			r.logger.Info("Stopping before remaining configs",
				zap.String("kind", string(kind)),
				zap.Int("remaining", len(configs)-i),
			)
			break
		}

		log := r.logger.With(zap.String("config_id", cfg.ID), zap.String("kind", string(kind)))

		kindCfg, err := models.DecodeKindConfig(cfg.Kind, cfg.ConfigurationData)
		if err != nil {
			log.Error("Failed to decode configuration data", zap.Error(err))
			metrics.ConfigsProcessedTotal.WithLabelValues(string(kind), "skipped").Inc()
			continue
		}

		// must land before fn runs
		inflight := context.WithoutCancel(ctx)
		if err := r.MarkRun(inflight, cfg.ID, now); err != nil {
			log.Error("Failed to mark config as run", zap.Error(err))
			metrics.ConfigsProcessedTotal.WithLabelValues(string(kind), "error").Inc()
			continue
		}

		processed++
		if err := fn(inflight, cfg, kindCfg); err != nil {
			log.Error("Failed to process config", zap.Error(err))
			metrics.ConfigsProcessedTotal.WithLabelValues(string(kind), "error").Inc()
			continue
		}
		metrics.ConfigsProcessedTotal.WithLabelValues(string(kind), "ok").Inc()
	}

	return processed, nil
}
