package evaluator

import (
	"context"
	"time"

	"owl-notify/internal/models"
	"owl-notify/internal/notification"
	"owl-notify/internal/resolver"

	"github.com/guregu/null/v5"
)

// Evaluator one scheduled unit of domain logic. Run returns the number of configs
// processed in this tick.
type Evaluator interface {
	Name() string
	Run(ctx context.Context, now time.Time) (int, error)
}

// ConfigProcessor hands due configs of a kind to a callback (resolver.Resolver)
type ConfigProcessor interface {
	Process(ctx context.Context, kind models.ConfigKind, now time.Time, fn resolver.ProcessFunc) (int, error)
}

// TargetResolver resolves a config's recipients (notification.RecipientResolver)
type TargetResolver interface {
	Targets(ctx context.Context, cfg models.NotificationConfig, params map[string]interface{}) ([]models.NotificationTarget, error)
}

// EventCreator writes notification events (notification.Builder)
type EventCreator interface {
	CreateEvents(ctx context.Context, configID null.String, req notification.NotificationContext) (int, error)
}

// configData the "config" object every render context carries
func configData(cfg models.NotificationConfig) map[string]interface{} {
	return map[string]interface{}{
		"id":    cfg.ID,
		"title": cfg.Title,
		"kind":  string(cfg.Kind),
	}
}
