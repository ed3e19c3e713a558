package evaluator

import (
	"context"
	"fmt"
	"time"

	commonlogger "owl-notify/common/logger"
	"owl-notify/internal/datasource"
	"owl-notify/internal/metrics"
	"owl-notify/internal/models"
	"owl-notify/internal/notification"
	"owl-notify/internal/store"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"
)

// ColdChainName evaluator name, also its state store namespace
const ColdChainName = "coldchain"

const (
	coldChainTitleTemplate = "coldchain/title.md"
	coldChainBodyTemplate  = "coldchain/body.md"
)

// Thresholds classification bounds. High and Low are exclusive.
type Thresholds struct {
	High   float64
	Low    float64
	MaxAge time.Duration
}

// Classify precedence: no observation, null value or stale observation is NoData;
// then HighValue above High, LowValue below Low, otherwise Ok.
func Classify(now time.Time, obs *datasource.Observation, th Thresholds) models.EntityStatus {
	if obs == nil || obs.Value == nil {
		return models.StatusNoData
	}
	if now.Sub(obs.Timestamp) > th.MaxAge {
		return models.StatusNoData
	}
	switch v := *obs.Value; {
	case v > th.High:
		return models.StatusHighValue
	case v < th.Low:
		return models.StatusLowValue
	default:
		return models.StatusOk
	}
}

// ColdChain threshold/staleness evaluator. Tracks each entity's status in the state
// store and notifies the config's recipients when it changes.
type ColdChain struct {
	configs      ConfigProcessor
	observations datasource.ObservationSource
	state        store.StateStore
	targets      TargetResolver
	events       EventCreator
	thresholds   Thresholds
	logger       *zap.Logger
}

// NewColdChain creates the ColdChain evaluator
func NewColdChain(
	configs ConfigProcessor,
	observations datasource.ObservationSource,
	state store.StateStore,
	targets TargetResolver,
	events EventCreator,
	thresholds Thresholds,
	logger *zap.Logger,
) *ColdChain {
	return &ColdChain{
		configs:      configs,
		observations: observations,
		state:        state,
		targets:      targets,
		events:       events,
		thresholds:   thresholds,
		logger:       commonlogger.ForEvaluator(logger, ColdChainName),
	}
}

func (c *ColdChain) Name() string { return ColdChainName }

func (c *ColdChain) Run(ctx context.Context, now time.Time) (int, error) {
	return c.configs.Process(ctx, models.KindColdChain, now,
		func(ctx context.Context, cfg models.NotificationConfig, kindCfg models.KindConfig) error {
			return c.processConfig(ctx, cfg, kindCfg, now)
		})
}

// transition a status change that has already been persisted
type transition struct {
	entityID string
	previous models.EntityState
	current  models.EntityState
	obs      *datasource.Observation
}

func (c *ColdChain) processConfig(ctx context.Context, cfg models.NotificationConfig, kindCfg models.KindConfig, now time.Time) error {
	ccCfg, ok := kindCfg.(models.ColdChainConfig)
	if !ok {
		return fmt.Errorf("config %s is not a coldchain config", cfg.ID)
	}

	var targets []models.NotificationTarget
	targetsResolved := false

	for _, entityID := range ccCfg.EntityIDs {
		t, err := c.evaluateEntity(ctx, entityID, now)
		if err != nil {
			// observation or state read failure abandons the config
			return err
		}
		if t == nil {
			continue
		}

		if !targetsResolved {
			targets, err = c.targets.Targets(ctx, cfg, nil)
			if err != nil {
				c.logger.Error("Failed to resolve recipients, transition not notified",
					zap.String("config_id", cfg.ID),
					zap.String("entity_id", entityID),
					zap.Error(err),
				)
				continue
			}
			targetsResolved = true
		}

		c.notify(ctx, cfg, targets, *t, now)
	}

	return nil
}

// evaluateEntity classifies one entity and persists a changed status. Returns the
// transition, or nil when nothing changed or the entity was skipped.
func (c *ColdChain) evaluateEntity(ctx context.Context, entityID string, now time.Time) (*transition, error) {
	log := c.logger.With(zap.String("entity_id", entityID))

	obs, err := c.observations.Latest(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation for %s: %w", entityID, err)
	}

	status := Classify(now, obs, c.thresholds)
	log.Debug("Entity classified", zap.String("status", string(status)))

	key := models.StateKey(ColdChainName, entityID)
	raw, found, err := c.state.Get(ctx, ColdChainName, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous state for %s: %w", entityID, err)
	}

	previous := models.EntityState{EntityID: entityID, Status: models.StatusOk, Timestamp: now}
	if found {
		previous, err = models.ParseEntityState(raw)
		if err != nil {
			log.Error("Failed to parse previous state, skipping entity", zap.Error(err))
			return nil, nil
		}
	} else {
		log.Debug("No previous state, assuming Ok")
	}

	if status == previous.Status {
		return nil, nil
	}

	current := models.EntityState{
		EntityID:  entityID,
		Status:    status,
		Timestamp: now,
	}
	if obs != nil {
		current.Timestamp = obs.Timestamp
		current.Value = obs.Value
	}

	encoded, err := current.Encode()
	if err != nil {
		log.Error("Failed to encode new state", zap.Error(err))
		return nil, nil
	}
	if err := c.state.Set(ctx, ColdChainName, key, encoded); err != nil {
		log.Error("Failed to persist new state, skipping entity", zap.Error(err))
		return nil, nil
	}

	log.Info("Entity status changed",
		zap.String("from", string(previous.Status)),
		zap.String("to", string(status)),
	)
	metrics.TransitionsTotal.WithLabelValues(ColdChainName, string(status)).Inc()

	return &transition{entityID: entityID, previous: previous, current: current, obs: obs}, nil
}

func (c *ColdChain) notify(ctx context.Context, cfg models.NotificationConfig, targets []models.NotificationTarget, t transition, now time.Time) {
	if len(targets) == 0 {
		c.logger.Warn("No recipients for transition",
			zap.String("config_id", cfg.ID),
			zap.String("entity_id", t.entityID),
		)
		return
	}

	_, err := c.events.CreateEvents(ctx, null.StringFrom(cfg.ID), notification.NotificationContext{
		Title:      notification.Named(coldChainTitleTemplate),
		Body:       notification.Named(coldChainBodyTemplate),
		Recipients: targets,
		Data:       c.renderData(cfg, t, now),
	})
	if err != nil {
		c.logger.Error("Failed to create notification events",
			zap.String("config_id", cfg.ID),
			zap.String("entity_id", t.entityID),
			zap.Error(err),
		)
	}
}

func (c *ColdChain) renderData(cfg models.NotificationConfig, t transition, now time.Time) map[string]interface{} {
	data := map[string]interface{}{
		"config":          configData(cfg),
		"entity_id":       t.entityID,
		"status":          string(t.current.Status),
		"previous_status": string(t.previous.Status),
		"has_value":       false,
		"value":           nil,
		"observed_at":     "",
		"evaluated_at":    now.Format(time.RFC3339),
		"high_threshold":  c.thresholds.High,
		"low_threshold":   c.thresholds.Low,
		"max_age":         c.thresholds.MaxAge.String(),
	}
	if t.obs != nil {
		data["observed_at"] = t.obs.Timestamp.UTC().Format(time.RFC3339)
		if t.obs.Value != nil {
			data["has_value"] = true
			data["value"] = *t.obs.Value
		}
	}
	return data
}
