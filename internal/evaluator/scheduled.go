package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonlogger "owl-notify/common/logger"
	"owl-notify/internal/models"
	"owl-notify/internal/notification"
	"owl-notify/internal/query"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"
)

// ScheduledName evaluator name
const ScheduledName = "scheduled"

const scheduledTitleTemplate = "scheduled/title.md"

// QueryRunner templated query engine (query.Engine)
type QueryRunner interface {
	RunBatch(ctx context.Context, queries []models.NamedQuery, params map[string]interface{}, required map[string]bool) (query.BatchResult, error)
	RunRows(ctx context.Context, tmpl string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// QueryStore named query lookup (repository.NotificationQueryRepository)
type QueryStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.NamedQuery, error)
	FindByID(ctx context.Context, id string) (*models.NamedQuery, error)
}

// ScheduleStore persists next_due_datetime (resolver.Resolver)
type ScheduleStore interface {
	SetNextDue(ctx context.Context, id string, next time.Time) error
}

// Scheduled report evaluator: runs a config's queries once per parameter set and
// sends the rendered report to its recipients
type Scheduled struct {
	configs  ConfigProcessor
	schedule ScheduleStore
	queries  QueryStore
	engine   QueryRunner
	targets  TargetResolver
	events   EventCreator
	logger   *zap.Logger
}

// NewScheduled creates the Scheduled evaluator
func NewScheduled(
	configs ConfigProcessor,
	schedule ScheduleStore,
	queries QueryStore,
	engine QueryRunner,
	targets TargetResolver,
	events EventCreator,
	logger *zap.Logger,
) *Scheduled {
	return &Scheduled{
		configs:  configs,
		schedule: schedule,
		queries:  queries,
		engine:   engine,
		targets:  targets,
		events:   events,
		logger:   commonlogger.ForEvaluator(logger, ScheduledName),
	}
}

func (s *Scheduled) Name() string { return ScheduledName }

func (s *Scheduled) Run(ctx context.Context, now time.Time) (int, error) {
	return s.configs.Process(ctx, models.KindScheduled, now,
		func(ctx context.Context, cfg models.NotificationConfig, kindCfg models.KindConfig) error {
			return s.processConfig(ctx, cfg, kindCfg, now)
		})
}

func (s *Scheduled) processConfig(ctx context.Context, cfg models.NotificationConfig, kindCfg models.KindConfig, now time.Time) error {
	sc, ok := kindCfg.(models.ScheduledConfig)
	if !ok {
		return fmt.Errorf("config %s is not a scheduled config", cfg.ID)
	}

	// next_due_datetime advances even when the report fails
	start, _ := sc.StartTime()
	next := NextDue(sc.ScheduleFrequency, start, now)
	defer func() {
		if err := s.schedule.SetNextDue(ctx, cfg.ID, next); err != nil {
			s.logger.Error("Failed to set next due time",
				zap.String("config_id", cfg.ID),
				zap.Time("next_due", next),
				zap.Error(err),
			)
		}
	}()

	paramSets, err := s.parameterSets(ctx, cfg)
	if err != nil {
		return err
	}

	queries, err := s.queries.FindByIDs(ctx, sc.NotificationQueryIDs)
	if err != nil {
		return fmt.Errorf("failed to load queries for config %s: %w", cfg.ID, err)
	}

	required := make(map[string]bool, len(sc.RequiredQueryIDs))
	for _, q := range queries {
		if sc.IsRequired(q.ID) {
			required[q.ID] = true
		}
	}

	for i, params := range paramSets {
		log := s.logger.With(zap.String("config_id", cfg.ID), zap.Int("parameter_set", i))

		batch, err := s.engine.RunBatch(ctx, queries, params, required)
		if err != nil {
			return fmt.Errorf("config %s parameter set %d: %w", cfg.ID, i, err)
		}
		if batch.Skipped {
			log.Info("Skipping notification", zap.String("reason", batch.Reason))
			continue
		}

		targets, err := s.targets.Targets(ctx, cfg, params)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			log.Warn("No recipients for scheduled notification")
			continue
		}

		title := notification.Named(scheduledTitleTemplate)
		if strings.TrimSpace(sc.SubjectTemplate) != "" {
			title = notification.Inline(sc.SubjectTemplate)
		}

		_, err = s.events.CreateEvents(ctx, null.StringFrom(cfg.ID), notification.NotificationContext{
			Title:      title,
			Body:       notification.Inline(sc.BodyTemplate),
			Recipients: targets,
			Data:       templateData(cfg, params, batch.Results),
		})
		if err != nil {
			log.Error("Failed to create notification events", zap.Error(err))
		}
	}

	return nil
}

// parameterSets rows of the parameter query when the config names one, else the
// config's own parameters
func (s *Scheduled) parameterSets(ctx context.Context, cfg models.NotificationConfig) ([]map[string]interface{}, error) {
	if cfg.ParameterQueryID.Valid && cfg.ParameterQueryID.String != "" {
		q, err := s.queries.FindByID(ctx, cfg.ParameterQueryID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to load parameter query for config %s: %w", cfg.ID, err)
		}
		if q == nil {
			return nil, fmt.Errorf("parameter query %s of config %s not found", cfg.ParameterQueryID.String, cfg.ID)
		}
		rows, err := s.engine.RunRows(ctx, q.Query, map[string]interface{}{})
		if err != nil {
			return nil, fmt.Errorf("failed to run parameter query for config %s: %w", cfg.ID, err)
		}
		return rows, nil
	}
	return cfg.ParameterSets()
}

// templateData parameters, then query results by reference name, then "config"
func templateData(cfg models.NotificationConfig, params, results map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(params)+len(results)+1)
	for k, v := range params {
		data[k] = v
	}
	for k, v := range results {
		data[k] = v
	}
	data["config"] = configData(cfg)
	return data
}

// NextDue first slot of the schedule strictly after now. Slots are start plus whole
// periods; a zero start counts from now.
func NextDue(frequency string, start, now time.Time) time.Time {
	if start.IsZero() {
		start = now
	}
	if start.After(now) {
		return start
	}

	switch frequency {
	case models.FrequencyMonthly:
		months := (now.Year()-start.Year())*12 + int(now.Month()-start.Month())
		if months < 0 {
			months = 0
		}
		next := start.AddDate(0, months, 0)
		for !next.After(now) {
			months++
			next = start.AddDate(0, months, 0)
		}
		return next
	default:
		period := periodOf(frequency)
		n := now.Sub(start)/period + 1
		return start.Add(n * period)
	}
}

func periodOf(frequency string) time.Duration {
	switch frequency {
	case models.FrequencyHourly:
		return time.Hour
	case models.FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
