package notification

import (
	"context"
	"fmt"

	"owl-notify/internal/models"

	"go.uber.org/zap"
)

// RecipientSource stored recipients and SQL recipient lists
type RecipientSource interface {
	FindTargets(ctx context.Context, recipientIDs, recipientListIDs []string) ([]models.NotificationTarget, error)
	FindSqlRecipientLists(ctx context.Context, ids []string) ([]models.SqlRecipientList, error)
}

// RowQuerier runs a templated query and returns its rows
type RowQuerier interface {
	RunRows(ctx context.Context, tmpl string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// RecipientResolver flattens a config's recipients into targets
type RecipientResolver struct {
	source  RecipientSource
	querier RowQuerier
	logger  *zap.Logger
}

// NewRecipientResolver creates the resolver
func NewRecipientResolver(source RecipientSource, querier RowQuerier, logger *zap.Logger) *RecipientResolver {
	return &RecipientResolver{
		source:  source,
		querier: querier,
		logger:  logger,
	}
}

// Targets returns the direct recipients, recipient list members and SQL recipient list
// rows for cfg. SQL lists are rendered with params. A failing SQL list or a bad row is
// logged and skipped. The result is not deduplicated.
func (r *RecipientResolver) Targets(ctx context.Context, cfg models.NotificationConfig, params map[string]interface{}) ([]models.NotificationTarget, error) {
	targets, err := r.source.FindTargets(ctx, cfg.RecipientIDs, cfg.RecipientListIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients for config %s: %w", cfg.ID, err)
	}

	if len(cfg.SqlRecipientListIDs) == 0 {
		return targets, nil
	}

	lists, err := r.source.FindSqlRecipientLists(ctx, cfg.SqlRecipientListIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get sql recipient lists for config %s: %w", cfg.ID, err)
	}

	for _, list := range lists {
		rows, err := r.querier.RunRows(ctx, list.Query, params)
		if err != nil {
			r.logger.Error("Failed to run sql recipient list",
				zap.String("config_id", cfg.ID),
				zap.String("sql_recipient_list_id", list.ID),
				zap.Error(err),
			)
			continue
		}

		for i, row := range rows {
			target, ok := targetFromRow(row)
			if !ok {
				r.logger.Warn("Skipping sql recipient row without name, to_address and notification_type",
					zap.String("sql_recipient_list_id", list.ID),
					zap.Int("row", i),
				)
				continue
			}
			targets = append(targets, target)
		}
	}

	return targets, nil
}

func targetFromRow(row map[string]interface{}) (models.NotificationTarget, bool) {
	name, ok1 := row["name"].(string)
	address, ok2 := row["to_address"].(string)
	notificationType, ok3 := row["notification_type"].(string)
	if !ok1 || !ok2 || !ok3 || address == "" {
		return models.NotificationTarget{}, false
	}
	return models.NotificationTarget{
		Name:             name,
		ToAddress:        address,
		NotificationType: models.ParseNotificationType(notificationType),
	}, true
}
