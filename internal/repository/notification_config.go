package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"owl-notify/internal/models"

	"go.uber.org/zap"
)

// NotificationConfigRepository notification_config repository
type NotificationConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationConfigRepository creates the repository
func NewNotificationConfigRepository(db *sql.DB, logger *zap.Logger) *NotificationConfigRepository {
	return &NotificationConfigRepository{
		db:     db,
		logger: logger,
	}
}

const notificationConfigColumns = `
	id,
	title,
	kind,
	status,
	configuration_data,
	parameters,
	parameter_query_id,
	recipient_ids,
	recipient_list_ids,
	sql_recipient_list_ids,
	last_run_datetime,
	next_due_datetime`

// FindAllDueByKind returns enabled configs of kind whose next_due_datetime is null or <= now
func (r *NotificationConfigRepository) FindAllDueByKind(ctx context.Context, kind models.ConfigKind, now time.Time) ([]models.NotificationConfig, error) {
	query := `
		SELECT` + notificationConfigColumns + `
		FROM notification_config
		WHERE kind = $1
		  AND status = $2
		  AND (next_due_datetime IS NULL OR next_due_datetime <= $3)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, string(kind), string(models.ConfigEnabled), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due configs: %w", err)
	}
	defer rows.Close()

	var configs []models.NotificationConfig
	for rows.Next() {
		cfg, err := scanNotificationConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due configs: %w", err)
	}

	return configs, nil
}

// MarkRun writes last_run_datetime in its own statement
func (r *NotificationConfigRepository) MarkRun(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE notification_config
		SET last_run_datetime = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark config %s as run: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark config %s as run: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("notification config not found: id=%s", id)
	}
	return nil
}

// SetNextDue writes next_due_datetime
func (r *NotificationConfigRepository) SetNextDue(ctx context.Context, id string, next time.Time) error {
	query := `
		UPDATE notification_config
		SET next_due_datetime = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, next); err != nil {
		return fmt.Errorf("failed to set next due for config %s: %w", id, err)
	}
	return nil
}

func scanNotificationConfig(rows *sql.Rows) (models.NotificationConfig, error) {
	var cfg models.NotificationConfig
	var kind, status string
	var configurationData, parameters sql.NullString
	var recipientIDs, recipientListIDs, sqlRecipientListIDs sql.NullString

	err := rows.Scan(
		&cfg.ID,
		&cfg.Title,
		&kind,
		&status,
		&configurationData,
		&parameters,
		&cfg.ParameterQueryID,
		&recipientIDs,
		&recipientListIDs,
		&sqlRecipientListIDs,
		&cfg.LastRunDatetime,
		&cfg.NextDueDatetime,
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to scan notification config: %w", err)
	}

	cfg.Kind = models.ConfigKind(kind)
	cfg.Status = models.ConfigStatus(status)
	cfg.ConfigurationData = configurationData.String
	cfg.Parameters = parameters.String

	if cfg.RecipientIDs, err = parseIDList(recipientIDs); err != nil {
		return cfg, fmt.Errorf("config %s recipient_ids: %w", cfg.ID, err)
	}
	if cfg.RecipientListIDs, err = parseIDList(recipientListIDs); err != nil {
		return cfg, fmt.Errorf("config %s recipient_list_ids: %w", cfg.ID, err)
	}
	if cfg.SqlRecipientListIDs, err = parseIDList(sqlRecipientListIDs); err != nil {
		return cfg, fmt.Errorf("config %s sql_recipient_list_ids: %w", cfg.ID, err)
	}

	return cfg, nil
}

// parseIDList decodes a JSON array of ids stored as text
func parseIDList(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw.String), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse id list: %w", err)
	}
	return ids, nil
}
