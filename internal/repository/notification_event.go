package repository

import (
	"context"
	"database/sql"
	"fmt"

	"owl-notify/internal/models"

	"go.uber.org/zap"
)

// NotificationEventRepository notification_event repository
type NotificationEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationEventRepository creates the repository
func NewNotificationEventRepository(db *sql.DB, logger *zap.Logger) *NotificationEventRepository {
	return &NotificationEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert writes one event row
func (r *NotificationEventRepository) Insert(ctx context.Context, event *models.NotificationEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}

	query := `
		INSERT INTO notification_event (
			id,
			to_address,
			notification_type,
			title,
			message,
			context,
			status,
			error_message,
			send_attempts,
			retry_at,
			sent_at,
			created_at,
			updated_at,
			notification_config_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.ToAddress,
		string(event.NotificationType),
		event.Title,
		event.Message,
		event.Context,
		string(event.Status),
		event.ErrorMessage,
		event.SendAttempts,
		event.RetryAt,
		event.SentAt,
		event.CreatedAt,
		event.UpdatedAt,
		event.NotificationConfigID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification event %s: %w", event.ID, err)
	}

	r.logger.Debug("Notification event inserted",
		zap.String("event_id", event.ID),
		zap.String("status", string(event.Status)),
		zap.String("to_address", event.ToAddress),
	)
	return nil
}
