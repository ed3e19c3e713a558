package repository

import (
	"context"
	"database/sql"
	"fmt"

	"owl-notify/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// RecipientRepository recipient / recipient_list_member / sql_recipient_list reads
type RecipientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecipientRepository creates the repository
func NewRecipientRepository(db *sql.DB, logger *zap.Logger) *RecipientRepository {
	return &RecipientRepository{
		db:     db,
		logger: logger,
	}
}

// FindTargets returns the recipients named directly plus the members of the given lists.
// Deleted recipients are excluded.
func (r *RecipientRepository) FindTargets(ctx context.Context, recipientIDs, recipientListIDs []string) ([]models.NotificationTarget, error) {
	if len(recipientIDs) == 0 && len(recipientListIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT r.name, r.to_address, r.notification_type
		FROM recipient r
		WHERE r.deleted_datetime IS NULL
		  AND (
			r.id = ANY($1)
			OR r.id IN (
				SELECT m.recipient_id
				FROM recipient_list_member m
				WHERE m.recipient_list_id = ANY($2)
			)
		  )
		ORDER BY r.to_address
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(recipientIDs), pq.Array(recipientListIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var targets []models.NotificationTarget
	for rows.Next() {
		var t models.NotificationTarget
		var notificationType string
		if err := rows.Scan(&t.Name, &t.ToAddress, &notificationType); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		t.NotificationType = models.ParseNotificationType(notificationType)
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return targets, nil
}

// FindSqlRecipientLists returns the SQL recipient lists with the given ids
func (r *RecipientRepository) FindSqlRecipientLists(ctx context.Context, ids []string) ([]models.SqlRecipientList, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, name, query
		FROM sql_recipient_list
		WHERE id = ANY($1)
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query sql recipient lists: %w", err)
	}
	defer rows.Close()

	var lists []models.SqlRecipientList
	for rows.Next() {
		var l models.SqlRecipientList
		if err := rows.Scan(&l.ID, &l.Name, &l.Query); err != nil {
			return nil, fmt.Errorf("failed to scan sql recipient list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sql recipient lists: %w", err)
	}

	return lists, nil
}
