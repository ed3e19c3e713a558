package repository

import (
	"context"
	"database/sql"
	"fmt"

	"owl-notify/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotificationQueryRepository notification_query repository
type NotificationQueryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationQueryRepository creates the repository
func NewNotificationQueryRepository(db *sql.DB, logger *zap.Logger) *NotificationQueryRepository {
	return &NotificationQueryRepository{
		db:     db,
		logger: logger,
	}
}

// FindByIDs returns the queries in the order of ids; unknown ids are logged and dropped
func (r *NotificationQueryRepository) FindByIDs(ctx context.Context, ids []string) ([]models.NamedQuery, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, reference_name, query
		FROM notification_query
		WHERE id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query notification queries: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.NamedQuery, len(ids))
	for rows.Next() {
		var q models.NamedQuery
		if err := rows.Scan(&q.ID, &q.ReferenceName, &q.Query); err != nil {
			return nil, fmt.Errorf("failed to scan notification query: %w", err)
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification queries: %w", err)
	}

	queries := make([]models.NamedQuery, 0, len(byID))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			r.logger.Warn("Notification query not found", zap.String("query_id", id))
			continue
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// FindByID returns one query, nil when absent
func (r *NotificationQueryRepository) FindByID(ctx context.Context, id string) (*models.NamedQuery, error) {
	query := `
		SELECT id, reference_name, query
		FROM notification_query
		WHERE id = $1
	`

	var q models.NamedQuery
	err := r.db.QueryRowContext(ctx, query, id).Scan(&q.ID, &q.ReferenceName, &q.Query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification query %s: %w", id, err)
	}
	return &q, nil
}
