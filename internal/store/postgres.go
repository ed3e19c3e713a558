package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// PostgresStateStore StateStore over plugin_data(plugin_name, key, value)
type PostgresStateStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStateStore creates the postgres state store
func NewPostgresStateStore(db *sql.DB, logger *zap.Logger) *PostgresStateStore {
	return &PostgresStateStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStateStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	query := `
		SELECT value
		FROM plugin_data
		WHERE plugin_name = $1
		  AND key = $2
	`

	var value string
	err := s.db.QueryRowContext(ctx, query, namespace, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get plugin data %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Set upserts in a single statement so the write is its own transaction
func (s *PostgresStateStore) Set(ctx context.Context, namespace, key, value string) error {
	query := `
		INSERT INTO plugin_data (plugin_name, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (plugin_name, key)
		DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := s.db.ExecContext(ctx, query, namespace, key, value); err != nil {
		return fmt.Errorf("failed to set plugin data %s/%s: %w", namespace, key, err)
	}

	s.logger.Debug("Plugin data saved",
		zap.String("plugin_name", namespace),
		zap.String("key", key),
	)
	return nil
}
