package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Executor runs rendered SQL against the external source and returns the rows
// as a JSON array of objects
type Executor interface {
	Execute(ctx context.Context, query string) ([]byte, error)
}

// SQLExecutor Executor over a postgres pool. Postgres builds the JSON so column
// types never need mapping here.
type SQLExecutor struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLExecutor creates the executor
func NewSQLExecutor(db *sql.DB, logger *zap.Logger) *SQLExecutor {
	return &SQLExecutor{
		db:     db,
		logger: logger,
	}
}

// WrapJSON wraps a row query so it returns a single json array value
func WrapJSON(query string) string {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, "; \n\t")
	return "SELECT COALESCE(json_agg(q), '[]'::json) FROM (" + q + ") q"
}

func (e *SQLExecutor) Execute(ctx context.Context, query string) ([]byte, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}

	var rows []byte
	if err := e.db.QueryRowContext(ctx, WrapJSON(query)).Scan(&rows); err != nil {
		return nil, fmt.Errorf("failed to execute datasource query: %w", err)
	}
	return rows, nil
}
