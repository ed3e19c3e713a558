package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"owl-notify/common/config"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver used for the datasource
	_ "github.com/lib/pq"
)

// NewPostgresDB opens the notify store (configs, recipients, events, plugin data)
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return open("postgres", cfg.GetDSN(), cfg)
}

// NewDatasourceDB opens the external relational source the queries run against.
// It is kept on its own pool so slow report queries never hold notify store connections.
func NewDatasourceDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return open("pgx", cfg.GetURL(), cfg)
}

func open(driver, dsn string, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// Close closes db when it is set
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
