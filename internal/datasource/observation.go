package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guregu/null/v5"
	"go.uber.org/zap"
)

// Observation latest reading of one entity. Value is nil when the source row
// has no value.
type Observation struct {
	Timestamp time.Time
	Value     *float64
}

// ObservationSource reads the latest observation per entity
type ObservationSource interface {
	// Latest returns nil when the entity has never reported
	Latest(ctx context.Context, entityID string) (*Observation, error)
}

// SQLObservationSource ObservationSource over a configurable query.
// The query takes the entity id as $1 and returns (timestamp, nullable value).
type SQLObservationSource struct {
	db     *sql.DB
	query  string
	logger *zap.Logger
}

// NewSQLObservationSource creates the observation source
func NewSQLObservationSource(db *sql.DB, query string, logger *zap.Logger) *SQLObservationSource {
	return &SQLObservationSource{
		db:     db,
		query:  query,
		logger: logger,
	}
}

func (s *SQLObservationSource) Latest(ctx context.Context, entityID string) (*Observation, error) {
	var ts time.Time
	var value null.Float

	err := s.db.QueryRowContext(ctx, s.query, entityID).Scan(&ts, &value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest observation for %s: %w", entityID, err)
	}

	return &Observation{
		Timestamp: ts,
		Value:     value.Ptr(),
	}, nil
}
