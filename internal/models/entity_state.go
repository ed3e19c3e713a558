package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityStatus classified status of a monitored entity
type EntityStatus string

const (
	StatusNoData    EntityStatus = "NoData"
	StatusHighValue EntityStatus = "HighValue"
	StatusLowValue  EntityStatus = "LowValue"
	StatusOk        EntityStatus = "Ok"
)

// Valid reports whether s is one of the known statuses
func (s EntityStatus) Valid() bool {
	switch s {
	case StatusNoData, StatusHighValue, StatusLowValue, StatusOk:
		return true
	}
	return false
}

// EntityState persisted per-entity state, stored under StateKey
type EntityState struct {
	EntityID  string       `json:"entity_id"`
	Status    EntityStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Value     *float64     `json:"value"`
}

// StateKey key of an entity's state inside the evaluator namespace
func StateKey(evaluator, entityID string) string {
	return fmt.Sprintf("state_%s_%s", evaluator, entityID)
}

// ParseEntityState decodes a stored state. Unknown statuses are rejected.
func ParseEntityState(raw string) (EntityState, error) {
	var s EntityState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return EntityState{}, fmt.Errorf("failed to parse entity state: %w", err)
	}
	if !s.Status.Valid() {
		return EntityState{}, fmt.Errorf("entity state has unknown status %q", s.Status)
	}
	return s, nil
}

// Encode serializes the state for the state store
func (s EntityState) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode entity state: %w", err)
	}
	return string(b), nil
}
