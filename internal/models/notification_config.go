package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v5"
)

// ConfigKind notification config kind (notification_config.kind)
type ConfigKind string

const (
	KindColdChain ConfigKind = "ColdChain"
	KindScheduled ConfigKind = "Scheduled"
)

// ConfigStatus notification config status
type ConfigStatus string

const (
	ConfigEnabled  ConfigStatus = "Enabled"
	ConfigDisabled ConfigStatus = "Disabled"
)

// ErrUnknownKind configuration_data was stored under a kind nothing can decode
var ErrUnknownKind = errors.New("unknown notification config kind")

// NotificationConfig notification configuration (notification_config table)
type NotificationConfig struct {
	ID                  string
	Title               string
	Kind                ConfigKind
	Status              ConfigStatus
	ConfigurationData   string // per-kind JSON, see DecodeKindConfig
	Parameters          string // JSON array of parameter objects
	ParameterQueryID    null.String
	RecipientIDs        []string
	RecipientListIDs    []string
	SqlRecipientListIDs []string
	LastRunDatetime     null.Time
	NextDueDatetime     null.Time
}

// ParameterSets decodes Parameters. Empty or "[]" yields a single empty set so
// a config without parameters still runs once.
func (c *NotificationConfig) ParameterSets() ([]map[string]interface{}, error) {
	raw := strings.TrimSpace(c.Parameters)
	if raw == "" {
		return []map[string]interface{}{{}}, nil
	}

	var sets []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &sets); err != nil {
		return nil, fmt.Errorf("failed to parse parameters of config %s: %w", c.ID, err)
	}
	if len(sets) == 0 {
		return []map[string]interface{}{{}}, nil
	}
	for i := range sets {
		if sets[i] == nil {
			sets[i] = map[string]interface{}{}
		}
	}
	return sets, nil
}

// KindConfig per-kind configuration payload
type KindConfig interface {
	Kind() ConfigKind
	Validate() error
}

// ColdChainConfig ColdChain payload
type ColdChainConfig struct {
	EntityIDs []string `json:"entity_ids"`
	// older payloads name the same list sensor_ids
	SensorIDs []string `json:"sensor_ids,omitempty"`
}

func (ColdChainConfig) Kind() ConfigKind { return KindColdChain }

// Validate requires at least one entity
func (c ColdChainConfig) Validate() error {
	if len(c.EntityIDs) == 0 {
		return fmt.Errorf("coldchain config has no entity_ids")
	}
	for _, id := range c.EntityIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("coldchain config has an empty entity id")
		}
	}
	return nil
}

// Schedule frequencies
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// ScheduledConfig Scheduled (report) payload
type ScheduledConfig struct {
	SubjectTemplate      string   `json:"subject_template"`
	BodyTemplate         string   `json:"body_template"`
	NotificationQueryIDs []string `json:"notification_query_ids"`
	RequiredQueryIDs     []string `json:"required_query_ids"`
	ScheduleFrequency    string   `json:"schedule_frequency"`
	ScheduleStartTime    string   `json:"schedule_start_time"` // RFC3339
}

func (ScheduledConfig) Kind() ConfigKind { return KindScheduled }

// Validate checks the body template and frequency
func (c ScheduledConfig) Validate() error {
	if strings.TrimSpace(c.BodyTemplate) == "" {
		return fmt.Errorf("scheduled config has no body_template")
	}
	switch c.ScheduleFrequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("scheduled config has invalid schedule_frequency %q", c.ScheduleFrequency)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	return nil
}

// StartTime parses ScheduleStartTime, zero when unset
func (c ScheduledConfig) StartTime() (time.Time, error) {
	if c.ScheduleStartTime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.ScheduleStartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled config has invalid schedule_start_time: %w", err)
	}
	return t, nil
}

// IsRequired reports whether queryID is listed in RequiredQueryIDs
func (c ScheduledConfig) IsRequired(queryID string) bool {
	for _, id := range c.RequiredQueryIDs {
		if id == queryID {
			return true
		}
	}
	return false
}

// DecodeKindConfig decodes configuration_data for kind and validates it
func DecodeKindConfig(kind ConfigKind, data string) (KindConfig, error) {
	switch kind {
	case KindColdChain:
		var c ColdChainConfig
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to parse coldchain config: %w", err)
		}
		if len(c.EntityIDs) == 0 {
			c.EntityIDs = c.SensorIDs
		}
		c.SensorIDs = nil
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	case KindScheduled:
		var c ScheduledConfig
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
