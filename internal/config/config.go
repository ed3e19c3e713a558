package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"owl-notify/common/config"
	"owl-notify/common/logger"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config notify service configuration
type Config struct {
	// notify store: configurations, recipients, events, plugin data
	Database config.DatabaseConfig `yaml:"database" envconfig:"DB"`
	// external relational source the queries and observations run against
	Datasource config.DatabaseConfig `yaml:"datasource" envconfig:"DATASOURCE"`
	Redis      config.RedisConfig    `yaml:"redis" envconfig:"REDIS"`

	State struct {
		// postgres, redis or memory
		Backend   string `yaml:"backend" envconfig:"BACKEND" default:"postgres"`
		KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX" default:"notify:state:"`
	} `yaml:"state" envconfig:"STATE"`

	Scheduler struct {
		TickInterval time.Duration `yaml:"tick_interval" envconfig:"TICK_INTERVAL" default:"1m"`
	} `yaml:"scheduler" envconfig:"SCHEDULER"`

	ColdChain struct {
		HighThreshold float64       `yaml:"high_threshold" envconfig:"HIGH_THRESHOLD" default:"8"`
		LowThreshold  float64       `yaml:"low_threshold" envconfig:"LOW_THRESHOLD" default:"2"`
		MaxAge        time.Duration `yaml:"max_age" envconfig:"MAX_AGE" default:"1h"`
		// $1 is the entity id; must return log_datetime and a nullable temperature
		LatestObservationQuery string `yaml:"latest_observation_query" envconfig:"LATEST_OBSERVATION_QUERY"`
	} `yaml:"coldchain" envconfig:"COLDCHAIN"`

	Templates struct {
		// optional directory layered over the embedded defaults
		Dir   string `yaml:"dir" envconfig:"DIR"`
		Watch bool   `yaml:"watch" envconfig:"WATCH" default:"false"`
	} `yaml:"templates" envconfig:"TEMPLATES"`

	Queue struct {
		// topic, redis or none
		Backend  string `yaml:"backend" envconfig:"BACKEND" default:"topic"`
		TopicURL string `yaml:"topic_url" envconfig:"TOPIC_URL" default:"mem://notification_events"`
		Stream   string `yaml:"stream" envconfig:"STREAM" default:"notification:events"`
		MaxLen   int64  `yaml:"max_len" envconfig:"MAX_LEN" default:"10000"`
	} `yaml:"queue" envconfig:"QUEUE"`

	Metrics struct {
		Addr string `yaml:"addr" envconfig:"ADDR" default:":9464"`
	} `yaml:"metrics" envconfig:"METRICS"`

	Log struct {
		Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
		Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	} `yaml:"log" envconfig:"LOG"`
}

// DefaultLatestObservationQuery reads the newest temperature log for one sensor
const DefaultLatestObservationQuery = `SELECT log_datetime, temperature
FROM temperature_log
WHERE sensor_id = $1
ORDER BY log_datetime DESC
LIMIT 1`

// Load reads defaults and environment variables, then overlays the YAML file at path
// when it exists. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if cfg.ColdChain.LatestObservationQuery == "" {
		cfg.ColdChain.LatestObservationQuery = DefaultLatestObservationQuery
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	switch c.Queue.Backend {
	case "topic", "redis", "none":
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick interval must be positive, got %s", c.Scheduler.TickInterval)
	}
	if c.ColdChain.LowThreshold >= c.ColdChain.HighThreshold {
		return fmt.Errorf("coldchain low threshold %v must be below high threshold %v",
			c.ColdChain.LowThreshold, c.ColdChain.HighThreshold)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !logger.ValidFormat(c.Log.Format) {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.ColdChain.MaxAge <= 0 {
		return fmt.Errorf("coldchain max age must be positive, got %s", c.ColdChain.MaxAge)
	}
	return nil
}
