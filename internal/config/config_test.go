package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "notify", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "postgres", cfg.State.Backend)
	assert.Equal(t, "notify:state:", cfg.State.KeyPrefix)
	assert.Equal(t, time.Minute, cfg.Scheduler.TickInterval)

	assert.Equal(t, 8.0, cfg.ColdChain.HighThreshold)
	assert.Equal(t, 2.0, cfg.ColdChain.LowThreshold)
	assert.Equal(t, time.Hour, cfg.ColdChain.MaxAge)
	assert.Equal(t, DefaultLatestObservationQuery, cfg.ColdChain.LatestObservationQuery)

	assert.Equal(t, "topic", cfg.Queue.Backend)
	assert.Equal(t, "mem://notification_events", cfg.Queue.TopicURL)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "notify-db")
	t.Setenv("DB_NAME", "notify_test")
	t.Setenv("DATASOURCE_HOST", "msupply-db")
	t.Setenv("DATASOURCE_NAME", "dashboard")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "15s")
	t.Setenv("COLDCHAIN_HIGH_THRESHOLD", "22")
	t.Setenv("COLDCHAIN_LOW_THRESHOLD", "20")
	t.Setenv("COLDCHAIN_MAX_AGE", "30m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "notify-db", cfg.Database.Host)
	assert.Equal(t, "notify_test", cfg.Database.Database)
	assert.Equal(t, "msupply-db", cfg.Datasource.Host)
	assert.Equal(t, "dashboard", cfg.Datasource.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis", cfg.State.Backend)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 22.0, cfg.ColdChain.HighThreshold)
	assert.Equal(t, 20.0, cfg.ColdChain.LowThreshold)
	assert.Equal(t, 30*time.Minute, cfg.ColdChain.MaxAge)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_FileOverlaysEnvironment(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  host: from-file
queue:
  backend: redis
  stream: events:test
templates:
  dir: /etc/notify/templates
  watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Database.Host)
	// untouched by the file, still the default
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "events:test", cfg.Queue.Stream)
	assert.Equal(t, "/etc/notify/templates", cfg.Templates.Dir)
	assert.True(t, cfg.Templates.Watch)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	os.Clearenv()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"state backend", map[string]string{"STATE_BACKEND": "etcd"}, "unknown state backend"},
		{"queue backend", map[string]string{"QUEUE_BACKEND": "sqs"}, "unknown queue backend"},
		{"thresholds", map[string]string{"COLDCHAIN_LOW_THRESHOLD": "9"}, "must be below high threshold"},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}, "unknown log level"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
