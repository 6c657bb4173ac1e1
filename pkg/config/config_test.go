package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "@every 1m", cfg.Reaper.Schedule)
	assert.Equal(t, 5*time.Minute, cfg.Reaper.VisibilityTimeout)
	assert.Equal(t, 6, cfg.Dispatcher.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HUBCAP_POSTGRES_URL", "postgres://localhost/hubcap?sslmode=disable")
	t.Setenv("HUBCAP_PORT", "3000")
	t.Setenv("HUBCAP_WORKERS", "8")
	t.Setenv("HUBCAP_MAX_ATTEMPTS", "3")
	t.Setenv("HUBCAP_RETRY_INITIAL_DELAY", "5s")
	t.Setenv("HUBCAP_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/hubcap?sslmode=disable", cfg.Storage.PostgresURL)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, 3, cfg.Dispatcher.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.Retry.InitialDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	t.Setenv("HUBCAP_STORAGE_TYPE", "postgres")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	t.Setenv("HUBCAP_STORAGE_TYPE", "cassandra")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateVisibilityTimeoutBound(t *testing.T) {
	// the reaper must not reclaim tasks that are still running
	t.Setenv("HUBCAP_HANDLER_TIMEOUT", "10m")
	t.Setenv("HUBCAP_VISIBILITY_TIMEOUT", "5m")

	_, err := LoadConfig()
	assert.Error(t, err)
}
