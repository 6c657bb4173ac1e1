package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/platinummonkey/hubcap/pkg/dispatcher"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Storage    storage.Config
	Dispatcher dispatcher.Config
	Reaper     ReaperConfig
	LogLevel   string
}

// ServerConfig holds HTTP server configuration for the ops API and the
// health/metrics listener.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ReaperConfig holds the stale-task sweep settings.
type ReaperConfig struct {
	Schedule          string
	VisibilityTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:     loadServerConfig(),
		Storage:    loadStorageConfig(),
		Dispatcher: loadDispatcherConfig(),
		Reaper:     loadReaperConfig(),
		LogLevel:   getEnv("HUBCAP_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HUBCAP_HOST", "0.0.0.0"),
		Port:            getEnv("HUBCAP_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HUBCAP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HUBCAP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("HUBCAP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("HUBCAP_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HUBCAP_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("HUBCAP_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	if pgURL := getEnv("HUBCAP_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
		cfg.Type = "postgres"
	}
	if maxConns := getEnvInt("HUBCAP_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("HUBCAP_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("HUBCAP_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("HUBCAP_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("HUBCAP_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	cfg.RedisDB = getEnvInt("HUBCAP_REDIS_DB", cfg.RedisDB)
	cfg.CacheEnabled = getEnvBool("HUBCAP_CACHE_ENABLED", cfg.CacheEnabled)
	if ttl := getEnvDuration("HUBCAP_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}
	if size := getEnvInt("HUBCAP_L1_CACHE_SIZE", 0); size > 0 {
		cfg.L1CacheSize = size
	}

	return cfg
}

func loadDispatcherConfig() dispatcher.Config {
	cfg := dispatcher.DefaultConfig()

	if workers := getEnvInt("HUBCAP_WORKERS", 0); workers > 0 {
		cfg.Workers = workers
	}
	if interval := getEnvDuration("HUBCAP_POLL_INTERVAL", 0); interval > 0 {
		cfg.PollInterval = interval
	}
	if timeout := getEnvDuration("HUBCAP_HANDLER_TIMEOUT", 0); timeout > 0 {
		cfg.HandlerTimeout = timeout
	}
	if attempts := getEnvInt("HUBCAP_MAX_ATTEMPTS", 0); attempts > 0 {
		cfg.Retry.MaxAttempts = attempts
	}
	if delay := getEnvDuration("HUBCAP_RETRY_INITIAL_DELAY", 0); delay > 0 {
		cfg.Retry.InitialDelay = delay
	}
	if delay := getEnvDuration("HUBCAP_RETRY_MAX_DELAY", 0); delay > 0 {
		cfg.Retry.MaxDelay = delay
	}

	return cfg
}

func loadReaperConfig() ReaperConfig {
	return ReaperConfig{
		Schedule:          getEnv("HUBCAP_REAPER_SCHEDULE", "@every 1m"),
		VisibilityTimeout: getEnvDuration("HUBCAP_VISIBILITY_TIMEOUT", 5*time.Minute),
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("HUBCAP_POSTGRES_URL is required for postgres storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.Reaper.VisibilityTimeout <= c.Dispatcher.HandlerTimeout {
		return fmt.Errorf("visibility timeout %s must exceed handler timeout %s",
			c.Reaper.VisibilityTimeout, c.Dispatcher.HandlerTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
