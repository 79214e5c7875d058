/**
 * @description
 * Configuration loader for the RHINO signal backend.
 * Reads environment variables (optionally from .env), sets defaults and performs strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if DATABASE_URL is missing.
 * - REDIS_URL is optional; without it realtime fan-out stays in-process.
 * - CATALOG_PATH optionally overrides the embedded period/category tables.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	Realtime   RealtimeConfig
	Reconciler ReconcilerConfig
	Catalog    CatalogConfig
	Log        LogConfig
	Jobs       JobsConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        string
	WSPort      string // dedicated listener for the WebSocket channel
	MetricsPort string // worker /metrics listener; empty disables it
	Env         string // "development", "staging", "production" or "test"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// RealtimeConfig holds fan-out settings for live dashboard subscribers
type RealtimeConfig struct {
	Channel          string
	SubscriberBuffer int
}

// ReconcilerConfig holds the staleness policy and schedule
type ReconcilerConfig struct {
	StaleAfter time.Duration
	Cron       string
	RunOnStart bool
}

// CatalogConfig points at an optional YAML override of the lookup tables
type CatalogConfig struct {
	Path string
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string
	Format string
}

// JobsConfig holds the shared secret required by the job trigger endpoint
type JobsConfig struct {
	Secret string
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			WSPort:      getEnv("WS_PORT", "8081"),
			MetricsPort: getEnv("METRICS_PORT", "9091"),
			Env:         getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Realtime: RealtimeConfig{
			Channel:          getEnv("SIGNALS_CHANNEL", "rhino:signal_updates"),
			SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 64),
		},
		Reconciler: ReconcilerConfig{
			StaleAfter: getEnvAsDuration("STALE_AFTER", 7*24*time.Hour),
			Cron:       getEnv("RECONCILE_CRON", "0 5 0 * * *"),
			RunOnStart: getEnvAsBool("RECONCILE_ON_START", false),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Jobs: JobsConfig{
			Secret: sanitizeCredential(getEnv("JOB_SYNC_SECRET", "")),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive, got %s", cfg.Reconciler.StaleAfter)
	}
	if cfg.Realtime.SubscriberBuffer <= 0 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", cfg.Realtime.SubscriberBuffer)
	}
	if cfg.Jobs.Secret == "" && cfg.Server.Env == "production" {
		fmt.Println("Warning: JOB_SYNC_SECRET is missing. The reconcile trigger endpoint will reject all calls.")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// Helper to get env var as bool
func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("36h") and a day suffix ("7d").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if strings.HasSuffix(valueStr, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(valueStr, "d")); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
