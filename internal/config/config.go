// Package config defines the static process configuration and validation
// helpers. Runtime-mutable trading settings live in procconfig.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYFLUX_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Workforce  WorkforceConfig  `toml:"workforce"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Watchlist  WatchlistConfig  `toml:"watchlist"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Storage    string           `toml:"storage"` // "memory" or "postgres"
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints and credentials.
type PolymarketConfig struct {
	ClobHost       string `toml:"clob_host"`
	GammaHost      string `toml:"gamma_host"`
	Address        string `toml:"address"`
	ApiKey         string `toml:"api_key"`
	ApiSecret      string `toml:"api_secret"`
	ApiPassphrase  string `toml:"api_passphrase"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WorkforceConfig holds the agent workforce service endpoint.
type WorkforceConfig struct {
	Endpoint       string `toml:"endpoint"`
	ApiKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds the scan manager's process-level knobs. The scan
// cadence and batch sizing are runtime-mutable and live in procconfig.
type PipelineConfig struct {
	Enabled bool `toml:"enabled"`

	// RuntimeConfigPath is where the runtime configuration JSON is persisted.
	RuntimeConfigPath string `toml:"runtime_config_path"`

	// CachePath persists the market feed cache across restarts. Empty
	// disables persistence.
	CachePath string `toml:"cache_path"`

	// ReconcileAfterMinutes marks pending trades failed after this many
	// minutes without exchange confirmation.
	ReconcileAfterMinutes int `toml:"reconcile_after_minutes"`

	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// WatchlistConfig holds the exit monitor's evaluation settings.
type WatchlistConfig struct {
	EvaluateIntervalSeconds int     `toml:"evaluate_interval_seconds"`
	GlobalROIEnabled        bool    `toml:"global_roi_enabled"`
	GlobalROIThresholdPct   float64 `toml:"global_roi_threshold_pct"`
	GlobalROIFastPct        float64 `toml:"global_roi_fast_pct"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`

	// RateLimitPerMinute throttles API clients per IP. Zero disables.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the baseline configuration before TOML and env overrides.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:       "https://clob.polymarket.com",
			GammaHost:      "https://gamma-api.polymarket.com",
			TimeoutSeconds: 30,
		},
		Workforce: WorkforceConfig{
			TimeoutSeconds: 120,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Pipeline: PipelineConfig{
			Enabled:               true,
			RuntimeConfigPath:     "data/runtime_config.json",
			CachePath:             "data/feed_cache.json",
			ReconcileAfterMinutes: 30,
			ArchiveRetentionDays:  90,
			ArchiveCron:           "0 3 1 * *",
		},
		Watchlist: WatchlistConfig{
			EvaluateIntervalSeconds: 60,
			GlobalROIEnabled:        false,
			GlobalROIThresholdPct:   0.05,
			GlobalROIFastPct:        0.10,
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 240,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "trade_cancelled", "stop_loss", "take_profit", "global_roi"},
		},
		Storage:  "memory",
		LogLevel: "info",
	}
}

// validStorage enumerates the accepted values for Config.Storage.
var validStorage = map[string]bool{
	"memory":   true,
	"postgres": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: memory, postgres)", c.Storage))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.TimeoutSeconds < 1 {
		errs = append(errs, "polymarket: timeout_seconds must be >= 1")
	}

	if c.Pipeline.Enabled && c.Workforce.Endpoint == "" {
		errs = append(errs, "workforce: endpoint is required when the pipeline is enabled")
	}

	if strings.EqualFold(c.Storage, "postgres") {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Pipeline.ReconcileAfterMinutes < 1 {
		errs = append(errs, "pipeline: reconcile_after_minutes must be >= 1")
	}
	if c.Pipeline.ArchiveRetentionDays < 1 {
		errs = append(errs, "pipeline: archive_retention_days must be >= 1")
	}

	if c.Watchlist.EvaluateIntervalSeconds < 1 {
		errs = append(errs, "watchlist: evaluate_interval_seconds must be >= 1")
	}
	if c.Watchlist.GlobalROIThresholdPct < 0 {
		errs = append(errs, "watchlist: global_roi_threshold_pct must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
