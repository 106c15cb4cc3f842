package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYFLUX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYFLUX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Polymarket.ClobHost, "POLYFLUX_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYFLUX_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.Address, "POLYFLUX_POLYMARKET_ADDRESS")
	setStr(&cfg.Polymarket.ApiKey, "POLYFLUX_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYFLUX_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYFLUX_POLYMARKET_API_PASSPHRASE")
	setInt(&cfg.Polymarket.TimeoutSeconds, "POLYFLUX_POLYMARKET_TIMEOUT_SECONDS")

	setStr(&cfg.Workforce.Endpoint, "POLYFLUX_WORKFORCE_ENDPOINT")
	setStr(&cfg.Workforce.ApiKey, "POLYFLUX_WORKFORCE_API_KEY")
	setInt(&cfg.Workforce.TimeoutSeconds, "POLYFLUX_WORKFORCE_TIMEOUT_SECONDS")

	setStr(&cfg.Postgres.DSN, "POLYFLUX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYFLUX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYFLUX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYFLUX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYFLUX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYFLUX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYFLUX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYFLUX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYFLUX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYFLUX_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "POLYFLUX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYFLUX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYFLUX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYFLUX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYFLUX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYFLUX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYFLUX_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "POLYFLUX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYFLUX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYFLUX_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYFLUX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYFLUX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYFLUX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYFLUX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYFLUX_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Pipeline.Enabled, "POLYFLUX_PIPELINE_ENABLED")
	setStr(&cfg.Pipeline.RuntimeConfigPath, "POLYFLUX_PIPELINE_RUNTIME_CONFIG_PATH")
	setStr(&cfg.Pipeline.CachePath, "POLYFLUX_PIPELINE_CACHE_PATH")
	setInt(&cfg.Pipeline.ReconcileAfterMinutes, "POLYFLUX_PIPELINE_RECONCILE_AFTER_MINUTES")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "POLYFLUX_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "POLYFLUX_PIPELINE_ARCHIVE_CRON")

	setInt(&cfg.Watchlist.EvaluateIntervalSeconds, "POLYFLUX_WATCHLIST_EVALUATE_INTERVAL_SECONDS")
	setBool(&cfg.Watchlist.GlobalROIEnabled, "POLYFLUX_WATCHLIST_GLOBAL_ROI_ENABLED")
	setFloat64(&cfg.Watchlist.GlobalROIThresholdPct, "POLYFLUX_WATCHLIST_GLOBAL_ROI_THRESHOLD_PCT")
	setFloat64(&cfg.Watchlist.GlobalROIFastPct, "POLYFLUX_WATCHLIST_GLOBAL_ROI_FAST_PCT")

	setBool(&cfg.Server.Enabled, "POLYFLUX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYFLUX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYFLUX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "POLYFLUX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "POLYFLUX_SERVER_RATE_LIMIT_PER_MINUTE")

	setStr(&cfg.Notify.TelegramToken, "POLYFLUX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYFLUX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYFLUX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYFLUX_NOTIFY_EVENTS")

	setStr(&cfg.Storage, "POLYFLUX_STORAGE")
	setStr(&cfg.LogLevel, "POLYFLUX_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
