package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OKXBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OKXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── OKX ──
	setStr(&cfg.OKX.BaseURL, "OKXBOT_OKX_BASE_URL")
	setStr(&cfg.OKX.WsURL, "OKXBOT_OKX_WS_URL")
	setStr(&cfg.OKX.ApiKey, "OKXBOT_OKX_API_KEY")
	setStr(&cfg.OKX.ApiSecret, "OKXBOT_OKX_API_SECRET")
	setStr(&cfg.OKX.ApiPassphrase, "OKXBOT_OKX_API_PASSPHRASE")
	setInt(&cfg.OKX.RateLimit, "OKXBOT_OKX_RATE_LIMIT")
	setDuration(&cfg.OKX.RateWindow, "OKXBOT_OKX_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OKXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OKXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OKXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OKXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OKXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OKXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OKXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OKXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OKXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OKXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OKXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OKXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OKXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OKXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OKXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OKXBOT_REDIS_TLS_ENABLED")

	// ── Geo ──
	setBool(&cfg.Geo.Enabled, "OKXBOT_GEO_ENABLED")
	setStringSlice(&cfg.Geo.BlockedCountries, "OKXBOT_GEO_BLOCKED_COUNTRIES")

	// ── Trading ──
	setDuration(&cfg.Trading.SettleDelay, "OKXBOT_TRADING_SETTLE_DELAY")
	setInt(&cfg.Trading.ReconcileAttempts, "OKXBOT_TRADING_RECONCILE_ATTEMPTS")
	setDuration(&cfg.Trading.ReconcileDelay, "OKXBOT_TRADING_RECONCILE_DELAY")
	setDuration(&cfg.Trading.PriceMaxAge, "OKXBOT_TRADING_PRICE_MAX_AGE")

	// ── Sync ──
	setDuration(&cfg.Sync.Interval, "OKXBOT_SYNC_INTERVAL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "OKXBOT_FEED_ENABLED")
	setStringSlice(&cfg.Feed.Symbols, "OKXBOT_FEED_SYMBOLS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OKXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OKXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OKXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OKXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OKXBOT_MODE")
	setStr(&cfg.LogLevel, "OKXBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
