// Package config defines the TOML-backed configuration for the trading
// engine and its validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// duration wraps time.Duration so durations can be written as strings
// ("30s", "5m") in the TOML file.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration object. Field defaults live in
// Defaults(); secrets are expected to arrive via OKXBOT_* environment
// variables rather than the TOML file.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	OKX      OKXConfig      `toml:"okx"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Geo      GeoConfig      `toml:"geo"`
	Trading  TradingConfig  `toml:"trading"`
	Sync     SyncConfig     `toml:"sync"`
	Feed     FeedConfig     `toml:"feed"`
	Notify   NotifyConfig   `toml:"notify"`
}

// OKXConfig holds REST and websocket endpoints plus API credentials.
// RateLimit/RateWindow bound signed requests per endpoint; the exchange
// enforces its own per-endpoint windows, this keeps the bot under them.
type OKXConfig struct {
	BaseURL       string   `toml:"base_url"`
	WsURL         string   `toml:"ws_url"`
	ApiKey        string   `toml:"api_key"`
	ApiSecret     string   `toml:"api_secret"`
	ApiPassphrase string   `toml:"api_passphrase"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
}

// PostgresConfig mirrors the connection settings of the position store.
// DSN, when set, takes precedence over the individual host fields.
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

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// GeoConfig controls the jurisdiction gate applied before every signed
// exchange request.
type GeoConfig struct {
	Enabled          bool     `toml:"enabled"`
	BlockedCountries []string `toml:"blocked_countries"`
}

// TradingConfig tunes order settlement and close reconciliation timing.
type TradingConfig struct {
	SettleDelay       duration `toml:"settle_delay"`
	ReconcileAttempts int      `toml:"reconcile_attempts"`
	ReconcileDelay    duration `toml:"reconcile_delay"`
	PriceMaxAge       duration `toml:"price_max_age"`
}

type SyncConfig struct {
	Interval duration `toml:"interval"`
}

// FeedConfig lists the instruments whose tickers the websocket feed
// streams into the price cache.
type FeedConfig struct {
	Enabled bool     `toml:"enabled"`
	Symbols []string `toml:"symbols"`
}

type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

var validModes = map[string]bool{
	"trade":   true,
	"sync":    true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with sensible defaults. Load merges
// the TOML file and environment overrides on top of this.
func Defaults() Config {
	return Config{
		Mode:     "monitor",
		LogLevel: "info",
		OKX: OKXConfig{
			BaseURL:    "https://www.okx.com",
			WsURL:      "wss://ws.okx.com:8443/ws/v5/public",
			RateLimit:  20,
			RateWindow: duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "okxbot",
			User:          "postgres",
			SSLMode:       "prefer",
			PoolMaxConns:  8,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Geo: GeoConfig{
			Enabled:          true,
			BlockedCountries: []string{"US"},
		},
		Trading: TradingConfig{
			SettleDelay:       duration{2 * time.Second},
			ReconcileAttempts: 3,
			ReconcileDelay:    duration{2 * time.Second},
			PriceMaxAge:       duration{10 * time.Second},
		},
		Sync: SyncConfig{
			Interval: duration{30 * time.Second},
		},
		Feed: FeedConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "trade_failed"},
		},
	}
}

// Validate checks the configuration and returns a single error listing
// every problem found, or nil when the config is usable.
func (c *Config) Validate() error {
	var problems []string

	if !validModes[c.Mode] {
		problems = append(problems, fmt.Sprintf("mode %q is not one of trade, sync, monitor", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.OKX.BaseURL == "" {
		problems = append(problems, "okx.base_url is required")
	}
	if c.Mode == "trade" || c.Mode == "sync" {
		if c.OKX.ApiKey == "" {
			problems = append(problems, fmt.Sprintf("okx.api_key is required in %s mode", c.Mode))
		}
		if c.OKX.ApiSecret == "" {
			problems = append(problems, fmt.Sprintf("okx.api_secret is required in %s mode", c.Mode))
		}
		if c.OKX.ApiPassphrase == "" {
			problems = append(problems, fmt.Sprintf("okx.api_passphrase is required in %s mode", c.Mode))
		}
	}

	if c.Postgres.DSN == "" {
		if c.Postgres.Host == "" {
			problems = append(problems, "postgres.host is required when postgres.dsn is not set")
		}
		if c.Postgres.Database == "" {
			problems = append(problems, "postgres.database is required when postgres.dsn is not set")
		}
		if c.Postgres.User == "" {
			problems = append(problems, "postgres.user is required when postgres.dsn is not set")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			problems = append(problems, fmt.Sprintf("postgres.port %d is out of range", c.Postgres.Port))
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		problems = append(problems, "postgres.pool_min_conns exceeds postgres.pool_max_conns")
	}

	if c.OKX.RateLimit < 1 {
		problems = append(problems, "okx.rate_limit must be at least 1")
	}
	if c.OKX.RateWindow.Duration <= 0 {
		problems = append(problems, "okx.rate_window must be positive")
	}

	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required")
	}

	if c.Trading.ReconcileAttempts < 1 {
		problems = append(problems, "trading.reconcile_attempts must be at least 1")
	}
	if c.Trading.SettleDelay.Duration < 0 {
		problems = append(problems, "trading.settle_delay must not be negative")
	}
	if c.Trading.ReconcileDelay.Duration < 0 {
		problems = append(problems, "trading.reconcile_delay must not be negative")
	}
	if c.Trading.PriceMaxAge.Duration <= 0 {
		problems = append(problems, "trading.price_max_age must be positive")
	}

	if c.Sync.Interval.Duration <= 0 {
		problems = append(problems, "sync.interval must be positive")
	}

	if c.Feed.Enabled && c.Mode == "monitor" && len(c.Feed.Symbols) == 0 {
		problems = append(problems, "feed.symbols must list at least one instrument in monitor mode")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		problems = append(problems, "notify.telegram_token and notify.telegram_chat_id must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
