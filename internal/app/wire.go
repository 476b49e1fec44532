package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/okxbot/internal/cache/redis"
	"github.com/alanyoungcy/okxbot/internal/config"
	"github.com/alanyoungcy/okxbot/internal/crypto"
	"github.com/alanyoungcy/okxbot/internal/domain"
	"github.com/alanyoungcy/okxbot/internal/geo"
	"github.com/alanyoungcy/okxbot/internal/notify"
	"github.com/alanyoungcy/okxbot/internal/platform/okx"
	"github.com/alanyoungcy/okxbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Exchange
	Exchange *okx.Client
	Gate     domain.GeoGate

	// Stores
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "sync":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.OKX.RateLimit, cfg.OKX.RateWindow.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Jurisdiction gate ---
	if cfg.Geo.Enabled {
		deps.Gate = geo.New(cfg.Geo.BlockedCountries, logger)
	} else {
		deps.Gate = geo.Static(true)
	}

	// --- Exchange client ---
	auth := &crypto.HMACAuth{
		Key:        cfg.OKX.ApiKey,
		Secret:     cfg.OKX.ApiSecret,
		Passphrase: cfg.OKX.ApiPassphrase,
	}
	exchange := okx.NewClient(cfg.OKX.BaseURL, auth, deps.Gate, logger)
	exchange.SetRateLimiter(deps.RateLimiter)
	deps.Exchange = exchange

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
