package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/okxbot/internal/executor"
	"github.com/alanyoungcy/okxbot/internal/feed"
	"github.com/alanyoungcy/okxbot/internal/service"
)

// TradeMode starts the full execution stack: the signal executor, the
// position sync loop, and the websocket ticker feed.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	trading, syncSvc := a.buildServices(deps)

	// Executor: consumes trade signals from the bus and routes them to the
	// trading service.
	exec := executor.NewExecutor(deps.SignalBus, trading, a.logger)
	g.Go(func() error {
		return exec.Run(ctx)
	})

	// Periodic reconciliation of open positions against the exchange.
	g.Go(func() error {
		return syncSvc.Run(ctx, a.cfg.Sync.Interval.Duration)
	})

	// Ticker feed: stream mark prices into the cache so sizing reads fresh
	// prices without hitting the REST API.
	if a.cfg.Feed.Enabled && len(a.cfg.Feed.Symbols) > 0 {
		wsFeed := feed.NewTickerFeed(a.cfg.OKX.WsURL, a.cfg.Feed.Symbols, deps.PriceCache, a.logger)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	return g.Wait()
}

// SyncMode runs only the position reconciliation loop. Useful as a sidecar
// next to an instance trading in another region.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	g, ctx := errgroup.WithContext(ctx)

	_, syncSvc := a.buildServices(deps)
	g.Go(func() error {
		return syncSvc.Run(ctx, a.cfg.Sync.Interval.Duration)
	})

	return g.Wait()
}

// MonitorMode starts read-only monitoring: the ticker feed streams prices
// into the cache and a consumer mirrors position events from the bus into
// the log. No orders are placed and no database is required.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Feed.Enabled && len(a.cfg.Feed.Symbols) > 0 {
		wsFeed := feed.NewTickerFeed(a.cfg.OKX.WsURL, a.cfg.Feed.Symbols, deps.PriceCache, a.logger)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	// Mirror position events published by trading instances.
	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, "positions")
		if err != nil {
			return fmt.Errorf("monitor mode: subscribe positions: %w", err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "position event", slog.String("payload", string(msg)))
			}
		}
	})

	// Periodically log the cached prices for the watched symbols.
	g.Go(func() error {
		interval := a.cfg.Sync.Interval.Duration
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				prices, err := deps.PriceCache.GetPrices(ctx, a.cfg.Feed.Symbols)
				if err != nil {
					a.logger.WarnContext(ctx, "monitor mode: read prices failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				for sym, p := range prices {
					a.logger.InfoContext(ctx, "mark price",
						slog.String("symbol", sym),
						slog.String("price", p.String()),
					)
				}
			}
		}
	})

	return g.Wait()
}

// buildServices constructs the service layer shared by trade and sync modes.
func (a *App) buildServices(deps *Dependencies) (*service.TradingService, *service.SyncService) {
	instruments := service.NewInstrumentCache(deps.Exchange, a.logger)
	prices := service.NewPriceService(deps.Exchange, deps.PriceCache, a.cfg.Trading.PriceMaxAge.Duration, a.logger)
	sizing := service.NewSizingService(instruments, prices, a.logger)

	timing := service.TradingTiming{
		SettleDelay:       a.cfg.Trading.SettleDelay.Duration,
		ReconcileAttempts: a.cfg.Trading.ReconcileAttempts,
		ReconcileDelay:    a.cfg.Trading.ReconcileDelay.Duration,
	}
	trading := service.NewTradingService(
		deps.Exchange, sizing, deps.PositionStore, deps.AuditStore,
		deps.SignalBus, deps.Notifier, timing, a.logger,
	)
	trading.SetLockManager(deps.LockManager)

	syncSvc := service.NewSyncService(deps.Exchange, deps.PositionStore, deps.PriceCache, a.logger)
	return trading, syncSvc
}
