// Package executor consumes trade signals published by the external signal
// engine and dispatches them to the trading service. Signals arrive as JSON
// on a Redis pub/sub channel; the executor is the only inbound surface the
// engine exposes to the strategy side.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// SignalChannel is the pub/sub channel trade intents arrive on.
const SignalChannel = "signals"

// Trader is the interface through which the executor drives the position
// lifecycle. Implemented by service.TradingService.
type Trader interface {
	OpenLong(ctx context.Context, pairID, symbol string, amount, leverage decimal.Decimal) (domain.TradeResult, error)
	OpenShort(ctx context.Context, pairID, symbol string, amount, leverage decimal.Decimal) (domain.TradeResult, error)
	ClosePosition(ctx context.Context, positionID string) (domain.TradeResult, error)
}

// Executor reads trade signals from the bus, applies deduplication and
// validation, then routes each action to the trading service. Malformed or
// unknown messages are logged and skipped, never fatal.
type Executor struct {
	bus     domain.SignalBus
	trading Trader
	dedup   *Dedup
	logger  *slog.Logger

	cleanupInterval time.Duration
}

// NewExecutor creates an Executor reading from the bus's signal channel.
func NewExecutor(bus domain.SignalBus, trading Trader, logger *slog.Logger) *Executor {
	return &Executor{
		bus:             bus,
		trading:         trading,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run subscribes to the signal channel and processes messages until the
// context is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	msgs, err := e.bus.Subscribe(ctx, SignalChannel)
	if err != nil {
		return fmt.Errorf("executor: subscribe %s: %w", SignalChannel, err)
	}

	e.logger.Info("executor started", slog.String("channel", SignalChannel))
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			e.process(ctx, payload)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// process handles a single raw signal message through decode, validation,
// dedup, and dispatch.
func (e *Executor) process(ctx context.Context, payload []byte) {
	var sig domain.TradeSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		e.logger.Warn("executor: malformed signal, skipping",
			slog.String("error", err.Error()))
		return
	}

	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("action", string(sig.Action)),
		slog.String("symbol", sig.Symbol),
	)

	if err := sig.Validate(); err != nil {
		log.Warn("executor: invalid signal, skipping",
			slog.String("error", err.Error()))
		return
	}

	if sig.ID != "" && e.dedup.IsDuplicate(sig.ID) {
		log.Debug("executor: signal deduplicated, skipping")
		return
	}

	var result domain.TradeResult
	var err error
	switch sig.Action {
	case domain.SignalActionOpenLong:
		result, err = e.trading.OpenLong(ctx, sig.TradingPairID, sig.Symbol, sig.Amount, sig.Leverage)
	case domain.SignalActionOpenShort:
		result, err = e.trading.OpenShort(ctx, sig.TradingPairID, sig.Symbol, sig.Amount, sig.Leverage)
	case domain.SignalActionClose:
		result, err = e.trading.ClosePosition(ctx, sig.PositionID)
	}

	if err != nil {
		log.Error("executor: trade failed",
			slog.String("error", err.Error()))
		return
	}

	log.Info("executor: trade executed",
		slog.String("order_id", result.OrderID),
		slog.String("fill_price", result.FillPrice.String()),
	)
}
