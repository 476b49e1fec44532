package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
	"github.com/alanyoungcy/okxbot/internal/notify"
	"github.com/alanyoungcy/okxbot/internal/retry"
)

// TradingTiming controls the waits around order settlement and close
// reconciliation. The exchange settles market orders and publishes history
// records asynchronously, so fills and P&L records need a short grace
// period.
type TradingTiming struct {
	SettleDelay       time.Duration
	ReconcileAttempts int
	ReconcileDelay    time.Duration
}

// DefaultTradingTiming matches observed exchange settlement behaviour.
func DefaultTradingTiming() TradingTiming {
	return TradingTiming{
		SettleDelay:       2 * time.Second,
		ReconcileAttempts: 3,
		ReconcileDelay:    2 * time.Second,
	}
}

// TradingService drives the position lifecycle: pre-trade checks, sizing,
// order placement, fill settlement, position id recovery, and close
// reconciliation against the exchange's history.
type TradingService struct {
	exchange  Exchange
	sizing    *SizingService
	positions domain.PositionStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	locks     domain.LockManager
	notifier  *notify.Notifier
	timing    TradingTiming
	logger    *slog.Logger
}

// NewTradingService creates a TradingService with all required dependencies.
func NewTradingService(
	exchange Exchange,
	sizing *SizingService,
	positions domain.PositionStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	timing TradingTiming,
	logger *slog.Logger,
) *TradingService {
	if timing.ReconcileAttempts <= 0 {
		timing = DefaultTradingTiming()
	}
	return &TradingService{
		exchange:  exchange,
		sizing:    sizing,
		positions: positions,
		audit:     audit,
		bus:       bus,
		notifier:  notifier,
		timing:    timing,
		logger:    logger.With(slog.String("component", "trading")),
	}
}

// OpenLong opens a long position on symbol with the given USDT margin budget.
func (s *TradingService) OpenLong(ctx context.Context, pairID, symbol string, amount, leverage decimal.Decimal) (domain.TradeResult, error) {
	return s.open(ctx, pairID, symbol, domain.PositionTypeLong, amount, leverage)
}

// OpenShort opens a short position on symbol with the given USDT margin budget.
func (s *TradingService) OpenShort(ctx context.Context, pairID, symbol string, amount, leverage decimal.Decimal) (domain.TradeResult, error) {
	return s.open(ctx, pairID, symbol, domain.PositionTypeShort, amount, leverage)
}

func (s *TradingService) open(ctx context.Context, pairID, symbol string, posType domain.PositionType, amount, leverage decimal.Decimal) (domain.TradeResult, error) {
	log := s.logger.With(
		slog.String("symbol", symbol),
		slog.String("type", string(posType)),
	)

	if err := s.preTradeChecks(ctx, amount); err != nil {
		return s.fail(ctx, log, "open", symbol, err)
	}

	sized, price, err := s.sizing.CalculateOrderSize(ctx, symbol, amount, leverage)
	if err != nil {
		return s.fail(ctx, log, "open", symbol, err)
	}

	// Leverage must be configured before the order; a failure here is not
	// fatal because the instrument may already carry the right setting.
	if err := s.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		log.WarnContext(ctx, "trading: set leverage failed, continuing",
			slog.String("error", err.Error()))
	}

	req := domain.OrderRequest{
		Symbol:   symbol,
		Side:     openSide(posType),
		PosSide:  s.posSide(ctx, posType, log),
		Size:     sized.Contracts,
		Leverage: leverage,
	}

	orderID, err := s.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return s.fail(ctx, log, "open", symbol, err)
	}
	log.InfoContext(ctx, "trading: order placed",
		slog.String("order_id", orderID),
		slog.String("contracts", sized.Contracts.String()),
	)

	fill, err := s.settledFill(ctx, symbol, orderID)
	if err != nil {
		return s.fail(ctx, log, "open", symbol, err)
	}

	posID := s.recoverPositionID(ctx, symbol, orderID, log)
	now := time.Now().UTC()

	pos := domain.Position{
		PositionID:      posID,
		TradingPairID:   pairID,
		Symbol:          symbol,
		Type:            posType,
		Status:          domain.PositionStatusOpen,
		Size:            fill.Size,
		EntryPrice:      fill.Price,
		CurrentPrice:    price,
		Leverage:        leverage,
		AllocatedAmount: sized.RequiredMargin,
		OpeningFees:     fill.Fee.Abs(),
		ExternalOrderID: orderID,
		OpenTime:        now,
		LastUpdated:     now,
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trading: persist position: %w", err)
	}

	s.announce(ctx, "position_opened", map[string]any{
		"position_id": pos.PositionID,
		"symbol":      pos.Symbol,
		"type":        string(pos.Type),
		"entry_price": pos.EntryPrice.String(),
		"size":        pos.Size.String(),
		"leverage":    pos.Leverage.String(),
		"margin":      pos.AllocatedAmount.String(),
	})
	s.notify(ctx, "position_opened",
		fmt.Sprintf("Opened %s %s", posType, symbol),
		fmt.Sprintf("%s contracts @ %s, %sx leverage, %s USDT margin",
			pos.Size, pos.EntryPrice, pos.Leverage, pos.AllocatedAmount))

	log.InfoContext(ctx, "trading: position opened",
		slog.String("position_id", pos.PositionID),
		slog.String("entry_price", pos.EntryPrice.String()),
		slog.String("size", pos.Size.String()),
	)

	return domain.TradeResult{
		OrderID:   orderID,
		Position:  &pos,
		FillPrice: fill.Price,
		FillSize:  fill.Size,
		Fee:       fill.Fee.Abs(),
		Message:   "position opened",
	}, nil
}

// SetLockManager installs a distributed lock that serialises closes of the
// same position across bot instances.
func (s *TradingService) SetLockManager(locks domain.LockManager) {
	s.locks = locks
}

// ClosePosition closes an open position at market and reconciles the
// realized P&L from the exchange's position history.
func (s *TradingService) ClosePosition(ctx context.Context, positionID string) (domain.TradeResult, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "close:"+positionID, time.Minute)
		if err != nil {
			return domain.TradeResult{}, fmt.Errorf("trading: close %q: %w", positionID, err)
		}
		defer unlock()
	}

	pos, err := s.positions.GetByPositionID(ctx, positionID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trading: get position %q: %w", positionID, err)
	}
	if pos.Status != domain.PositionStatusOpen {
		return domain.TradeResult{}, fmt.Errorf("trading: close %q: %w", positionID, domain.ErrPositionClosed)
	}

	log := s.logger.With(
		slog.String("position_id", positionID),
		slog.String("symbol", pos.Symbol),
	)

	if err := s.exchange.CheckConnection(ctx); err != nil {
		return s.fail(ctx, log, "close", pos.Symbol, err)
	}

	req := domain.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     pos.CloseSide(),
		PosSide:  s.posSide(ctx, pos.Type, log),
		Size:     pos.Size,
		Leverage: pos.Leverage,
	}

	orderID, err := s.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return s.fail(ctx, log, "close", pos.Symbol, err)
	}
	log.InfoContext(ctx, "trading: close order placed", slog.String("order_id", orderID))

	fill, err := s.settledFill(ctx, pos.Symbol, orderID)
	if err != nil {
		// The position stays open; nothing was transitioned.
		return s.fail(ctx, log, "close", pos.Symbol, err)
	}

	rec := s.reconcileClose(ctx, pos, fill, log)

	now := time.Now().UTC()
	if err := pos.ApplyClose(rec, fill.Price, now); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trading: close %q: %w", positionID, err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trading: persist close %q: %w", positionID, err)
	}

	s.announce(ctx, "position_closed", map[string]any{
		"position_id":  pos.PositionID,
		"symbol":       pos.Symbol,
		"close_price":  pos.ClosingPrice.String(),
		"realized_pnl": pos.RealizedPnL.String(),
		"pnl_percent":  pos.RealizedPnLPc.String(),
		"total_fees":   pos.TotalFees().String(),
	})
	s.notify(ctx, "position_closed",
		fmt.Sprintf("Closed %s %s", pos.Type, pos.Symbol),
		fmt.Sprintf("P&L %s USDT (%s%%), fees %s USDT",
			pos.RealizedPnL, pos.RealizedPnLPc.Round(2), pos.TotalFees()))

	dayPnL, dayClosed := s.dailyRealized(ctx, now)
	log.InfoContext(ctx, "trading: position closed",
		slog.String("close_price", pos.ClosingPrice.String()),
		slog.String("realized_pnl", pos.RealizedPnL.String()),
		slog.String("day_realized_pnl", dayPnL.String()),
		slog.Int("day_closed", dayClosed),
	)

	return domain.TradeResult{
		OrderID:   orderID,
		Position:  &pos,
		FillPrice: fill.Price,
		FillSize:  fill.Size,
		Fee:       pos.ClosingFees,
		Message:   "position closed",
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// preTradeChecks verifies connectivity and that the account holds enough
// free margin before any order is attempted.
func (s *TradingService) preTradeChecks(ctx context.Context, amount decimal.Decimal) error {
	if err := s.exchange.CheckConnection(ctx); err != nil {
		return err
	}
	avail, err := s.exchange.AvailableBalance(ctx)
	if err != nil {
		return err
	}
	if avail.LessThan(amount) {
		return fmt.Errorf("trading: have %s, need %s: %w",
			avail.String(), amount.String(), domain.ErrInsufficientFunds)
	}
	return nil
}

// posSide resolves the posSide field for the account's position mode. Hedge
// accounts require an explicit side; net accounts reject one.
func (s *TradingService) posSide(ctx context.Context, posType domain.PositionType, log *slog.Logger) domain.PosSide {
	hedge, err := s.exchange.IsHedgeMode(ctx)
	if err != nil {
		log.WarnContext(ctx, "trading: position mode lookup failed, assuming net mode",
			slog.String("error", err.Error()))
		return domain.PosSideNet
	}
	if !hedge {
		return domain.PosSideNet
	}
	if posType == domain.PositionTypeLong {
		return domain.PosSideLong
	}
	return domain.PosSideShort
}

// settledFill waits out the settlement delay and reads the order's fill. A
// zero accumulated fill means the order did not execute.
func (s *TradingService) settledFill(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	if err := retry.Sleep(ctx, s.timing.SettleDelay); err != nil {
		return domain.OrderFill{}, err
	}
	fill, err := s.exchange.OrderDetail(ctx, symbol, orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	if !fill.Filled() {
		return domain.OrderFill{}, fmt.Errorf("trading: order %s state %q: %w",
			orderID, fill.State, domain.ErrOrderNotFilled)
	}
	return fill, nil
}

// recoverPositionID resolves the exchange position id for a freshly filled
// order. The order archive yields the trade id, which links the order to a
// live position. Each fallback is weaker than the last; the placeholder is a
// local stand-in adopted only when the exchange gives nothing to match on.
func (s *TradingService) recoverPositionID(ctx context.Context, symbol, orderID string, log *slog.Logger) string {
	var tradeID string
	if archived, err := s.exchange.OrderArchive(ctx, symbol, orderID); err == nil {
		tradeID = archived.TradeID
	} else {
		log.WarnContext(ctx, "trading: order archive lookup failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()))
	}

	snaps, err := s.exchange.Positions(ctx, symbol)
	if err != nil {
		log.WarnContext(ctx, "trading: live position lookup failed",
			slog.String("error", err.Error()))
		snaps = nil
	}

	if tradeID != "" {
		for _, snap := range snaps {
			if snap.TradeID == tradeID && snap.PositionID != "" {
				return snap.PositionID
			}
		}
	}

	// No trade id match; take the most recently updated live position on
	// this instrument.
	var newest domain.PositionSnapshot
	for _, snap := range snaps {
		if snap.PositionID != "" && snap.UpdatedAt.After(newest.UpdatedAt) {
			newest = snap
		}
	}
	if newest.PositionID != "" {
		return newest.PositionID
	}

	id := domain.NewPlaceholderPositionID()
	log.WarnContext(ctx, "trading: position id unrecoverable, using placeholder",
		slog.String("order_id", orderID),
		slog.String("placeholder", id))
	return id
}

// reconcileClose polls the position history for the settled record of this
// close. Only an exact position id match counts during the attempts; the
// most-recent-closed fallback applies solely after every attempt has been
// exhausted. With no history at all, the fill itself supplies the P&L.
func (s *TradingService) reconcileClose(ctx context.Context, pos domain.Position, fill domain.OrderFill, log *slog.Logger) domain.PositionHistoryRecord {
	var match *domain.PositionHistoryRecord
	var latest *domain.PositionHistoryRecord

	err := retry.Do(ctx, s.timing.ReconcileAttempts, s.timing.ReconcileDelay, func(attempt int) (bool, error) {
		recs, err := s.exchange.PositionsHistory(ctx, pos.Symbol)
		if err != nil {
			return false, err
		}
		for i := range recs {
			rec := recs[i]
			if !rec.Closed() || rec.Symbol != pos.Symbol {
				continue
			}
			if rec.PositionID == pos.PositionID {
				match = &rec
				return true, nil
			}
			if latest == nil || rec.CloseTime.After(latest.CloseTime) {
				latest = &rec
			}
		}
		return false, fmt.Errorf("trading: no history record for %s yet: %w",
			pos.PositionID, domain.ErrNotFound)
	})

	switch {
	case match != nil:
		return *match
	case latest != nil:
		log.WarnContext(ctx, "trading: exact history match not found, using most recent close",
			slog.String("fallback_pos_id", latest.PositionID))
		return *latest
	default:
		if err != nil {
			log.WarnContext(ctx, "trading: close reconciliation exhausted, using fill data",
				slog.String("error", err.Error()))
		}
		return domain.PositionHistoryRecord{
			PositionID:  pos.PositionID,
			Symbol:      pos.Symbol,
			RealizedPnL: fill.PnL,
			Fee:         fill.Fee,
			CloseTime:   time.Now().UTC(),
		}
	}
}

// dailyRealized sums the realized P&L of positions closed since UTC
// midnight. Best-effort; a store error only degrades the close summary.
func (s *TradingService) dailyRealized(ctx context.Context, now time.Time) (decimal.Decimal, int) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	closed, err := s.positions.ListClosed(ctx, domain.ListOpts{Since: &midnight, Limit: 500})
	if err != nil {
		s.logger.WarnContext(ctx, "trading: daily summary lookup failed",
			slog.String("error", err.Error()))
		return decimal.Zero, 0
	}
	total := decimal.Zero
	for _, p := range closed {
		total = total.Add(p.RealizedPnL)
	}
	return total, len(closed)
}

// fail records and surfaces an operation failure. The audit row and the
// notification are best-effort.
func (s *TradingService) fail(ctx context.Context, log *slog.Logger, op, symbol string, err error) (domain.TradeResult, error) {
	log.ErrorContext(ctx, "trading: "+op+" failed",
		slog.String("error", err.Error()))

	detail := map[string]any{"op": op, "symbol": symbol, "error": err.Error()}
	if ee, ok := domain.AsExchangeError(err); ok {
		detail["exchange_code"] = ee.Code
		detail["exchange_msg"] = ee.Msg
	}
	s.announce(ctx, "trade_failed", detail)
	if !errors.Is(err, domain.ErrGeoBlocked) {
		s.notify(ctx, "trade_failed",
			fmt.Sprintf("Trade failed: %s %s", op, symbol), err.Error())
	}
	return domain.TradeResult{}, fmt.Errorf("trading: %s %s: %w", op, symbol, err)
}

// announce publishes a bus event and writes the audit row. Both are
// best-effort; the trade itself has already been decided.
func (s *TradingService) announce(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload := map[string]any{"event": event}
		for k, v := range detail {
			payload[k] = v
		}
		evt, _ := json.Marshal(payload)
		if err := s.bus.Publish(ctx, "positions", evt); err != nil {
			s.logger.WarnContext(ctx, "trading: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()))
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "trading: audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()))
		}
	}
}

func (s *TradingService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "trading: notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

func openSide(t domain.PositionType) domain.OrderSide {
	if t == domain.PositionTypeLong {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}
