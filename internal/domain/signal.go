package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalAction is the trade intent carried by an inbound signal.
type SignalAction string

const (
	SignalActionOpenLong  SignalAction = "open_long"
	SignalActionOpenShort SignalAction = "open_short"
	SignalActionClose     SignalAction = "close"
)

// TradeSignal is emitted by the external signal engine to request execution.
// Open actions carry amount and leverage; close carries the position id.
type TradeSignal struct {
	ID            string          `json:"id"`
	Action        SignalAction    `json:"action"`
	TradingPairID string          `json:"trading_pair_id"`
	Symbol        string          `json:"symbol"`
	Amount        decimal.Decimal `json:"amount"`
	Leverage      decimal.Decimal `json:"leverage"`
	PositionID    string          `json:"position_id"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks that the signal carries the fields its action requires.
func (s TradeSignal) Validate() error {
	switch s.Action {
	case SignalActionOpenLong, SignalActionOpenShort:
		if s.Symbol == "" || !s.Amount.IsPositive() || !s.Leverage.IsPositive() {
			return ErrInvalidSignal
		}
	case SignalActionClose:
		if s.PositionID == "" {
			return ErrInvalidSignal
		}
	default:
		return ErrInvalidSignal
	}
	return nil
}
