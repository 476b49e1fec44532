package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is a single row from the live positions endpoint.
type PositionSnapshot struct {
	PositionID      string
	Symbol          string
	PosSide         PosSide
	Size            decimal.Decimal
	AvgEntryPrice   decimal.Decimal
	MarkPrice       decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	UnrealizedPnLPc decimal.Decimal
	RealizedPnL     decimal.Decimal
	OpeningFee      decimal.Decimal
	FundingFee      decimal.Decimal
	Margin          decimal.Decimal
	Leverage        decimal.Decimal
	TradeID         string
	UpdatedAt       time.Time
}

// PositionHistoryRecord is a settled row from the positions-history
// endpoint, used to reconcile realized P&L after a close.
type PositionHistoryRecord struct {
	PositionID  string
	Symbol      string
	RealizedPnL decimal.Decimal
	PnLRatio    decimal.Decimal // fractional, e.g. 0.05 for 5%
	Fee         decimal.Decimal // combined open+close trading fee, signed
	FundingFee  decimal.Decimal
	CloseTime   time.Time
}

// Closed reports whether the record describes a fully settled close.
func (r PositionHistoryRecord) Closed() bool {
	return !r.CloseTime.IsZero()
}
