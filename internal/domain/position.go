package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionType is the directional side of a perpetual-swap position.
type PositionType string

const (
	PositionTypeLong  PositionType = "long"
	PositionTypeShort PositionType = "short"
)

// placeholderPrefix marks position ids minted locally before the exchange
// id could be recovered.
const placeholderPrefix = "temp_"

// NewPlaceholderPositionID mints a local stand-in id for a position whose
// exchange-assigned id could not be recovered after order placement.
func NewPlaceholderPositionID() string {
	return placeholderPrefix + uuid.NewString()[:8]
}

// IsPlaceholderPositionID reports whether id was minted locally rather than
// assigned by the exchange.
func IsPlaceholderPositionID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// Position represents a leveraged isolated-margin perpetual-swap position.
// All money fields are USDT amounts; fee fields carry absolute magnitudes.
type Position struct {
	ID              int64  // surrogate store key, zero until persisted
	PositionID      string // exchange posId, or a temp_ placeholder
	TradingPairID   string
	Symbol          string // instrument id, e.g. "BTC-USDT-SWAP"
	Type            PositionType
	Status          PositionStatus
	Size            decimal.Decimal // contracts
	EntryPrice      decimal.Decimal
	CurrentPrice    decimal.Decimal
	ClosingPrice    decimal.Decimal
	Leverage        decimal.Decimal
	AllocatedAmount decimal.Decimal // isolated margin
	UnrealizedPnL   decimal.Decimal
	UnrealizedPnLPc decimal.Decimal
	RealizedPnL     decimal.Decimal
	RealizedPnLPc   decimal.Decimal
	OpeningFees     decimal.Decimal
	ClosingFees     decimal.Decimal
	FundingFees     decimal.Decimal
	ExternalOrderID string
	OpenTime        time.Time
	CloseTime       *time.Time
	LastUpdated     time.Time
}

// AdoptPositionID replaces a placeholder id with the exchange-assigned one.
// A real id is never overwritten, and a placeholder never replaces one.
func (p *Position) AdoptPositionID(id string) bool {
	if id == "" || IsPlaceholderPositionID(id) {
		return false
	}
	if p.PositionID != "" && !IsPlaceholderPositionID(p.PositionID) {
		return false
	}
	p.PositionID = id
	return true
}

// ApplySyncSnapshot overwrites the mutable fields of an open position from a
// live exchange snapshot. Identity, entry price and lifecycle fields are
// never touched, and closed positions are left as-is.
func (p *Position) ApplySyncSnapshot(snap PositionSnapshot, now time.Time) bool {
	if p.Status != PositionStatusOpen {
		return false
	}
	p.CurrentPrice = snap.MarkPrice
	p.UnrealizedPnL = snap.UnrealizedPnL
	p.UnrealizedPnLPc = snap.UnrealizedPnLPc
	p.RealizedPnL = snap.RealizedPnL
	if snap.Size.IsPositive() {
		p.Size = snap.Size
	}
	p.OpeningFees = snap.OpeningFee.Abs()
	p.FundingFees = snap.FundingFee.Abs()
	if snap.Margin.IsPositive() {
		p.AllocatedAmount = snap.Margin
	}
	p.LastUpdated = now
	return true
}

// ApplyClose transitions the position to closed using the reconciled history
// record. The combined fee from the exchange covers open and close legs; the
// closing leg is recovered by subtracting the known opening fee, floored at
// zero when the exchange reports a smaller combined total.
func (p *Position) ApplyClose(rec PositionHistoryRecord, closePrice decimal.Decimal, now time.Time) error {
	if p.Status == PositionStatusClosed {
		return ErrPositionClosed
	}
	p.Status = PositionStatusClosed
	p.ClosingPrice = closePrice
	p.RealizedPnL = rec.RealizedPnL
	p.RealizedPnLPc = rec.PnLRatio.Mul(decimal.NewFromInt(100))
	p.FundingFees = rec.FundingFee.Abs()

	closing := rec.Fee.Abs().Sub(p.OpeningFees.Abs())
	if closing.IsNegative() {
		closing = decimal.Zero
	}
	p.ClosingFees = closing

	closedAt := now
	if !rec.CloseTime.IsZero() {
		closedAt = rec.CloseTime
	}
	p.CloseTime = &closedAt
	p.LastUpdated = now
	return nil
}

// OpenCloseFees is the total explicit trading fee paid across both legs.
func (p Position) OpenCloseFees() decimal.Decimal {
	return p.OpeningFees.Add(p.ClosingFees)
}

// TotalFees adds funding to the open/close trading fees.
func (p Position) TotalFees() decimal.Decimal {
	return p.OpenCloseFees().Add(p.FundingFees)
}

// CloseSide returns the order side that reduces this position.
func (p Position) CloseSide() OrderSide {
	if p.Type == PositionTypeLong {
		return OrderSideSell
	}
	return OrderSideBuy
}
