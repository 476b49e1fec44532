package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// PosSide is the position side field required in hedge (long/short) account
// mode. Net-mode accounts omit it.
type PosSide string

const (
	PosSideLong  PosSide = "long"
	PosSideShort PosSide = "short"
	PosSideNet   PosSide = ""
)

// OrderRequest describes a market order against a perpetual-swap instrument.
// Size is in contracts, already floored to the instrument's lot grid.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	PosSide  PosSide
	Size     decimal.Decimal
	Leverage decimal.Decimal
}

// OrderFill is the settled state of a placed order as reported by the
// exchange order-detail endpoint.
type OrderFill struct {
	OrderID  string
	TradeID  string
	State    string
	Price    decimal.Decimal // average fill price
	Size     decimal.Decimal // accumulated filled contracts
	Fee      decimal.Decimal // raw signed fee as reported
	PnL      decimal.Decimal
	Leverage decimal.Decimal
}

// Filled reports whether the order actually executed.
func (f OrderFill) Filled() bool {
	return f.Size.IsPositive()
}

// TradeResult is the outcome of an open or close operation. A non-nil error
// from the operation means no TradeResult; a returned TradeResult always
// describes a completed trade.
type TradeResult struct {
	OrderID   string
	Position  *Position
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Fee       decimal.Decimal
	Message   string
}
