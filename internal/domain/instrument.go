package domain

import "github.com/shopspring/decimal"

// InstrumentInfo is the exchange metadata that constrains order sizing for a
// perpetual-swap instrument. Fetched once per symbol and held for the
// process lifetime; the exchange does not change these fields intraday.
type InstrumentInfo struct {
	Symbol      string
	LotSize     decimal.Decimal // contract size step
	MinSize     decimal.Decimal // minimum order size in contracts
	CtVal       decimal.Decimal // contract value in base currency units
	MinCcyAmt   decimal.Decimal // minimum margin in settlement currency
	MinNotional decimal.Decimal // minimum order notional in USDT
}

// SizedOrder is the validated output of the order sizing calculator.
type SizedOrder struct {
	Contracts      decimal.Decimal
	Notional       decimal.Decimal // contracts * ctVal * price
	RequiredMargin decimal.Decimal // notional / leverage
}
