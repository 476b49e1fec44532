package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// apiResponse is the envelope every v5 endpoint returns. code "0" means
// success; anything else is a business failure described by msg.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// placeOrderRequest is the body for POST /api/v5/trade/order. All orders are
// isolated-margin market orders; posSide is set only in hedge mode.
type placeOrderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	PosSide string `json:"posSide,omitempty"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Lever   string `json:"lever,omitempty"`
}

type placeOrderData struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type setLeverageRequest struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
}

// orderData is a row from the order-detail and order-archive endpoints.
// Numeric fields arrive as strings.
type orderData struct {
	OrdID     string `json:"ordId"`
	TradeID   string `json:"tradeId"`
	State     string `json:"state"`
	AvgPx     string `json:"avgPx"`
	AccFillSz string `json:"accFillSz"`
	Fee       string `json:"fee"`
	Pnl       string `json:"pnl"`
	Lever     string `json:"lever"`
}

func (d orderData) toFill() domain.OrderFill {
	return domain.OrderFill{
		OrderID:  d.OrdID,
		TradeID:  d.TradeID,
		State:    d.State,
		Price:    parseDec(d.AvgPx),
		Size:     parseDec(d.AccFillSz),
		Fee:      parseDec(d.Fee),
		PnL:      parseDec(d.Pnl),
		Leverage: parseDec(d.Lever),
	}
}

// positionData is a row from GET /api/v5/account/positions.
type positionData struct {
	PosID       string `json:"posId"`
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	Pos         string `json:"pos"`
	AvgPx       string `json:"avgPx"`
	MarkPx      string `json:"markPx"`
	Upl         string `json:"upl"`
	UplRatio    string `json:"uplRatio"`
	RealizedPnl string `json:"realizedPnl"`
	Fee         string `json:"fee"`
	FundingFee  string `json:"fundingFee"`
	Margin      string `json:"margin"`
	Lever       string `json:"lever"`
	TradeID     string `json:"tradeId"`
	UTime       string `json:"uTime"`
}

func (d positionData) toSnapshot() domain.PositionSnapshot {
	return domain.PositionSnapshot{
		PositionID:      d.PosID,
		Symbol:          d.InstID,
		PosSide:         domain.PosSide(d.PosSide),
		Size:            parseDec(d.Pos),
		AvgEntryPrice:   parseDec(d.AvgPx),
		MarkPrice:       parseDec(d.MarkPx),
		UnrealizedPnL:   parseDec(d.Upl),
		UnrealizedPnLPc: parseDec(d.UplRatio).Mul(decimal.NewFromInt(100)),
		RealizedPnL:     parseDec(d.RealizedPnl),
		OpeningFee:      parseDec(d.Fee),
		FundingFee:      parseDec(d.FundingFee),
		Margin:          parseDec(d.Margin),
		Leverage:        parseDec(d.Lever),
		TradeID:         d.TradeID,
		UpdatedAt:       parseMillis(d.UTime),
	}
}

// positionHistoryData is a row from GET /api/v5/account/positions-history.
// uTime is the time the position was fully closed.
type positionHistoryData struct {
	PosID       string `json:"posId"`
	InstID      string `json:"instId"`
	RealizedPnl string `json:"realizedPnl"`
	PnlRatio    string `json:"pnlRatio"`
	Fee         string `json:"fee"`
	FundingFee  string `json:"fundingFee"`
	UTime       string `json:"uTime"`
}

func (d positionHistoryData) toRecord() domain.PositionHistoryRecord {
	return domain.PositionHistoryRecord{
		PositionID:  d.PosID,
		Symbol:      d.InstID,
		RealizedPnL: parseDec(d.RealizedPnl),
		PnLRatio:    parseDec(d.PnlRatio),
		Fee:         parseDec(d.Fee),
		FundingFee:  parseDec(d.FundingFee),
		CloseTime:   parseMillis(d.UTime),
	}
}

// balanceData is a row from GET /api/v5/account/balance.
type balanceData struct {
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
	} `json:"details"`
}

// accountConfigData is a row from GET /api/v5/account/config.
type accountConfigData struct {
	PosMode string `json:"posMode"`
}

// instrumentData is a row from GET /api/v5/public/instruments.
type instrumentData struct {
	InstID      string `json:"instId"`
	LotSz       string `json:"lotSz"`
	MinSz       string `json:"minSz"`
	CtVal       string `json:"ctVal"`
	MinCcyAmt   string `json:"minCcyAmt"`
	MinNotional string `json:"minNotional"`
}

// toInfo maps wire metadata to the domain type. Lot size and contract value
// default to one when absent so sizing degrades to whole contracts; the
// minimums default to zero, i.e. unconstrained.
func (d instrumentData) toInfo() domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Symbol:      d.InstID,
		LotSize:     parseDecDefault(d.LotSz, decimal.NewFromInt(1)),
		MinSize:     parseDec(d.MinSz),
		CtVal:       parseDecDefault(d.CtVal, decimal.NewFromInt(1)),
		MinCcyAmt:   parseDec(d.MinCcyAmt),
		MinNotional: parseDec(d.MinNotional),
	}
}

// tickerData is a row from GET /api/v5/market/ticker.
type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	Ts     string `json:"ts"`
}

// parseDec converts an exchange numeric string to a decimal. Empty or
// malformed values come back as zero; the exchange sends "" for fields that
// do not apply.
func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseDecDefault is parseDec with a fallback for empty or zero values.
func parseDecDefault(s string, def decimal.Decimal) decimal.Decimal {
	d := parseDec(s)
	if d.IsZero() {
		return def
	}
	return d
}

// parseMillis converts an epoch-milliseconds string to a time. Zero value on
// absence or garbage.
func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
