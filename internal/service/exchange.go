package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// Exchange is the surface of the exchange REST client the services depend
// on. Implemented by platform/okx.Client; faked in tests.
type Exchange interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error)
	OrderDetail(ctx context.Context, symbol, orderID string) (domain.OrderFill, error)
	OrderArchive(ctx context.Context, symbol, orderID string) (domain.OrderFill, error)
	Positions(ctx context.Context, symbol string) ([]domain.PositionSnapshot, error)
	PositionsHistory(ctx context.Context, symbol string) ([]domain.PositionHistoryRecord, error)
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
	CheckConnection(ctx context.Context) error
	IsHedgeMode(ctx context.Context) (bool, error)
	SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error
	Instrument(ctx context.Context, symbol string) (domain.InstrumentInfo, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
