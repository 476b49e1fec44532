package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// contractPrecision caps intermediate contract counts at eight decimal
// places before flooring to the lot grid.
const contractPrecision = 8

// SizeOrder computes the largest legal contract count purchasable with the
// given margin budget at the given leverage. All rounding floors: the result
// never exceeds the budget and always lands on the instrument's lot grid.
func SizeOrder(info domain.InstrumentInfo, price, budget, leverage decimal.Decimal) (domain.SizedOrder, error) {
	if !price.IsPositive() {
		return domain.SizedOrder{}, domain.ErrPriceUnavailable
	}
	if !budget.IsPositive() || !leverage.IsPositive() {
		return domain.SizedOrder{}, fmt.Errorf("sizing: budget and leverage must be positive")
	}

	unitCost := info.CtVal.Mul(price) // notional per contract

	// The smallest order the exchange will accept must fit the budget.
	minLotCost := info.MinSize.Mul(unitCost).Div(leverage)
	if minLotCost.GreaterThan(budget) {
		return domain.SizedOrder{}, fmt.Errorf("sizing: %s: need %s for %s contracts, have %s: %w",
			info.Symbol, minLotCost.String(), info.MinSize.String(), budget.String(),
			domain.ErrBudgetBelowMinLot)
	}

	maxContracts := budget.Mul(leverage).Div(unitCost).RoundDown(contractPrecision)

	// Floor onto the lot grid.
	contracts := maxContracts.Div(info.LotSize).Floor().Mul(info.LotSize)

	if contracts.LessThan(info.MinSize) {
		// The grid floor dropped below the minimum; the minimum itself is
		// affordable per the check above, so clamp up.
		contracts = info.MinSize
	}
	if !contracts.IsPositive() {
		return domain.SizedOrder{}, fmt.Errorf("sizing: %s: computed zero contracts: %w",
			info.Symbol, domain.ErrBelowMinSize)
	}

	notional := contracts.Mul(unitCost)
	margin := notional.Div(leverage)

	if info.MinCcyAmt.IsPositive() && margin.LessThan(info.MinCcyAmt) {
		return domain.SizedOrder{}, fmt.Errorf("sizing: %s: margin %s below minimum %s: %w",
			info.Symbol, margin.String(), info.MinCcyAmt.String(), domain.ErrBelowMinMargin)
	}
	if info.MinNotional.IsPositive() && notional.LessThan(info.MinNotional) {
		return domain.SizedOrder{}, fmt.Errorf("sizing: %s: notional %s below minimum %s: %w",
			info.Symbol, notional.String(), info.MinNotional.String(), domain.ErrBelowMinNotional)
	}

	return domain.SizedOrder{
		Contracts:      contracts,
		Notional:       notional,
		RequiredMargin: margin,
	}, nil
}

// SizingService resolves instrument metadata and the live price, then sizes
// orders with SizeOrder.
type SizingService struct {
	instruments *InstrumentCache
	prices      *PriceService
	logger      *slog.Logger
}

// NewSizingService creates a SizingService.
func NewSizingService(instruments *InstrumentCache, prices *PriceService, logger *slog.Logger) *SizingService {
	return &SizingService{
		instruments: instruments,
		prices:      prices,
		logger:      logger.With(slog.String("component", "sizing")),
	}
}

// CalculateOrderSize sizes a market order for symbol given a margin budget
// and leverage, using the current price.
func (s *SizingService) CalculateOrderSize(ctx context.Context, symbol string, budget, leverage decimal.Decimal) (domain.SizedOrder, decimal.Decimal, error) {
	info, err := s.instruments.Get(ctx, symbol)
	if err != nil {
		return domain.SizedOrder{}, decimal.Zero, err
	}
	price, err := s.prices.Price(ctx, symbol)
	if err != nil {
		return domain.SizedOrder{}, decimal.Zero, err
	}

	sized, err := SizeOrder(info, price, budget, leverage)
	if err != nil {
		return domain.SizedOrder{}, decimal.Zero, err
	}

	s.logger.Debug("sizing: order sized",
		slog.String("symbol", symbol),
		slog.String("price", price.String()),
		slog.String("contracts", sized.Contracts.String()),
		slog.String("margin", sized.RequiredMargin.String()),
	)
	return sized, price, nil
}
