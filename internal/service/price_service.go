package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// PriceService serves mark prices, preferring fresh cache entries fed by the
// websocket ticker stream and falling back to the REST ticker.
type PriceService struct {
	exchange Exchange
	cache    domain.PriceCache
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewPriceService creates a PriceService. maxAge bounds how stale a cached
// price may be before the REST ticker is consulted.
func NewPriceService(exchange Exchange, cache domain.PriceCache, maxAge time.Duration, logger *slog.Logger) *PriceService {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &PriceService{
		exchange: exchange,
		cache:    cache,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "prices")),
	}
}

// Price returns the latest known price for symbol.
func (s *PriceService) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, symbol)
		if err == nil && price.IsPositive() && time.Since(ts) < s.maxAge {
			return price, nil
		}
		if err != nil && ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
	}

	price, err := s.exchange.LastPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("prices: %s: %w", symbol, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.SetPrice(ctx, symbol, price, time.Now().UTC()); cacheErr != nil {
			s.logger.WarnContext(ctx, "prices: cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return price, nil
}
