package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// InstrumentCache is a read-through cache of instrument sizing metadata.
// Entries live for the process lifetime; the exchange does not change lot
// size or contract value intraday. Concurrent misses for the same symbol may
// fetch twice, last write wins with identical values.
type InstrumentCache struct {
	exchange Exchange
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.InstrumentInfo
}

// NewInstrumentCache creates an empty cache backed by the exchange.
func NewInstrumentCache(exchange Exchange, logger *slog.Logger) *InstrumentCache {
	return &InstrumentCache{
		exchange: exchange,
		logger:   logger.With(slog.String("component", "instruments")),
		cache:    make(map[string]domain.InstrumentInfo),
	}
}

// Get returns metadata for symbol, fetching it on first use.
func (c *InstrumentCache) Get(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	c.mu.RLock()
	info, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := c.exchange.Instrument(ctx, symbol)
	if err != nil {
		return domain.InstrumentInfo{}, fmt.Errorf("instruments: fetch %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.cache[symbol] = info
	c.mu.Unlock()

	c.logger.Debug("instruments: cached metadata",
		slog.String("symbol", symbol),
		slog.String("lot_size", info.LotSize.String()),
		slog.String("min_size", info.MinSize.String()),
		slog.String("ct_val", info.CtVal.String()),
	)
	return info, nil
}
