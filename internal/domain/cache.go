package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest mark prices. Prices stay
// decimal across the cache boundary so no value passes through binary
// floating point.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// SignalBus provides pub/sub between the execution engine and the external
// signal engine.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter paces calls against the exchange's per-endpoint limits.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used to serialise lifecycle
// operations on a single position across bot instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// GeoGate decides whether trading calls are permitted from the current
// network location. Allow must not perform network I/O on the hot path more
// than its own cache policy requires.
type GeoGate interface {
	Allow(ctx context.Context) bool
}
