package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type memPriceCache struct {
	prices map[string]decimal.Decimal
	ts     map[string]time.Time
	sets   int
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{prices: make(map[string]decimal.Decimal), ts: make(map[string]time.Time)}
}

func (c *memPriceCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	c.prices[symbol] = price
	c.ts[symbol] = ts
	c.sets++
	return nil
}

func (c *memPriceCache) GetPrice(_ context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	return c.prices[symbol], c.ts[symbol], nil
}

func (c *memPriceCache) GetPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestPriceServesFreshCacheEntry(t *testing.T) {
	ex := &fakeExchange{price: d("99999")}
	cache := newMemPriceCache()
	cache.prices["BTC-USDT-SWAP"] = d("50000")
	cache.ts["BTC-USDT-SWAP"] = time.Now()

	svc := NewPriceService(ex, cache, 10*time.Second, discardLogger())
	price, err := svc.Price(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(d("50000")) {
		t.Errorf("price = %s, want cached 50000", price)
	}
}

func TestPriceFallsBackToRESTWhenStale(t *testing.T) {
	ex := &fakeExchange{price: d("51234.5")}
	cache := newMemPriceCache()
	cache.prices["BTC-USDT-SWAP"] = d("50000")
	cache.ts["BTC-USDT-SWAP"] = time.Now().Add(-time.Minute)

	svc := NewPriceService(ex, cache, 10*time.Second, discardLogger())
	price, err := svc.Price(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(d("51234.5")) {
		t.Errorf("price = %s, want REST 51234.5", price)
	}
	if cache.sets != 1 {
		t.Errorf("cache writes = %d, want write-back of the REST price", cache.sets)
	}
}

func TestPriceCacheRoundTripIsExact(t *testing.T) {
	// More precision than a float64 carries; the cache must hand back the
	// decimal untouched.
	exact := d("0.123456789012345678")
	ex := &fakeExchange{price: exact}
	cache := newMemPriceCache()

	svc := NewPriceService(ex, cache, 10*time.Second, discardLogger())
	price, err := svc.Price(context.Background(), "PEPE-USDT-SWAP")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(exact) {
		t.Errorf("price = %s, want %s", price, exact)
	}
	if !cache.prices["PEPE-USDT-SWAP"].Equal(exact) {
		t.Errorf("cached = %s, want the exact decimal %s", cache.prices["PEPE-USDT-SWAP"], exact)
	}
}

func TestPriceWorksWithoutCache(t *testing.T) {
	ex := &fakeExchange{price: d("42")}
	svc := NewPriceService(ex, nil, 10*time.Second, discardLogger())
	price, err := svc.Price(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !price.Equal(d("42")) {
		t.Errorf("price = %s", price)
	}
}
