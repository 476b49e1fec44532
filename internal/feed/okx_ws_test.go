package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCache struct {
	prices map[string]decimal.Decimal
	ts     map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{prices: make(map[string]decimal.Decimal), ts: make(map[string]time.Time)}
}

func (c *memCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	c.prices[symbol] = price
	c.ts[symbol] = ts
	return nil
}

func (c *memCache) GetPrice(_ context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	return c.prices[symbol], c.ts[symbol], nil
}

func (c *memCache) GetPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := c.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

// A server that accepts the websocket and drops it immediately forces the
// feed through its reconnect path on every cycle.
func droppingServer(t *testing.T, cycles *atomic.Int64) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cycles.Add(1)
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReconnectBoundsGoroutines(t *testing.T) {
	var cycles atomic.Int64
	wsURL := droppingServer(t, &cycles)

	feed := NewTickerFeed(wsURL, []string{"BTC-USDT-SWAP"}, newMemCache(), testLogger())
	feed.reconnect = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := runtime.NumGoroutine()
	done := make(chan struct{})
	go func() {
		_ = feed.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for cycles.Load() < 10 {
		select {
		case <-deadline:
			t.Fatalf("only %d reconnect cycles before deadline", cycles.Load())
		case <-time.After(2 * time.Millisecond):
		}
	}
	// Let the current cycle's helpers wind down before counting.
	time.Sleep(50 * time.Millisecond)

	// Each cycle runs a conn-closer and a ping writer; both must exit with
	// their connection instead of accumulating across reconnects.
	if n := runtime.NumGoroutine(); n > base+8 {
		t.Fatalf("goroutines grew from %d to %d across %d reconnects", base, n, cycles.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feed did not stop on cancel")
	}
}

func TestCloseStopsRun(t *testing.T) {
	var cycles atomic.Int64
	wsURL := droppingServer(t, &cycles)

	feed := NewTickerFeed(wsURL, []string{"BTC-USDT-SWAP"}, newMemCache(), testLogger())
	feed.reconnect = 2 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- feed.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	feed.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after Close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestHandleMessageKeepsDecimalPrecision(t *testing.T) {
	cache := newMemCache()
	feed := NewTickerFeed("", nil, cache, testLogger())

	raw := []byte(`{"arg":{"channel":"tickers","instId":"PEPE-USDT-SWAP"},` +
		`"data":[{"instId":"PEPE-USDT-SWAP","last":"0.000012345678901234","ts":"1735689600000"}]}`)
	feed.handleMessage(context.Background(), raw)

	got, ok := cache.prices["PEPE-USDT-SWAP"]
	if !ok {
		t.Fatal("price not cached")
	}
	if !got.Equal(decimal.RequireFromString("0.000012345678901234")) {
		t.Errorf("cached price = %s, want the tick verbatim", got)
	}
	if ts := cache.ts["PEPE-USDT-SWAP"]; !ts.Equal(time.UnixMilli(1735689600000).UTC()) {
		t.Errorf("cached ts = %v", ts)
	}
}

func TestHandleMessageSkipsBadTicks(t *testing.T) {
	cache := newMemCache()
	feed := NewTickerFeed("", nil, cache, testLogger())

	for _, raw := range []string{
		`{"event":"error","msg":"channel does not exist"}`,
		`{"data":[{"instId":"BTC-USDT-SWAP","last":"0","ts":"1"}]}`,
		`{"data":[{"instId":"BTC-USDT-SWAP","last":"not-a-number","ts":"1"}]}`,
		`not json`,
	} {
		feed.handleMessage(context.Background(), []byte(raw))
	}
	if len(cache.prices) != 0 {
		t.Errorf("cached %d prices from bad frames", len(cache.prices))
	}
}
