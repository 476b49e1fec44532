package okx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/crypto"
	"github.com/alanyoungcy/okxbot/internal/domain"
	"github.com/alanyoungcy/okxbot/internal/geo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	auth := &crypto.HMACAuth{Key: "k", Secret: "s", Passphrase: "p"}
	return NewClient(srv.URL, auth, geo.Static(true), testLogger()), srv
}

func TestPlaceOrderSignsAndParses(t *testing.T) {
	var gotBody string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/trade/order" {
			t.Errorf("path = %q", r.URL.Path)
		}
		for _, h := range []string{"OK-ACCESS-KEY", "OK-ACCESS-SIGN", "OK-ACCESS-TIMESTAMP", "OK-ACCESS-PASSPHRASE"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing header %s", h)
			}
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"554321","sCode":"0","sMsg":""}]}`))
	})

	orderID, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   "BTC-USDT-SWAP",
		Side:     domain.OrderSideBuy,
		PosSide:  domain.PosSideLong,
		Size:     decimal.RequireFromString("2"),
		Leverage: decimal.RequireFromString("5"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned %v", err)
	}
	if orderID != "554321" {
		t.Fatalf("orderID = %q", orderID)
	}
	for _, want := range []string{`"tdMode":"isolated"`, `"ordType":"market"`, `"posSide":"long"`, `"sz":"2"`, `"lever":"5"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body %q missing %s", gotBody, want)
		}
	}
}

func TestPlaceOrderNetModeOmitsPosSide(t *testing.T) {
	var gotBody string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"1","sCode":"0"}]}`))
	})

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol:   "ETH-USDT-SWAP",
		Side:     domain.OrderSideSell,
		PosSide:  domain.PosSideNet,
		Size:     decimal.NewFromInt(1),
		Leverage: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned %v", err)
	}
	if strings.Contains(gotBody, "posSide") {
		t.Fatalf("net-mode body should omit posSide, got %q", gotBody)
	}
}

func TestExchangeErrorPreservesMessage(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51008","msg":"Insufficient margin","data":[]}`))
	})

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC-USDT-SWAP", Side: domain.OrderSideBuy,
		Size: decimal.NewFromInt(1), Leverage: decimal.NewFromInt(5),
	})
	if err == nil {
		t.Fatal("PlaceOrder succeeded, want exchange error")
	}
	ee, ok := domain.AsExchangeError(err)
	if !ok {
		t.Fatalf("error %v is not an ExchangeError", err)
	}
	if ee.Code != "51008" || ee.Msg != "Insufficient margin" {
		t.Fatalf("ExchangeError = %+v", ee)
	}
}

func TestGateBlocksWithoutNetworkIO(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	auth := &crypto.HMACAuth{Key: "k", Secret: "s", Passphrase: "p"}
	c := NewClient(srv.URL, auth, geo.Static(false), testLogger())

	_, err := c.AvailableBalance(context.Background())
	if !errors.Is(err, domain.ErrGeoBlocked) {
		t.Fatalf("err = %v, want ErrGeoBlocked", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("blocked gate still sent %d requests", hits.Load())
	}
}

func TestOrderDetailParsesFill(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ordId"); got != "777" {
			t.Errorf("ordId = %q", got)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"ordId":"777","tradeId":"42","state":"filled","avgPx":"42000.5","accFillSz":"3","fee":"-0.63","pnl":"0","lever":"5"}
		]}`))
	})

	fill, err := c.OrderDetail(context.Background(), "BTC-USDT-SWAP", "777")
	if err != nil {
		t.Fatalf("OrderDetail returned %v", err)
	}
	if !fill.Filled() {
		t.Fatal("fill.Filled() = false")
	}
	if !fill.Price.Equal(decimal.RequireFromString("42000.5")) {
		t.Errorf("Price = %s", fill.Price)
	}
	if !fill.Fee.Equal(decimal.RequireFromString("-0.63")) {
		t.Errorf("Fee = %s", fill.Fee)
	}
	if fill.TradeID != "42" {
		t.Errorf("TradeID = %q", fill.TradeID)
	}
}

func TestAvailableBalance(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"details":[{"ccy":"BTC","availBal":"0.5"},{"ccy":"USDT","availBal":"1234.56"}]}
		]}`))
	})

	bal, err := c.AvailableBalance(context.Background())
	if err != nil {
		t.Fatalf("AvailableBalance returned %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("balance = %s", bal)
	}
}

func TestIsHedgeMode(t *testing.T) {
	tests := []struct {
		posMode string
		want    bool
	}{
		{"long_short_mode", true},
		{"net_mode", false},
	}
	for _, tt := range tests {
		t.Run(tt.posMode, func(t *testing.T) {
			c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"code":"0","msg":"","data":[{"posMode":"` + tt.posMode + `"}]}`))
			})
			got, err := c.IsHedgeMode(context.Background())
			if err != nil {
				t.Fatalf("IsHedgeMode returned %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsHedgeMode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstrumentDefaults(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OK-ACCESS-SIGN") != "" {
			t.Error("public instrument request was signed")
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"XRP-USDT-SWAP","lotSz":"","minSz":"","ctVal":"","minCcyAmt":"","minNotional":""}
		]}`))
	})

	info, err := c.Instrument(context.Background(), "XRP-USDT-SWAP")
	if err != nil {
		t.Fatalf("Instrument returned %v", err)
	}
	if !info.LotSize.Equal(decimal.NewFromInt(1)) {
		t.Errorf("LotSize = %s, want 1", info.LotSize)
	}
	if !info.CtVal.Equal(decimal.NewFromInt(1)) {
		t.Errorf("CtVal = %s, want 1", info.CtVal)
	}
	if !info.MinSize.IsZero() || !info.MinCcyAmt.IsZero() || !info.MinNotional.IsZero() {
		t.Errorf("minimums not zero: %+v", info)
	}
}

func TestPositionsHistoryParsesCloseTime(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"posId":"9001","instId":"BTC-USDT-SWAP","realizedPnl":"15.5","pnlRatio":"0.05","fee":"-1.2","fundingFee":"-0.1","uTime":"1718000000000"}
		]}`))
	})

	recs, err := c.PositionsHistory(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatalf("PositionsHistory returned %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	rec := recs[0]
	if !rec.Closed() {
		t.Fatal("record not marked closed")
	}
	if rec.PositionID != "9001" {
		t.Errorf("PositionID = %q", rec.PositionID)
	}
	if !rec.RealizedPnL.Equal(decimal.RequireFromString("15.5")) {
		t.Errorf("RealizedPnL = %s", rec.RealizedPnL)
	}
}

func TestLastPriceUnavailable(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
	})

	_, err := c.LastPrice(context.Background(), "BTC-USDT-SWAP")
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}

type recordingLimiter struct {
	keys []string
}

func (l *recordingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *recordingLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return nil
}

func TestRateLimiterKeyedPerEndpoint(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/account/balance":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"details":[{"ccy":"USDT","availBal":"100"}]}]}`))
		case "/api/v5/trade/order":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"1","state":"filled","accFillSz":"1","avgPx":"50000","fee":"-0.1","pnl":"0"}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})
	limiter := &recordingLimiter{}
	c.SetRateLimiter(limiter)

	if _, err := c.AvailableBalance(context.Background()); err != nil {
		t.Fatalf("AvailableBalance returned %v", err)
	}
	if _, err := c.OrderDetail(context.Background(), "BTC-USDT-SWAP", "1"); err != nil {
		t.Fatalf("OrderDetail returned %v", err)
	}

	want := []string{"okx:/api/v5/account/balance", "okx:/api/v5/trade/order"}
	if len(limiter.keys) != len(want) {
		t.Fatalf("limiter keys = %v, want %v", limiter.keys, want)
	}
	for i := range want {
		if limiter.keys[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, limiter.keys[i], want[i])
		}
	}
}
