// Package okx is the REST client for the OKX v5 exchange API, covering the
// private trade/account endpoints and the public instrument and ticker
// endpoints used by the execution engine.
package okx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/crypto"
	"github.com/alanyoungcy/okxbot/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.okx.com"

const settleCcy = "USDT"

// Client is the REST client for the OKX exchange API. Every private call
// consults the geolocation gate before any network I/O.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	gate       domain.GeoGate
	limiter    domain.RateLimiter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new OKX REST client.
func NewClient(baseURL string, auth *crypto.HMACAuth, gate domain.GeoGate, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		gate:    gate,
		logger:  logger.With(slog.String("component", "okx")),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
	}
}

// SetRateLimiter installs a limiter that paces private API calls. Must be
// called before the client is shared.
func (c *Client) SetRateLimiter(limiter domain.RateLimiter) {
	c.limiter = limiter
}

// PlaceOrder submits an isolated-margin market order and returns the
// exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := placeOrderRequest{
		InstID:  req.Symbol,
		TdMode:  "isolated",
		Side:    string(req.Side),
		PosSide: string(req.PosSide),
		OrdType: "market",
		Sz:      req.Size.String(),
		Lever:   req.Leverage.String(),
	}

	raw, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/trade/order", body)
	if err != nil {
		return "", fmt.Errorf("okx: place order: %w", err)
	}

	var data []placeOrderData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("okx: decode order response: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("okx: place order: empty response")
	}
	if data[0].SCode != "" && data[0].SCode != "0" {
		return "", fmt.Errorf("okx: place order: %w",
			&domain.ExchangeError{Code: data[0].SCode, Msg: data[0].SMsg})
	}
	return data[0].OrdID, nil
}

// OrderDetail fetches the settled state of an order.
func (c *Client) OrderDetail(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set("ordId", orderID)

	raw, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v5/trade/order?"+params.Encode(), nil)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("okx: order detail %s: %w", orderID, err)
	}

	var data []orderData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.OrderFill{}, fmt.Errorf("okx: decode order detail: %w", err)
	}
	if len(data) == 0 {
		return domain.OrderFill{}, fmt.Errorf("okx: order detail %s: %w", orderID, domain.ErrNotFound)
	}
	return data[0].toFill(), nil
}

// OrderArchive fetches an order from the history archive, which carries the
// trade id needed to match the order back to the position it opened.
func (c *Client) OrderArchive(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", symbol)
	params.Set("ordId", orderID)

	raw, err := c.doSignedRequest(ctx, http.MethodGet,
		"/api/v5/trade/orders-history-archive?"+params.Encode(), nil)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("okx: order archive %s: %w", orderID, err)
	}

	var data []orderData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.OrderFill{}, fmt.Errorf("okx: decode order archive: %w", err)
	}
	if len(data) == 0 {
		return domain.OrderFill{}, fmt.Errorf("okx: order archive %s: %w", orderID, domain.ErrNotFound)
	}
	return data[0].toFill(), nil
}

// Positions lists live positions, optionally filtered to one instrument.
func (c *Client) Positions(ctx context.Context, symbol string) ([]domain.PositionSnapshot, error) {
	path := "/api/v5/account/positions"
	if symbol != "" {
		params := url.Values{}
		params.Set("instId", symbol)
		path += "?" + params.Encode()
	}

	raw, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: positions: %w", err)
	}

	var data []positionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("okx: decode positions: %w", err)
	}
	snaps := make([]domain.PositionSnapshot, 0, len(data))
	for _, d := range data {
		snaps = append(snaps, d.toSnapshot())
	}
	return snaps, nil
}

// PositionsHistory lists settled positions for an instrument, most recent
// first as returned by the exchange.
func (c *Client) PositionsHistory(ctx context.Context, symbol string) ([]domain.PositionHistoryRecord, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	if symbol != "" {
		params.Set("instId", symbol)
	}

	raw, err := c.doSignedRequest(ctx, http.MethodGet,
		"/api/v5/account/positions-history?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("okx: positions history: %w", err)
	}

	var data []positionHistoryData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("okx: decode positions history: %w", err)
	}
	recs := make([]domain.PositionHistoryRecord, 0, len(data))
	for _, d := range data {
		recs = append(recs, d.toRecord())
	}
	return recs, nil
}

// AvailableBalance returns the free USDT balance of the trading account.
func (c *Client) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v5/account/balance?ccy="+settleCcy, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx: balance: %w", err)
	}

	var data []balanceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return decimal.Zero, fmt.Errorf("okx: decode balance: %w", err)
	}
	for _, d := range data {
		for _, detail := range d.Details {
			if detail.Ccy == settleCcy {
				return parseDec(detail.AvailBal), nil
			}
		}
	}
	return decimal.Zero, nil
}

// CheckConnection verifies credentials and reachability with a balance call.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.AvailableBalance(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnectivity, err)
	}
	return nil
}

// IsHedgeMode reports whether the account runs in long/short position mode.
// Hedge-mode orders must carry an explicit posSide.
func (c *Client) IsHedgeMode(ctx context.Context) (bool, error) {
	raw, err := c.doSignedRequest(ctx, http.MethodGet, "/api/v5/account/config", nil)
	if err != nil {
		return false, fmt.Errorf("okx: account config: %w", err)
	}

	var data []accountConfigData
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("okx: decode account config: %w", err)
	}
	if len(data) == 0 {
		return false, fmt.Errorf("okx: account config: empty response")
	}
	return data[0].PosMode == "long_short_mode", nil
}

// SetLeverage configures isolated-margin leverage for an instrument.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error {
	body := setLeverageRequest{
		InstID:  symbol,
		Lever:   leverage.String(),
		MgnMode: "isolated",
	}
	if _, err := c.doSignedRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", body); err != nil {
		return fmt.Errorf("okx: set leverage %s: %w", symbol, err)
	}
	return nil
}

// Instrument fetches sizing metadata for a swap instrument. Public endpoint,
// no signing.
func (c *Client) Instrument(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", symbol)

	raw, err := c.doPublicRequest(ctx, "/api/v5/public/instruments?"+params.Encode())
	if err != nil {
		return domain.InstrumentInfo{}, fmt.Errorf("okx: instrument %s: %w", symbol, err)
	}

	var data []instrumentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.InstrumentInfo{}, fmt.Errorf("okx: decode instrument: %w", err)
	}
	if len(data) == 0 {
		return domain.InstrumentInfo{}, fmt.Errorf("okx: instrument %s: %w", symbol, domain.ErrNotFound)
	}
	return data[0].toInfo(), nil
}

// LastPrice fetches the latest trade price for an instrument. Public
// endpoint, no signing.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("instId", symbol)

	raw, err := c.doPublicRequest(ctx, "/api/v5/market/ticker?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx: ticker %s: %w", symbol, err)
	}

	var data []tickerData
	if err := json.Unmarshal(raw, &data); err != nil {
		return decimal.Zero, fmt.Errorf("okx: decode ticker: %w", err)
	}
	if len(data) == 0 || parseDec(data[0].Last).IsZero() {
		return decimal.Zero, fmt.Errorf("okx: ticker %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return parseDec(data[0].Last), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// limiterKey derives the rate-limit key for a signed request. The exchange
// limits per endpoint, so the query string is stripped and each path gets
// its own window.
func limiterKey(requestPath string) string {
	if i := strings.Index(requestPath, "?"); i >= 0 {
		requestPath = requestPath[:i]
	}
	return "okx:" + requestPath
}

// doSignedRequest builds, signs, sends, and reads a private API request. The
// geolocation gate is checked first; a blocked gate short-circuits without
// touching the network.
func (c *Client) doSignedRequest(ctx context.Context, method, requestPath string, reqBody any) ([]byte, error) {
	if c.gate != nil && !c.gate.Allow(ctx) {
		return nil, domain.ErrGeoBlocked
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey(requestPath)); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyStr string
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.auth.Headers(method, requestPath, bodyStr) {
		req.Header.Set(k, v)
	}

	return c.send(req)
}

// doPublicRequest sends an unsigned GET against a public endpoint.
func (c *Client) doPublicRequest(ctx context.Context, requestPath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.send(req)
}

// send executes the request and unwraps the response envelope, returning the
// raw data array. A non-zero business code becomes an ExchangeError carrying
// the exchange's message verbatim.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnauthorized, resp.StatusCode, respBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Code != "0" {
		c.logger.Debug("okx: api error response",
			slog.String("code", envelope.Code),
			slog.String("body", string(respBody)))
		return nil, &domain.ExchangeError{Code: envelope.Code, Msg: envelope.Msg}
	}
	return envelope.Data, nil
}
