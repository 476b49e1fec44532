// Package feed streams live ticker prices from the OKX public websocket into
// the price cache, keeping the sizing path off the REST ticker.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// DefaultWSURL is the OKX public websocket endpoint.
const DefaultWSURL = "wss://ws.okx.com:8443/ws/v5/public"

const (
	// pingInterval keeps the connection alive; the server drops idle
	// connections after 30 seconds.
	pingInterval = 20 * time.Second

	reconnectDelay = 2 * time.Second
	readTimeout    = 40 * time.Second
)

// wsRequest is the subscribe frame for the tickers channel.
type wsRequest struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// wsMessage is a data push from the tickers channel.
type wsMessage struct {
	Event string `json:"event"`
	Arg   wsArg  `json:"arg"`
	Data  []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// TickerFeed subscribes to OKX ticker pushes for a set of instruments and
// writes each last price into the price cache. Reconnects on disconnect.
type TickerFeed struct {
	wsURL     string
	symbols   []string
	prices    domain.PriceCache
	logger    *slog.Logger
	reconnect time.Duration
	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given instruments.
func NewTickerFeed(wsURL string, symbols []string, prices domain.PriceCache, logger *slog.Logger) *TickerFeed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &TickerFeed{
		wsURL:     wsURL,
		symbols:   symbols,
		prices:    prices,
		logger:    logger.With(slog.String("component", "ticker_feed")),
		reconnect: reconnectDelay,
		done:      make(chan struct{}),
	}
}

// Run connects, subscribes, and pumps ticker updates until ctx is cancelled.
// Reconnects with a fixed delay on disconnect.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("feed: no instruments to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed: disconnected, reconnecting",
			slog.String("error", fmt.Sprintf("%v", err)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(f.reconnect):
		}
	}
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	args := make([]wsArg, 0, len(f.symbols))
	for _, sym := range f.symbols {
		args = append(args, wsArg{Channel: "tickers", InstID: sym})
	}
	if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed: subscribed", slog.Int("instruments", len(f.symbols)))

	// connDone tears down this connection's helper goroutines when the read
	// loop returns, so a reconnect cycle never strands them.
	connDone := make(chan struct{})
	defer close(connDone)

	// Close the connection when the context ends so the read loop unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-connDone:
		}
		_ = conn.Close()
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case <-connDone:
				return
			case <-pingTicker.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}
		if string(raw) == "pong" {
			continue
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *TickerFeed) handleMessage(ctx context.Context, raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Debug("feed: undecodable frame", slog.Int("len", len(raw)))
		return
	}
	if msg.Event != "" {
		if msg.Event == "error" {
			f.logger.Warn("feed: server error event", slog.String("frame", string(raw)))
		}
		return
	}

	for _, tick := range msg.Data {
		price, err := parsePrice(tick.Last)
		if err != nil {
			continue
		}
		ts := parseMillis(tick.Ts)
		if err := f.prices.SetPrice(ctx, tick.InstID, price, ts); err != nil {
			f.logger.Warn("feed: price cache write failed",
				slog.String("symbol", tick.InstID),
				slog.String("error", err.Error()))
		}
	}
}
