// Package geo answers whether trading calls are permitted from the current
// network location. The exchange rejects orders from restricted regions with
// an opaque error, so the bot checks its own egress country up front.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultPrimaryURL  = "http://ip-api.com/json"
	defaultFallbackURL = "https://ipapi.co/json/"

	// cacheTTL bounds how often the country lookup hits the network.
	cacheTTL = 5 * time.Minute
)

// Gate resolves the egress country and blocks configured regions. Lookup
// failures fail open: a dead geolocation provider must not halt trading, the
// exchange itself is the final authority.
type Gate struct {
	httpClient  *http.Client
	logger      *slog.Logger
	blocked     map[string]struct{}
	primaryURL  string
	fallbackURL string

	mu        sync.Mutex
	country   string
	fetchedAt time.Time
}

// Option customises a Gate.
type Option func(*Gate)

// WithHTTPClient overrides the HTTP client used for lookups.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gate) { g.httpClient = c }
}

// WithEndpoints overrides the lookup provider URLs.
func WithEndpoints(primary, fallback string) Option {
	return func(g *Gate) {
		g.primaryURL = primary
		g.fallbackURL = fallback
	}
}

// New builds a Gate blocking the given ISO country codes. An empty list
// defaults to blocking the US.
func New(blockedCountries []string, logger *slog.Logger, opts ...Option) *Gate {
	if len(blockedCountries) == 0 {
		blockedCountries = []string{"US"}
	}
	blocked := make(map[string]struct{}, len(blockedCountries))
	for _, c := range blockedCountries {
		blocked[strings.ToUpper(c)] = struct{}{}
	}
	g := &Gate{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With(slog.String("component", "geo")),
		blocked:     blocked,
		primaryURL:  defaultPrimaryURL,
		fallbackURL: defaultFallbackURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow reports whether trading calls may proceed from the current location.
func (g *Gate) Allow(ctx context.Context) bool {
	country, err := g.Country(ctx)
	if err != nil {
		g.logger.Warn("geo: country lookup failed, allowing",
			slog.String("error", err.Error()))
		return true
	}
	if _, hit := g.blocked[country]; hit {
		g.logger.Warn("geo: trading blocked for region",
			slog.String("country", country))
		return false
	}
	return true
}

// Country returns the cached egress country code, refreshing it when the
// cache entry is older than five minutes.
func (g *Gate) Country(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.country != "" && time.Since(g.fetchedAt) < cacheTTL {
		return g.country, nil
	}

	country, err := g.lookup(ctx, g.primaryURL, "countryCode")
	if err != nil {
		g.logger.Warn("geo: primary lookup failed, trying fallback",
			slog.String("error", err.Error()))
		country, err = g.lookup(ctx, g.fallbackURL, "country_code")
	}
	if err != nil {
		return "", err
	}

	g.country = country
	g.fetchedAt = time.Now()
	g.logger.Debug("geo: resolved egress country", slog.String("country", country))
	return country, nil
}

func (g *Gate) lookup(ctx context.Context, url, field string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("geo: build request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo: lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo: lookup: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("geo: read response: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("geo: decode response: %w", err)
	}
	code, _ := payload[field].(string)
	if code == "" {
		return "", fmt.Errorf("geo: response missing %s field", field)
	}
	return strings.ToUpper(code), nil
}

// Static is a fixed-answer gate for tests and for deployments that disable
// the location check.
type Static bool

// Allow implements domain.GeoGate.
func (s Static) Allow(context.Context) bool { return bool(s) }
