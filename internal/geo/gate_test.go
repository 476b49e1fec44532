package geo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllowBlockedCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"countryCode":"US"}`))
	}))
	defer srv.Close()

	g := New(nil, discardLogger(), WithEndpoints(srv.URL, srv.URL))
	if g.Allow(context.Background()) {
		t.Fatal("Allow = true for blocked country")
	}
}

func TestAllowPermittedCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"countryCode":"DE"}`))
	}))
	defer srv.Close()

	g := New([]string{"US", "GB"}, discardLogger(), WithEndpoints(srv.URL, srv.URL))
	if !g.Allow(context.Background()) {
		t.Fatal("Allow = false for permitted country")
	}
}

func TestAllowFailsOpenOnLookupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := New(nil, discardLogger(), WithEndpoints(srv.URL, srv.URL))
	if !g.Allow(context.Background()) {
		t.Fatal("Allow = false when lookup fails, want fail-open")
	}
}

func TestFallbackProviderUsed(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country_code":"jp"}`))
	}))
	defer fallback.Close()

	g := New(nil, discardLogger(), WithEndpoints(primary.URL, fallback.URL))
	country, err := g.Country(context.Background())
	if err != nil {
		t.Fatalf("Country returned %v", err)
	}
	if country != "JP" {
		t.Fatalf("Country = %q, want JP", country)
	}
}

func TestCountryCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"countryCode":"DE"}`))
	}))
	defer srv.Close()

	g := New(nil, discardLogger(), WithEndpoints(srv.URL, srv.URL))
	for i := 0; i < 5; i++ {
		if _, err := g.Country(context.Background()); err != nil {
			t.Fatalf("Country returned %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("lookup hit provider %d times, want 1", got)
	}
}

func TestStaticGate(t *testing.T) {
	if !Static(true).Allow(context.Background()) {
		t.Fatal("Static(true).Allow = false")
	}
	if Static(false).Allow(context.Background()) {
		t.Fatal("Static(false).Allow = true")
	}
}
