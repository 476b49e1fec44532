package service

import (
	"context"
	"errors"
	"testing"
)

func TestInstrumentCacheFetchesOnce(t *testing.T) {
	ex := &fakeExchange{info: btcSwap()}
	cache := NewInstrumentCache(ex, discardLogger())

	for i := 0; i < 3; i++ {
		info, err := cache.Get(context.Background(), "BTC-USDT-SWAP")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !info.LotSize.Equal(d("0.1")) {
			t.Errorf("LotSize = %s", info.LotSize)
		}
	}
	if ex.instrumentCalls != 1 {
		t.Errorf("exchange hit %d times, want 1", ex.instrumentCalls)
	}
}

func TestInstrumentCacheDoesNotCacheErrors(t *testing.T) {
	ex := &fakeExchange{infoErr: errors.New("boom")}
	cache := NewInstrumentCache(ex, discardLogger())

	if _, err := cache.Get(context.Background(), "BTC-USDT-SWAP"); err == nil {
		t.Fatal("expected error")
	}

	ex.infoErr = nil
	ex.info = btcSwap()
	info, err := cache.Get(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if !info.MinSize.Equal(d("0.1")) {
		t.Errorf("MinSize = %s", info.MinSize)
	}
	if ex.instrumentCalls != 2 {
		t.Errorf("exchange hit %d times, want 2", ex.instrumentCalls)
	}
}
