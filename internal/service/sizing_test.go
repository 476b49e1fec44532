package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func btcSwap() domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Symbol:  "BTC-USDT-SWAP",
		LotSize: d("0.1"),
		MinSize: d("0.1"),
		CtVal:   d("0.01"), // 0.01 BTC per contract
	}
}

func TestSizeOrder(t *testing.T) {
	tests := []struct {
		name     string
		info     domain.InstrumentInfo
		price    string
		budget   string
		leverage string
		want     string // contracts
	}{
		{
			// 100 * 5 / (0.01 * 50000) = 1 contract exactly
			name: "exact fit", info: btcSwap(),
			price: "50000", budget: "100", leverage: "5",
			want: "1",
		},
		{
			// 100 * 5 / 500 = 1, budget 130 -> 1.3 contracts on 0.1 grid
			name: "floors to lot grid", info: btcSwap(),
			price: "50000", budget: "130", leverage: "5",
			want: "1.3",
		},
		{
			// 117 * 5 / 500 = 1.17 -> floors to 1.1, never rounds up
			name: "never exceeds budget", info: btcSwap(),
			price: "50000", budget: "117", leverage: "5",
			want: "1.1",
		},
		{
			// grid floor lands below min size but the min itself is affordable
			name: "clamps up to min size",
			info: domain.InstrumentInfo{
				Symbol:  "ETH-USDT-SWAP",
				LotSize: d("1"),
				MinSize: d("0.1"),
				CtVal:   d("0.01"),
			},
			price: "50000", budget: "50", leverage: "5",
			want: "0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sized, err := SizeOrder(tt.info, d(tt.price), d(tt.budget), d(tt.leverage))
			if err != nil {
				t.Fatalf("SizeOrder: %v", err)
			}
			if !sized.Contracts.Equal(d(tt.want)) {
				t.Errorf("Contracts = %s, want %s", sized.Contracts, tt.want)
			}
			// required margin must never exceed the budget
			if sized.RequiredMargin.GreaterThan(d(tt.budget)) {
				t.Errorf("RequiredMargin %s exceeds budget %s", sized.RequiredMargin, tt.budget)
			}
			// contract count must sit on the lot grid
			if !sized.Contracts.Mod(tt.info.LotSize).IsZero() && !sized.Contracts.Equal(tt.info.MinSize) {
				t.Errorf("Contracts %s not on lot grid %s", sized.Contracts, tt.info.LotSize)
			}
		})
	}
}

func TestSizeOrderBudgetBelowMinLot(t *testing.T) {
	// min lot costs 0.1 * 0.01 * 50000 / 5 = 10 USDT
	_, err := SizeOrder(btcSwap(), d("50000"), d("9.99"), d("5"))
	if !errors.Is(err, domain.ErrBudgetBelowMinLot) {
		t.Fatalf("err = %v, want ErrBudgetBelowMinLot", err)
	}
}

func TestSizeOrderMinimums(t *testing.T) {
	info := btcSwap()
	info.MinCcyAmt = d("50")
	// 1 contract at 5x needs 100 margin, fine; force margin below min
	_, err := SizeOrder(info, d("50000"), d("10"), d("5"))
	if !errors.Is(err, domain.ErrBelowMinMargin) {
		t.Fatalf("err = %v, want ErrBelowMinMargin", err)
	}

	info = btcSwap()
	info.MinNotional = d("1000")
	// 0.1 contracts notional 50 < 1000
	_, err = SizeOrder(info, d("50000"), d("10"), d("5"))
	if !errors.Is(err, domain.ErrBelowMinNotional) {
		t.Fatalf("err = %v, want ErrBelowMinNotional", err)
	}
}

func TestSizeOrderRejectsBadInputs(t *testing.T) {
	if _, err := SizeOrder(btcSwap(), decimal.Zero, d("100"), d("5")); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("zero price: err = %v, want ErrPriceUnavailable", err)
	}
	if _, err := SizeOrder(btcSwap(), d("50000"), decimal.Zero, d("5")); err == nil {
		t.Error("zero budget accepted")
	}
	if _, err := SizeOrder(btcSwap(), d("50000"), d("100"), decimal.Zero); err == nil {
		t.Error("zero leverage accepted")
	}
}

func TestSizeOrderMarginMatchesNotional(t *testing.T) {
	sized, err := SizeOrder(btcSwap(), d("50000"), d("130"), d("5"))
	if err != nil {
		t.Fatalf("SizeOrder: %v", err)
	}
	// notional = contracts * ctVal * price; margin = notional / leverage
	wantNotional := sized.Contracts.Mul(d("0.01")).Mul(d("50000"))
	if !sized.Notional.Equal(wantNotional) {
		t.Errorf("Notional = %s, want %s", sized.Notional, wantNotional)
	}
	if !sized.RequiredMargin.Equal(wantNotional.Div(d("5"))) {
		t.Errorf("RequiredMargin = %s, want %s", sized.RequiredMargin, wantNotional.Div(d("5")))
	}
}
