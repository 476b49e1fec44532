package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPlaceholderPositionID(t *testing.T) {
	id := NewPlaceholderPositionID()
	if !IsPlaceholderPositionID(id) {
		t.Fatalf("minted id %q not recognised as placeholder", id)
	}
	if IsPlaceholderPositionID("123456789") {
		t.Error("exchange id misclassified as placeholder")
	}
	other := NewPlaceholderPositionID()
	if id == other {
		t.Error("two minted placeholders collided")
	}
}

func TestAdoptPositionID(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		incoming string
		want     bool
		wantID   string
	}{
		{"placeholder adopts real id", "temp_ab12cd34", "555", true, "555"},
		{"empty adopts real id", "", "555", true, "555"},
		{"real id never overwritten", "777", "555", false, "777"},
		{"placeholder rejected as incoming", "temp_ab12cd34", "temp_ffffffff", false, "temp_ab12cd34"},
		{"empty incoming rejected", "temp_ab12cd34", "", false, "temp_ab12cd34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Position{PositionID: tt.current}
			if got := p.AdoptPositionID(tt.incoming); got != tt.want {
				t.Errorf("AdoptPositionID(%q) = %v, want %v", tt.incoming, got, tt.want)
			}
			if p.PositionID != tt.wantID {
				t.Errorf("PositionID = %q, want %q", p.PositionID, tt.wantID)
			}
		})
	}
}

func TestApplySyncSnapshot(t *testing.T) {
	now := time.Now()
	p := Position{
		Status:          PositionStatusOpen,
		EntryPrice:      d("50000"),
		Size:            d("10"),
		AllocatedAmount: d("100"),
	}
	snap := PositionSnapshot{
		MarkPrice:       d("51000"),
		UnrealizedPnL:   d("10"),
		UnrealizedPnLPc: d("10"),
		RealizedPnL:     d("-0.5"),
		Size:            d("10"),
		OpeningFee:      d("-0.25"),
		FundingFee:      d("-0.1"),
		Margin:          d("100"),
	}
	if !p.ApplySyncSnapshot(snap, now) {
		t.Fatal("snapshot not applied to open position")
	}
	if !p.CurrentPrice.Equal(d("51000")) {
		t.Errorf("CurrentPrice = %s", p.CurrentPrice)
	}
	if !p.EntryPrice.Equal(d("50000")) {
		t.Errorf("EntryPrice mutated to %s", p.EntryPrice)
	}
	if !p.OpeningFees.Equal(d("0.25")) {
		t.Errorf("OpeningFees = %s, want 0.25 (absolute)", p.OpeningFees)
	}
	if !p.FundingFees.Equal(d("0.1")) {
		t.Errorf("FundingFees = %s, want 0.1 (absolute)", p.FundingFees)
	}
	if !p.LastUpdated.Equal(now) {
		t.Error("LastUpdated not set")
	}
}

func TestApplySyncSnapshotSkipsZeroSizeAndMargin(t *testing.T) {
	p := Position{
		Status:          PositionStatusOpen,
		Size:            d("10"),
		AllocatedAmount: d("100"),
	}
	snap := PositionSnapshot{Size: decimal.Zero, Margin: decimal.Zero}
	p.ApplySyncSnapshot(snap, time.Now())
	if !p.Size.Equal(d("10")) {
		t.Errorf("Size overwritten by zero snapshot: %s", p.Size)
	}
	if !p.AllocatedAmount.Equal(d("100")) {
		t.Errorf("AllocatedAmount overwritten by zero snapshot: %s", p.AllocatedAmount)
	}
}

func TestApplySyncSnapshotIgnoresClosed(t *testing.T) {
	p := Position{Status: PositionStatusClosed, CurrentPrice: d("50000")}
	if p.ApplySyncSnapshot(PositionSnapshot{MarkPrice: d("1")}, time.Now()) {
		t.Fatal("snapshot applied to closed position")
	}
	if !p.CurrentPrice.Equal(d("50000")) {
		t.Error("closed position mutated")
	}
}

func TestApplyClose(t *testing.T) {
	now := time.Now()
	closedAt := now.Add(-time.Minute)
	p := Position{
		Status:      PositionStatusOpen,
		Type:        PositionTypeLong,
		OpeningFees: d("0.25"),
	}
	rec := PositionHistoryRecord{
		RealizedPnL: d("12.5"),
		PnLRatio:    d("0.125"),
		Fee:         d("-0.6"),
		FundingFee:  d("-0.05"),
		CloseTime:   closedAt,
	}
	if err := p.ApplyClose(rec, d("51000"), now); err != nil {
		t.Fatalf("ApplyClose: %v", err)
	}
	if p.Status != PositionStatusClosed {
		t.Error("position not closed")
	}
	if !p.RealizedPnLPc.Equal(d("12.5")) {
		t.Errorf("RealizedPnLPc = %s, want 12.5 (ratio x 100)", p.RealizedPnLPc)
	}
	// combined |fee| 0.6 minus opening 0.25 leaves 0.35 for the close leg
	if !p.ClosingFees.Equal(d("0.35")) {
		t.Errorf("ClosingFees = %s, want 0.35", p.ClosingFees)
	}
	if p.CloseTime == nil || !p.CloseTime.Equal(closedAt) {
		t.Error("CloseTime not taken from record")
	}
	if !p.OpenCloseFees().Equal(d("0.6")) {
		t.Errorf("OpenCloseFees = %s, want 0.6", p.OpenCloseFees())
	}
	if !p.TotalFees().Equal(d("0.65")) {
		t.Errorf("TotalFees = %s, want 0.65", p.TotalFees())
	}
}

func TestApplyCloseClampsNegativeClosingFee(t *testing.T) {
	p := Position{Status: PositionStatusOpen, OpeningFees: d("0.5")}
	rec := PositionHistoryRecord{Fee: d("-0.3")}
	if err := p.ApplyClose(rec, d("100"), time.Now()); err != nil {
		t.Fatalf("ApplyClose: %v", err)
	}
	if !p.ClosingFees.IsZero() {
		t.Errorf("ClosingFees = %s, want 0 when combined fee is below opening fee", p.ClosingFees)
	}
}

func TestApplyCloseDefaultsCloseTime(t *testing.T) {
	now := time.Now()
	p := Position{Status: PositionStatusOpen}
	if err := p.ApplyClose(PositionHistoryRecord{}, d("100"), now); err != nil {
		t.Fatalf("ApplyClose: %v", err)
	}
	if p.CloseTime == nil || !p.CloseTime.Equal(now) {
		t.Error("CloseTime not defaulted to now when record has none")
	}
}

func TestApplyCloseRejectsClosedPosition(t *testing.T) {
	p := Position{Status: PositionStatusClosed}
	err := p.ApplyClose(PositionHistoryRecord{}, d("100"), time.Now())
	if !errors.Is(err, ErrPositionClosed) {
		t.Fatalf("err = %v, want ErrPositionClosed", err)
	}
}

func TestCloseSide(t *testing.T) {
	long := Position{Type: PositionTypeLong}
	if long.CloseSide() != OrderSideSell {
		t.Error("long close side should be sell")
	}
	short := Position{Type: PositionTypeShort}
	if short.CloseSide() != OrderSideBuy {
		t.Error("short close side should be buy")
	}
}
