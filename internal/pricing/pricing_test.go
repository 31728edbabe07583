package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Payout tests ---

func TestPayout_FloorsFractionalWinnings(t *testing.T) {
	if got := Payout(3, d(1.5)); got != 4 {
		t.Errorf("Payout(3, 1.5) = %d, want 4 (floor of 4.5)", got)
	}
}

func TestPayout_ZeroStake(t *testing.T) {
	for _, odds := range []float64{0.5, 1.0, 2.5, 100} {
		if got := Payout(0, d(odds)); got != 0 {
			t.Errorf("Payout(0, %v) = %d, want 0", odds, got)
		}
	}
}

func TestPayout_WholeNumbers(t *testing.T) {
	tests := []struct {
		stake int64
		odds  float64
		want  int64
	}{
		{10, 2.0, 20},
		{100, 1.91, 191},
		{7, 1.33, 9},  // 9.31 → 9
		{1, 0.5, 0},   // 0.5 → 0
		{50, 3.25, 162}, // 162.5 → 162
	}
	for _, tt := range tests {
		if got := Payout(tt.stake, d(tt.odds)); got != tt.want {
			t.Errorf("Payout(%d, %v) = %d, want %d", tt.stake, tt.odds, got, tt.want)
		}
	}
}

// --- Cashout valuation tests ---

func TestCashoutValue_UnchangedOdds(t *testing.T) {
	// Ratio 1: value is stake minus the margin. floor(10×0.95)=9 pre-start,
	// floor(10×0.90)=9 after start.
	if got := CashoutValue(10, d(2.0), d(2.0), false); got != 9 {
		t.Errorf("pre-start cashout = %d, want 9", got)
	}
	if got := CashoutValue(10, d(2.0), d(2.0), true); got != 9 {
		t.Errorf("post-start cashout = %d, want 9", got)
	}
}

func TestCashoutValue_FavorableDrift(t *testing.T) {
	// Market moved toward the predictor: original 3.0 vs current 2.0.
	// floor(10 × 1.5 × 0.95) = floor(14.25) = 14.
	if got := CashoutValue(10, d(3.0), d(2.0), false); got != 14 {
		t.Errorf("favorable drift cashout = %d, want 14", got)
	}
}

func TestCashoutValue_UnfavorableDrift(t *testing.T) {
	// floor(10 × (2/3) × 0.95) = floor(6.33) = 6.
	if got := CashoutValue(10, d(2.0), d(3.0), false); got != 6 {
		t.Errorf("unfavorable drift cashout = %d, want 6", got)
	}
}

func TestCashoutValue_NeverNegative(t *testing.T) {
	if got := CashoutValue(1, d(1.1), d(100), false); got != 0 {
		t.Errorf("tiny ratio cashout = %d, want 0", got)
	}
	if got := CashoutValue(0, d(2.0), d(2.0), false); got != 0 {
		t.Errorf("zero stake cashout = %d, want 0", got)
	}
	if got := CashoutValue(10, d(2.0), decimal.Zero, false); got != 0 {
		t.Errorf("zero current odds cashout = %d, want 0", got)
	}
}

func TestCashoutValue_MarginDiffersByPhase(t *testing.T) {
	// With favorable drift the two margins produce different floors:
	// floor(100 × 1.5 × 0.95) = 142 vs floor(100 × 1.5 × 0.90) = 135.
	pre := CashoutValue(100, d(3.0), d(2.0), false)
	post := CashoutValue(100, d(3.0), d(2.0), true)
	if pre != 142 {
		t.Errorf("pre-start = %d, want 142", pre)
	}
	if post != 135 {
		t.Errorf("post-start = %d, want 135", post)
	}
	if post >= pre {
		t.Errorf("post-start margin should pay less: pre=%d post=%d", pre, post)
	}
}

// --- Freshness tests ---

func TestFresh_WithinWindow(t *testing.T) {
	now := time.Now().UTC()
	if !Fresh(now.Add(-4*time.Minute), now) {
		t.Error("price 4 minutes old should be fresh")
	}
	if Fresh(now.Add(-6*time.Minute), now) {
		t.Error("price 6 minutes old should be stale")
	}
}
