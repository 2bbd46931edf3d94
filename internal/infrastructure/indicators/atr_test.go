package indicators

import (
	"math"
	"testing"
	"time"

	"breakout-backend/internal/domain"
)

func flatCandles(n int, high, low, close float64) []domain.Candle {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      close, High: high, Low: low, Close: close,
		}
	}
	return out
}

func TestCalculateATRConstantRange(t *testing.T) {
	candles := flatCandles(30, 101, 99, 100)
	atr, ok := CalculateATR(candles, 14)
	if !ok {
		t.Fatalf("expected ATR to be available")
	}
	if math.Abs(atr-2.0) > 1e-9 {
		t.Errorf("atr = %v, want 2.0", atr)
	}
}

func TestCalculateATRInsufficientData(t *testing.T) {
	candles := flatCandles(14, 101, 99, 100)
	if _, ok := CalculateATR(candles, 14); ok {
		t.Errorf("expected ATR to be unavailable with period candles")
	}
}

func TestTrueRangeGapDominates(t *testing.T) {
	c := domain.Candle{High: 101, Low: 100, Close: 100.5}
	// Previous close far below: the gap term wins.
	if tr := TrueRange(c, 95); tr != 6 {
		t.Errorf("tr = %v, want 6", tr)
	}
	// Previous close far above: low-to-prev-close wins.
	if tr := TrueRange(c, 105); tr != 5 {
		t.Errorf("tr = %v, want 5", tr)
	}
}
