package csvdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"breakout-backend/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCandlesMixedFormatsAndSort(t *testing.T) {
	// Out of order on purpose, with one unparseable row and mixed layouts.
	csv := "Time,Open,High,Low,Close,Volume\n" +
		"2024-01-02 01:00,1.1000,1.1010,1.0990,1.1005,120\n" +
		"2024-01-02T00:45:00,1.0995,1.1002,1.0990,1.1000,100\n" +
		"not-a-date,1,2,3,4,5\n" +
		"1704155100,1.0990,1.0999,1.0985,1.0995,90\n" +
		"2024.01.02 01:15,1.1005,1.1015,1.1000,1.1010,\n"

	candles, err := LoadCandles(writeCSV(t, csv))
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("loaded %d candles, want 4 (bad row skipped)", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp.Before(candles[i-1].Timestamp) {
			t.Fatalf("candles not sorted at %d", i)
		}
	}
	// 1704155100 = 2024-01-02 00:25:00 UTC, sorts first.
	if got := candles[0].Timestamp; !got.Equal(time.Date(2024, 1, 2, 0, 25, 0, 0, time.UTC)) {
		t.Errorf("first candle at %v", got)
	}
	// Missing volume parses as zero.
	if candles[3].Volume != 0 {
		t.Errorf("empty volume = %v, want 0", candles[3].Volume)
	}
}

func TestLoadCandlesMissingColumns(t *testing.T) {
	if _, err := LoadCandles(writeCSV(t, "time,open,high\n1,2,3\n")); err == nil {
		t.Fatalf("expected error for missing columns")
	}
}

func TestAggregateHTF(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	var m15 []domain.Candle
	prices := []struct{ o, h, l, c float64 }{
		{1.0, 1.2, 0.9, 1.1},
		{1.1, 1.3, 1.0, 1.2},
		{1.2, 1.4, 1.1, 1.3},
		{1.3, 1.5, 1.2, 1.4},
		{1.4, 1.6, 1.3, 1.5}, // next hour
	}
	for i, p := range prices {
		m15 = append(m15, domain.Candle{
			Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:      p.o, High: p.h, Low: p.l, Close: p.c, Volume: 10,
		})
	}

	htf := AggregateHTF(m15)
	if len(htf) != 2 {
		t.Fatalf("htf bars = %d, want 2", len(htf))
	}
	h := htf[0]
	if h.Open != 1.0 || h.High != 1.5 || h.Low != 0.9 || h.Close != 1.4 || h.Volume != 40 {
		t.Errorf("first htf bar = %+v", h)
	}
	if !h.Timestamp.Equal(t0) {
		t.Errorf("htf bar stamped %v, want bucket start", h.Timestamp)
	}
}
