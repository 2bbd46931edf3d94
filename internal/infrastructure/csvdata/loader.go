package csvdata

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"breakout-backend/internal/domain"
)

// Timestamp layouts tried in order, covering TradingView, OANDA and
// MetaTrader exports.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"01/02/2006 15:04",
	"02/01/2006 15:04",
}

// LoadCandles reads OHLCV rows from a CSV file. Headers are matched
// case-insensitively (time/timestamp/date/datetime for the time column),
// rows with unparseable fields are skipped, and the result is sorted by
// timestamp.
func LoadCandles(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	timeIdx, ok := findColumn(cols, "time", "timestamp", "date", "datetime")
	if !ok {
		return nil, fmt.Errorf("csv missing time column, found %v", header)
	}
	openIdx, okO := cols["open"]
	highIdx, okH := cols["high"]
	lowIdx, okL := cols["low"]
	closeIdx, okC := cols["close"]
	if !okO || !okH || !okL || !okC {
		return nil, fmt.Errorf("csv missing open/high/low/close columns, found %v", header)
	}
	volIdx, hasVol := cols["volume"]

	var candles []domain.Candle
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		ts, ok := parseTimestamp(strings.TrimSpace(row[timeIdx]))
		if !ok {
			continue
		}
		o, err1 := strconv.ParseFloat(strings.TrimSpace(row[openIdx]), 64)
		h, err2 := strconv.ParseFloat(strings.TrimSpace(row[highIdx]), 64)
		l, err3 := strconv.ParseFloat(strings.TrimSpace(row[lowIdx]), 64)
		c, err4 := strconv.ParseFloat(strings.TrimSpace(row[closeIdx]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		vol := 0.0
		if hasVol && volIdx < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[volIdx]), 64); err == nil {
				vol = v
			}
		}
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      o, High: h, Low: l, Close: c,
			Volume: vol,
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	log.Printf("Loaded %d candles from %s", len(candles), path)
	return candles, nil
}

func findColumn(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, true
		}
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), true
	}
	return time.Time{}, false
}

// AggregateHTF groups candles by hour boundary into higher-timeframe bars
// stamped with the first candle's timestamp.
func AggregateHTF(candles []domain.Candle) []domain.Candle {
	if len(candles) == 0 {
		return nil
	}

	var htf []domain.Candle
	var bucket []domain.Candle

	flush := func() {
		if len(bucket) == 0 {
			return
		}
		agg := domain.Candle{
			Timestamp: bucket[0].Timestamp,
			Open:      bucket[0].Open,
			High:      bucket[0].High,
			Low:       bucket[0].Low,
			Close:     bucket[len(bucket)-1].Close,
		}
		for _, b := range bucket {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Volume += b.Volume
		}
		htf = append(htf, agg)
		bucket = bucket[:0]
	}

	for _, c := range candles {
		if len(bucket) > 0 && c.Timestamp.Hour() != bucket[0].Timestamp.Hour() {
			flush()
		}
		bucket = append(bucket, c)
	}
	flush()

	return htf
}
