package indicators

import (
	"math"

	"breakout-backend/internal/domain"
)

// TrueRange computes the true range of a candle against the previous close.
func TrueRange(c domain.Candle, prevClose float64) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prevClose)
	lc := math.Abs(c.Low - prevClose)

	tr := hl
	if hc > tr {
		tr = hc
	}
	if lc > tr {
		tr = lc
	}
	return tr
}

// CalculateATR computes the Wilder-smoothed Average True Range of the last
// candle. Returns false when there is not enough history (needs period+1
// candles).
func CalculateATR(candles []domain.Candle, period int) (float64, bool) {
	if len(candles) < period+1 {
		return 0, false
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, TrueRange(candles[i], candles[i-1].Close))
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr, true
}
