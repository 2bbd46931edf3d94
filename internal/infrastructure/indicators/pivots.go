package indicators

import "breakout-backend/internal/domain"

// SwingLow returns the last swing low in the 20 bars before endIdx, used as
// the long stop anchor. A pivot bar (low not above both neighbors) always
// wins over the running minimum; window-edge bars only lower the minimum.
func SwingLow(candles []domain.Candle, endIdx int) float64 {
	start := endIdx - 20
	if start < 0 {
		start = 0
	}
	lowest := candles[start].Low
	for j := start; j < endIdx; j++ {
		if j > 0 && j < len(candles)-1 {
			if candles[j].Low <= candles[j-1].Low && candles[j].Low <= candles[j+1].Low {
				lowest = candles[j].Low
			}
		} else if candles[j].Low < lowest {
			lowest = candles[j].Low
		}
	}
	return lowest
}

// SwingHigh is the mirror of SwingLow for the short stop anchor.
func SwingHigh(candles []domain.Candle, endIdx int) float64 {
	start := endIdx - 20
	if start < 0 {
		start = 0
	}
	highest := candles[start].High
	for j := start; j < endIdx; j++ {
		if j > 0 && j < len(candles)-1 {
			if candles[j].High >= candles[j-1].High && candles[j].High >= candles[j+1].High {
				highest = candles[j].High
			}
		} else if candles[j].High > highest {
			highest = candles[j].High
		}
	}
	return highest
}
