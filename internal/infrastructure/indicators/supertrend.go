package indicators

import "breakout-backend/internal/domain"

// breakoutWindowBars is how many bars a trigger stays valid after a flip.
const breakoutWindowBars = 5

// SupertrendSeries computes one TrendState per candle following the Pine
// Script Supertrend recurrence with sticky bands, plus the breakout trigger
// tracking layered on top of it.
//
// Bars before atrPeriod get a warm-up state (bullish direction, zero bands).
// A zero band is "no prior band": the raw band is adopted without the sticky
// comparison, and the direction cannot flip against it.
func SupertrendSeries(candles []domain.Candle, atrPeriod int, multiplier float64) []domain.TrendState {
	states := make([]domain.TrendState, 0, len(candles))

	atr := 0.0
	for i, c := range candles {
		if i < atrPeriod {
			states = append(states, domain.TrendState{Direction: 1})
			continue
		}

		if i == atrPeriod {
			// Seed ATR with the simple mean of the first true ranges.
			sum := 0.0
			for j := 1; j <= atrPeriod; j++ {
				sum += TrueRange(candles[j], candles[j-1].Close)
			}
			atr = sum / float64(atrPeriod)
		} else {
			atr = (atr*float64(atrPeriod-1) + TrueRange(c, candles[i-1].Close)) / float64(atrPeriod)
		}

		hl2 := (c.High + c.Low) / 2
		rawUpper := hl2 + multiplier*atr
		rawLower := hl2 - multiplier*atr

		prev := states[i-1]

		finalUpper := rawUpper
		if prev.UpperBand != 0 {
			if rawUpper < prev.UpperBand || candles[i-1].Close > prev.UpperBand {
				finalUpper = rawUpper
			} else {
				finalUpper = prev.UpperBand
			}
		}

		finalLower := rawLower
		if prev.LowerBand != 0 {
			if rawLower > prev.LowerBand || candles[i-1].Close < prev.LowerBand {
				finalLower = rawLower
			} else {
				finalLower = prev.LowerBand
			}
		}

		prevDir := prev.Direction
		if prevDir == 0 {
			prevDir = 1
		}
		direction := prevDir
		if prevDir == -1 && c.Close > prev.UpperBand && prev.UpperBand > 0 {
			direction = 1
		} else if prevDir == 1 && c.Close < prev.LowerBand && prev.LowerBand > 0 {
			direction = -1
		}

		st := domain.TrendState{
			Direction:     direction,
			UpperBand:     finalUpper,
			LowerBand:     finalLower,
			PrevDirection: prevDir,
			Changed:       direction != prevDir,
		}

		// On a flip, record the trigger bar and open the confirmation
		// window. Otherwise carry a pending window forward, expiring it
		// after breakoutWindowBars bars.
		if st.Changed {
			st.TriggerBarHigh = c.High
			st.TriggerBarLow = c.Low
			st.WaitingBreakout = true
			st.BarsSinceTrigger = 0
			if direction == 1 {
				st.PendingDirection = domain.Long
			} else {
				st.PendingDirection = domain.Short
			}
		} else if prev.WaitingBreakout {
			st.TriggerBarHigh = prev.TriggerBarHigh
			st.TriggerBarLow = prev.TriggerBarLow
			st.PendingDirection = prev.PendingDirection
			st.BarsSinceTrigger = prev.BarsSinceTrigger + 1
			st.WaitingBreakout = st.BarsSinceTrigger <= breakoutWindowBars
		}

		states = append(states, st)
	}

	return states
}

// BreakoutSignal reports a confirmed breakout on the current candle: the bar
// after the trigger (or later, within the window) must trade and close
// beyond the trigger bar's extreme.
func BreakoutSignal(st domain.TrendState, c domain.Candle) (domain.Direction, bool) {
	if !st.WaitingBreakout || st.BarsSinceTrigger < 1 {
		return "", false
	}
	switch st.PendingDirection {
	case domain.Long:
		if c.High > st.TriggerBarHigh && c.Close > st.TriggerBarHigh {
			return domain.Long, true
		}
	case domain.Short:
		if c.Low < st.TriggerBarLow && c.Close < st.TriggerBarLow {
			return domain.Short, true
		}
	}
	return "", false
}
