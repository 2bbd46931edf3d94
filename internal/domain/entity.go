package domain

import "time"

// Candle is a single OHLCV bar. Timestamps are UTC and non-decreasing
// within one instrument's series.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Direction of a trade or pending breakout.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// TrendState is the per-bar Supertrend state. Each state derives solely from
// the previous state and the current candle, so a series is reproducible
// bit-for-bit from the same input.
type TrendState struct {
	Direction     int     // +1 bullish, -1 bearish
	UpperBand     float64
	LowerBand     float64
	PrevDirection int
	Changed       bool

	// Breakout confirmation tracking: set when the trend flips and carried
	// forward until confirmed or expired.
	TriggerBarHigh   float64
	TriggerBarLow    float64
	WaitingBreakout  bool
	PendingDirection Direction
	BarsSinceTrigger int
}

// Signal is a confirmed breakout candidate produced by the detector and
// consumed once by the risk calculator.
type Signal struct {
	Instrument     string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	Timestamp      time.Time `json:"timestamp"`
	RSI            float64   `json:"rsi"`
	TrendDirection int       `json:"trendDirection"`
	HTFBullish     bool      `json:"htfBullish"`
	EntryPrice     float64   `json:"entryPrice"`
	ATR            float64   `json:"atr"`
	ATRValid       bool      `json:"atrValid"`
	SwingLow       float64   `json:"swingLow"`
	SwingHigh      float64   `json:"swingHigh"`
	TriggerBarLow  float64   `json:"triggerBarLow"`
	TriggerBarHigh float64   `json:"triggerBarHigh"`
	Spread         float64   `json:"spread"`
}
