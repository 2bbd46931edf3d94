package domain

import "time"

// StrategyKind selects which exit state machine manages a position.
type StrategyKind string

const (
	StrategyStandard   StrategyKind = "standard"
	StrategyAggressive StrategyKind = "aggressive"
	StrategyScaling    StrategyKind = "scaling"
	StrategyDPL        StrategyKind = "dpl"
)

// ParseStrategy maps a user-supplied name onto a StrategyKind.
func ParseStrategy(s string) (StrategyKind, bool) {
	switch StrategyKind(s) {
	case StrategyStandard, StrategyAggressive, StrategyScaling, StrategyDPL:
		return StrategyKind(s), true
	}
	return "", false
}

// Close reasons recorded on terminal fills.
const (
	ReasonStopLoss      = "stop_loss"
	ReasonTakeProfit2R  = "take_profit_2R"
	ReasonTakeProfit3R  = "take_profit_3R"
	ReasonTakeProfit10R = "take_profit_10R"
	ReasonTrailingStop  = "trailing_stop"
	ReasonTrendFlip     = "trend_flip"
	ReasonDPL1Partial   = "dpl1_partial"
	ReasonDPL2Partial   = "dpl2_partial"
	ReasonNewsClose     = "news_close"
	ReasonEndOfData     = "end_of_data"
	ReasonDesync        = "desync"
	ReasonManual        = "manual"
)

// StandardState tracks the standard machine: one 50% partial at 2R, then a
// trailing stop on the remainder.
type StandardState struct {
	PartialClosed bool
	TrailingStop  float64
}

// ScalingState tracks whether the position already doubled at 1R.
type ScalingState struct {
	ScaledIn bool
}

// DPLState tracks the two tiered partials of the dynamic-partial machine.
type DPLState struct {
	Stage1Done bool
	Stage2Done bool
}

// Position is an open or closed trade. Only the exit machine for the
// position's StrategyKind touches the matching state struct; the others stay
// zero for the life of the trade.
type Position struct {
	ID            string       `json:"id"`
	BrokerTradeID string       `json:"brokerTradeId,omitempty"`
	Instrument    string       `json:"instrument"`
	Direction     Direction    `json:"direction"`
	Strategy      StrategyKind `json:"strategy"`

	EntryPrice float64   `json:"entryPrice"`
	EntryTime  time.Time `json:"entryTime"`
	StopLoss   float64   `json:"stopLoss"`
	TakeProfit float64   `json:"takeProfit"`

	// RiskDistance is the entry-to-initial-stop distance in price units. All
	// R-multiple targets derive from it and it never changes after entry.
	RiskDistance float64 `json:"riskDistance"`

	Units          float64 `json:"units"`
	RemainingUnits float64 `json:"remainingUnits"`

	TriggerBarHigh float64 `json:"triggerBarHigh"`
	TriggerBarLow  float64 `json:"triggerBarLow"`

	Standard StandardState `json:"standard"`
	Scaling  ScalingState  `json:"scaling"`
	DPL      DPLState      `json:"dpl"`

	// Realized bookkeeping, accumulated across partial fills.
	RealizedPL   float64   `json:"realizedPl"`
	RealizedPips float64   `json:"realizedPips"`
	ExitPrice    float64   `json:"exitPrice,omitempty"`
	ExitTime     time.Time `json:"exitTime,omitempty"`
	CloseReason  string    `json:"closeReason,omitempty"`
}

// Open reports whether the position still has units on.
func (p *Position) Open() bool {
	return p.RemainingUnits > 0 && p.CloseReason == ""
}

// RTarget returns the price r risk-multiples beyond entry in the trade's
// favor.
func (p *Position) RTarget(r float64) float64 {
	if p.Direction == Long {
		return p.EntryPrice + p.RiskDistance*r
	}
	return p.EntryPrice - p.RiskDistance*r
}

// TradeRepository is the persistence port for positions.
type TradeRepository interface {
	Create(p *Position) error
	Update(p *Position) error
	Close(p *Position) error
	Open() []*Position
	OpenByInstrument(instrument string) []*Position
	Closed() []*Position
}
