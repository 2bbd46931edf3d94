package usecase

import "breakout-backend/internal/domain"

// Fill is a close of some units at a price. Terminal fills retire the
// position; partial fills leave RemainingUnits on.
type Fill struct {
	Units    float64
	Price    float64
	Reason   string
	Terminal bool
}

// ExitEvaluator runs the per-strategy exit state machine against one candle.
// The protective stop always has priority over strategy transitions. At most
// one fill is produced per candle; the machine may also mutate the position
// (arm a trailing stop, move the stop, scale in) without filling.
type ExitEvaluator struct {
	trailingPips float64
}

func NewExitEvaluator(cfg *domain.Config) *ExitEvaluator {
	return &ExitEvaluator{trailingPips: cfg.Risk.TrailingStopPips}
}

// Evaluate returns the fill triggered by this candle, if any.
func (e *ExitEvaluator) Evaluate(p *domain.Position, c domain.Candle, st domain.TrendState, pipSize float64) (Fill, bool) {
	switch p.Strategy {
	case domain.StrategyAggressive:
		return e.aggressive(p, c)
	case domain.StrategyScaling:
		return e.scaling(p, c)
	case domain.StrategyDPL:
		return e.dpl(p, c, st)
	default:
		return e.standard(p, c, st, pipSize)
	}
}

func (e *ExitEvaluator) stopHit(p *domain.Position, c domain.Candle) bool {
	if p.Direction == domain.Long {
		return c.Low <= p.StopLoss
	}
	return c.High >= p.StopLoss
}

func adverseFlip(p *domain.Position, st domain.TrendState) bool {
	if !st.Changed {
		return false
	}
	if p.Direction == domain.Long {
		return st.Direction == -1
	}
	return st.Direction == 1
}

func reached(p *domain.Position, c domain.Candle, target float64) bool {
	if p.Direction == domain.Long {
		return c.High >= target
	}
	return c.Low <= target
}

// standard: 50% off at 2R, then a trailing stop on the remainder, with an
// adverse trend flip closing whatever is left.
func (e *ExitEvaluator) standard(p *domain.Position, c domain.Candle, st domain.TrendState, pipSize float64) (Fill, bool) {
	if e.stopHit(p, c) {
		return Fill{Units: p.RemainingUnits, Price: p.StopLoss, Reason: domain.ReasonStopLoss, Terminal: true}, true
	}
	if adverseFlip(p, st) && p.Standard.PartialClosed {
		return Fill{Units: p.RemainingUnits, Price: c.Close, Reason: domain.ReasonTrendFlip, Terminal: true}, true
	}

	trailDist := e.trailingPips * pipSize
	if p.Standard.PartialClosed && p.Standard.TrailingStop > 0 {
		if p.Direction == domain.Long {
			if nt := c.High - trailDist; nt > p.Standard.TrailingStop {
				p.Standard.TrailingStop = nt
			}
			if c.Low <= p.Standard.TrailingStop {
				return Fill{Units: p.RemainingUnits, Price: p.Standard.TrailingStop, Reason: domain.ReasonTrailingStop, Terminal: true}, true
			}
		} else {
			if nt := c.Low + trailDist; nt < p.Standard.TrailingStop {
				p.Standard.TrailingStop = nt
			}
			if c.High >= p.Standard.TrailingStop {
				return Fill{Units: p.RemainingUnits, Price: p.Standard.TrailingStop, Reason: domain.ReasonTrailingStop, Terminal: true}, true
			}
		}
	}

	if !p.Standard.PartialClosed {
		target := p.RTarget(2)
		if reached(p, c, target) {
			half := p.Units * 0.5
			p.Standard.PartialClosed = true
			if p.Direction == domain.Long {
				p.Standard.TrailingStop = c.High - trailDist
			} else {
				p.Standard.TrailingStop = c.Low + trailDist
			}
			return Fill{Units: half, Price: target, Reason: domain.ReasonTakeProfit2R}, true
		}
	}
	return Fill{}, false
}

// aggressive: tight trigger-bar stop, single full exit at 10R.
func (e *ExitEvaluator) aggressive(p *domain.Position, c domain.Candle) (Fill, bool) {
	if e.stopHit(p, c) {
		return Fill{Units: p.RemainingUnits, Price: p.StopLoss, Reason: domain.ReasonStopLoss, Terminal: true}, true
	}
	target := p.RTarget(10)
	if reached(p, c, target) {
		return Fill{Units: p.RemainingUnits, Price: target, Reason: domain.ReasonTakeProfit10R, Terminal: true}, true
	}
	return Fill{}, false
}

// scaling: double up at 1R and tighten the stop to half the original risk
// beyond entry, full exit at 3R. Scale-in and 3R exit can land on the same
// candle.
func (e *ExitEvaluator) scaling(p *domain.Position, c domain.Candle) (Fill, bool) {
	if e.stopHit(p, c) {
		return Fill{Units: p.RemainingUnits, Price: p.StopLoss, Reason: domain.ReasonStopLoss, Terminal: true}, true
	}
	if !p.Scaling.ScaledIn && reached(p, c, p.RTarget(1)) {
		p.Scaling.ScaledIn = true
		p.Units *= 2
		p.RemainingUnits = p.Units
		if p.Direction == domain.Long {
			p.StopLoss = p.EntryPrice - p.RiskDistance/2
		} else {
			p.StopLoss = p.EntryPrice + p.RiskDistance/2
		}
	}
	target := p.RTarget(3)
	if reached(p, c, target) {
		return Fill{Units: p.RemainingUnits, Price: target, Reason: domain.ReasonTakeProfit3R, Terminal: true}, true
	}
	return Fill{}, false
}

// dpl: one third off at 1R with the stop moved to breakeven, another third
// at 2R, and the last third on an adverse trend flip.
func (e *ExitEvaluator) dpl(p *domain.Position, c domain.Candle, st domain.TrendState) (Fill, bool) {
	if e.stopHit(p, c) {
		return Fill{Units: p.RemainingUnits, Price: p.StopLoss, Reason: domain.ReasonStopLoss, Terminal: true}, true
	}
	if adverseFlip(p, st) && p.DPL.Stage1Done {
		return Fill{Units: p.RemainingUnits, Price: c.Close, Reason: domain.ReasonTrendFlip, Terminal: true}, true
	}

	third := p.Units / 3
	if !p.DPL.Stage1Done {
		target := p.RTarget(1)
		if reached(p, c, target) {
			p.DPL.Stage1Done = true
			p.StopLoss = p.EntryPrice
			return Fill{Units: third, Price: target, Reason: domain.ReasonDPL1Partial}, true
		}
	} else if !p.DPL.Stage2Done {
		target := p.RTarget(2)
		if reached(p, c, target) {
			p.DPL.Stage2Done = true
			return Fill{Units: third, Price: target, Reason: domain.ReasonDPL2Partial}, true
		}
	}
	return Fill{}, false
}
