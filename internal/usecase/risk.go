package usecase

import (
	"math"

	"breakout-backend/internal/domain"
)

// StopLevels is the output of the risk calculator for one candidate entry.
type StopLevels struct {
	StopLoss     float64
	TakeProfit   float64
	RiskDistance float64
	Units        float64
}

// RiskCalculator derives stop, target and size from a confirmed signal.
type RiskCalculator struct {
	cfg *domain.Config
}

func NewRiskCalculator(cfg *domain.Config) *RiskCalculator {
	return &RiskCalculator{cfg: cfg}
}

// minStopPips is the floor under which a stop snaps out to 5 pips.
const (
	minStopPips      = 3.0
	fallbackStopPips = 5.0
	swingBufferPips  = 2.0
)

// Levels computes the protective stop and target for an entry at close.
// The stop anchors on the swing level buffered by 2 pips, widened by the ATR
// stop when enabled; a stop closer than 3 pips snaps out to 5 pips.
func (r *RiskCalculator) Levels(sig *domain.Signal, close, pipSize float64) StopLevels {
	cfg := r.cfg
	var sl float64

	if sig.Direction == domain.Long {
		swingSL := sig.SwingLow - swingBufferPips*pipSize
		atrSL := swingSL
		if sig.ATRValid {
			atrSL = close - sig.ATR*cfg.Risk.ATRMultiplier
		}
		if cfg.Risk.UseATRStop {
			sl = math.Min(swingSL, atrSL)
		} else {
			sl = close - cfg.Risk.FixedStopPips*pipSize
		}
		if close-sl < minStopPips*pipSize {
			sl = close - fallbackStopPips*pipSize
		}
		rd := close - sl
		return StopLevels{
			StopLoss:     sl,
			TakeProfit:   close + rd*cfg.Risk.RiskRewardRatio,
			RiskDistance: rd,
		}
	}

	swingSL := sig.SwingHigh + swingBufferPips*pipSize
	atrSL := swingSL
	if sig.ATRValid {
		atrSL = close + sig.ATR*cfg.Risk.ATRMultiplier
	}
	if cfg.Risk.UseATRStop {
		sl = math.Max(swingSL, atrSL)
	} else {
		sl = close + cfg.Risk.FixedStopPips*pipSize
	}
	if sl-close < minStopPips*pipSize {
		sl = close + fallbackStopPips*pipSize
	}
	rd := sl - close
	return StopLevels{
		StopLoss:     sl,
		TakeProfit:   close - rd*cfg.Risk.RiskRewardRatio,
		RiskDistance: rd,
	}
}

// ApplyAggressiveOverride tightens the stop to the trigger bar's extreme
// (buffered by 2 pips) when that is closer to entry than the computed stop,
// recomputing target and size from the new distance. Levels with a zero
// distance are left untouched.
func (r *RiskCalculator) ApplyAggressiveOverride(sig *domain.Signal, lv StopLevels, close, pipSize, balance float64) StopLevels {
	cfg := r.cfg
	if sig.Direction == domain.Long {
		aggSL := sig.TriggerBarLow - swingBufferPips*pipSize
		if aggSL > lv.StopLoss {
			lv.StopLoss = aggSL
			lv.RiskDistance = close - aggSL
			lv.TakeProfit = close + lv.RiskDistance*cfg.Risk.RiskRewardRatio
			lv.Units = r.UnitsFor(balance, lv.RiskDistance)
		}
		return lv
	}
	aggSL := sig.TriggerBarHigh + swingBufferPips*pipSize
	if aggSL < lv.StopLoss {
		lv.StopLoss = aggSL
		lv.RiskDistance = aggSL - close
		lv.TakeProfit = close - lv.RiskDistance*cfg.Risk.RiskRewardRatio
		lv.Units = r.UnitsFor(balance, lv.RiskDistance)
	}
	return lv
}

// UnitsFor sizes a position so the configured percentage of balance is lost
// if the stop is hit, rounded to whole units.
func (r *RiskCalculator) UnitsFor(balance, riskDistance float64) float64 {
	if riskDistance <= 0 {
		return 0
	}
	riskAmount := balance * (r.cfg.Risk.RiskPerTradePercent / 100)
	return math.Round(riskAmount / riskDistance)
}
