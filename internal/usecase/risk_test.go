package usecase

import (
	"math"
	"testing"

	"breakout-backend/internal/domain"
)

func TestLevelsLongSwingVsATR(t *testing.T) {
	cfg := domain.DefaultConfig()
	rc := NewRiskCalculator(cfg)
	sig := &domain.Signal{
		Direction: domain.Long,
		SwingLow:  1.0980,
		ATR:       0.0010,
		ATRValid:  true,
	}

	lv := rc.Levels(sig, 1.1000, testPip)

	// Swing stop 1.0978 vs ATR stop 1.1000 - 0.0015 = 1.0985: the wider
	// (lower) swing stop wins.
	if math.Abs(lv.StopLoss-1.0978) > 1e-9 {
		t.Errorf("stop = %v, want swing stop 1.0978", lv.StopLoss)
	}
	if math.Abs(lv.RiskDistance-0.0022) > 1e-9 {
		t.Errorf("risk distance = %v, want 0.0022", lv.RiskDistance)
	}
	// TP = close + rd * 1.9.
	if math.Abs(lv.TakeProfit-(1.1000+0.0022*1.9)) > 1e-9 {
		t.Errorf("tp = %v", lv.TakeProfit)
	}
}

func TestLevelsShortATRWider(t *testing.T) {
	cfg := domain.DefaultConfig()
	rc := NewRiskCalculator(cfg)
	sig := &domain.Signal{
		Direction: domain.Short,
		SwingHigh: 1.1005,
		ATR:       0.0010,
		ATRValid:  true,
	}

	lv := rc.Levels(sig, 1.1000, testPip)

	// Swing stop 1.1007 vs ATR stop 1.1015: the higher ATR stop wins.
	if math.Abs(lv.StopLoss-1.1015) > 1e-9 {
		t.Errorf("stop = %v, want ATR stop 1.1015", lv.StopLoss)
	}
	if lv.TakeProfit >= 1.1000 {
		t.Errorf("short tp above entry: %v", lv.TakeProfit)
	}
}

func TestLevelsMinimumStopSnapsToFive(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Risk.UseATRStop = false
	cfg.Risk.FixedStopPips = 1.0 // under the 3 pip floor
	rc := NewRiskCalculator(cfg)

	lv := rc.Levels(&domain.Signal{Direction: domain.Long}, 1.1000, testPip)
	if math.Abs(lv.RiskDistance-5*testPip) > 1e-9 {
		t.Errorf("risk distance = %v, want snapped 5 pips", lv.RiskDistance)
	}
}

func TestLevelsNoATRFallsBackToSwing(t *testing.T) {
	rc := NewRiskCalculator(domain.DefaultConfig())
	sig := &domain.Signal{Direction: domain.Long, SwingLow: 1.0970, ATRValid: false}

	lv := rc.Levels(sig, 1.1000, testPip)
	if math.Abs(lv.StopLoss-1.0968) > 1e-9 {
		t.Errorf("stop = %v, want buffered swing 1.0968", lv.StopLoss)
	}
}

func TestUnitsFor(t *testing.T) {
	rc := NewRiskCalculator(domain.DefaultConfig()) // 1% risk

	// 100 of risk over a 0.0020 stop = 50000 units.
	if got := rc.UnitsFor(10000, 0.0020); got != 50000 {
		t.Errorf("units = %v, want 50000", got)
	}
	if got := rc.UnitsFor(10000, 0); got != 0 {
		t.Errorf("zero distance units = %v, want 0", got)
	}
}

func TestAggressiveOverrideTightensOnly(t *testing.T) {
	rc := NewRiskCalculator(domain.DefaultConfig())
	sig := &domain.Signal{Direction: domain.Long, TriggerBarLow: 1.0995}
	lv := StopLevels{StopLoss: 1.0980, RiskDistance: 0.0020, TakeProfit: 1.1038}

	out := rc.ApplyAggressiveOverride(sig, lv, 1.1000, testPip, 10000)
	// Trigger-bar stop 1.0993 is tighter than 1.0980: adopted, with target
	// and size recomputed.
	if math.Abs(out.StopLoss-1.0993) > 1e-9 {
		t.Fatalf("stop = %v, want 1.0993", out.StopLoss)
	}
	if math.Abs(out.RiskDistance-0.0007) > 1e-9 {
		t.Errorf("risk distance = %v", out.RiskDistance)
	}
	if out.Units != rc.UnitsFor(10000, out.RiskDistance) {
		t.Errorf("units not recomputed")
	}

	// A trigger stop looser than the current stop leaves levels alone.
	sig.TriggerBarLow = 1.0960
	out = rc.ApplyAggressiveOverride(sig, lv, 1.1000, testPip, 10000)
	if out != lv {
		t.Errorf("override widened the stop: %+v", out)
	}
}
