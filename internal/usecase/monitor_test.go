package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/repository"
)

type closeCall struct {
	id    string
	units float64
}

type fakeExec struct {
	fillPrice float64
	openIDs   []string

	closes   []closeCall
	placed   []int
	modifies []domain.ModifyOptions
}

func (f *fakeExec) PlaceMarketOrder(ctx context.Context, instrument string, units int, sl, tp float64) (*domain.OrderResult, error) {
	f.placed = append(f.placed, units)
	return &domain.OrderResult{TradeID: "scale", FillPrice: f.fillPrice}, nil
}

func (f *fakeExec) ModifyTrade(ctx context.Context, tradeID string, opts domain.ModifyOptions) error {
	f.modifies = append(f.modifies, opts)
	return nil
}

func (f *fakeExec) CloseTrade(ctx context.Context, tradeID string, units float64) (*domain.CloseResult, error) {
	f.closes = append(f.closes, closeCall{id: tradeID, units: units})
	return &domain.CloseResult{FillPrice: f.fillPrice}, nil
}

func (f *fakeExec) OpenTradeIDs(ctx context.Context) ([]string, error) {
	return f.openIDs, nil
}

func (f *fakeExec) Balance(ctx context.Context) (float64, error) { return 10000, nil }

type fakePrices struct {
	bid, ask float64
}

func (f *fakePrices) Quote(ctx context.Context, instrument string) (float64, float64, error) {
	return f.bid, f.ask, nil
}

type alwaysClose struct{}

func (alwaysClose) CanOpen(string, time.Time) (bool, string)     { return false, "event" }
func (alwaysClose) ShouldClose(string, time.Time) (bool, string) { return true, "event" }

func managedPosition(strategy domain.StrategyKind) *domain.Position {
	return &domain.Position{
		ID:             "1",
		BrokerTradeID:  "42",
		Instrument:     "EUR_USD",
		Direction:      domain.Long,
		Strategy:       strategy,
		EntryPrice:     1.1000,
		EntryTime:      time.Now().UTC().Add(-time.Hour),
		StopLoss:       1.0990,
		TakeProfit:     1.1019,
		RiskDistance:   0.0010,
		Units:          10000,
		RemainingUnits: 10000,
	}
}

func newTestMonitor(exec *fakeExec, prices *fakePrices, news domain.NewsAdvisor) (*Monitor, *repository.InMemoryTradeRepository, *LossStreak) {
	cfg := domain.DefaultConfig()
	repo := repository.NewInMemoryTradeRepository()
	streak := NewLossStreak(cfg)
	return NewMonitor(cfg, exec, prices, news, repo, streak, nil), repo, streak
}

func TestMonitorTrendFlipClosesAdverse(t *testing.T) {
	exec := &fakeExec{fillPrice: 1.0950}
	m, repo, streak := newTestMonitor(exec, &fakePrices{}, nil)

	if err := m.Register(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}

	// A bullish flip is not adverse for a long: nothing happens.
	m.handleTrendFlip(TrendFlip{Instrument: "EUR_USD", Bullish: true})
	if len(repo.Open()) != 1 || len(exec.closes) != 0 {
		t.Fatal("bullish flip closed a long")
	}

	m.handleTrendFlip(TrendFlip{Instrument: "EUR_USD", Bullish: false})
	if len(exec.closes) != 1 || exec.closes[0].units != 0 {
		t.Fatalf("closes = %+v, want one full close", exec.closes)
	}
	closed := repo.Closed()
	if len(closed) != 1 || closed[0].CloseReason != domain.ReasonTrendFlip {
		t.Fatalf("closed = %+v", closed)
	}
	if closed[0].RealizedPL >= 0 {
		t.Errorf("fill at 1.0950 on a 1.1000 long should lose, got %v", closed[0].RealizedPL)
	}
	if losses, _ := streak.Stats(); losses != 1 {
		t.Errorf("loss streak = %d, want 1", losses)
	}
}

func TestMonitorStandardPartialAtTwoR(t *testing.T) {
	exec := &fakeExec{fillPrice: 1.1020}
	m, repo, _ := newTestMonitor(exec, &fakePrices{}, nil)

	if err := m.Register(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}
	m.quotes["EUR_USD"] = Tick{
		Instrument: "EUR_USD", Bid: 1.1020, Ask: 1.1022, Time: time.Now(),
	}

	m.cycle()

	if len(exec.closes) != 1 || exec.closes[0].units != 5000 {
		t.Fatalf("closes = %+v, want half off", exec.closes)
	}
	if len(exec.modifies) != 1 || exec.modifies[0].TrailingStopDistance == 0 {
		t.Fatalf("modifies = %+v, want trailing stop armed", exec.modifies)
	}
	open := repo.Open()
	if len(open) != 1 {
		t.Fatal("position should stay open")
	}
	p := open[0]
	if !p.Standard.PartialClosed || p.RemainingUnits != 5000 || p.Standard.TrailingStop == 0 {
		t.Errorf("state after partial = %+v remaining=%v", p.Standard, p.RemainingUnits)
	}

	// A second cycle at the same price must not partial again.
	m.cycle()
	if len(exec.closes) != 1 {
		t.Errorf("partial repeated: %+v", exec.closes)
	}
}

func TestMonitorScalingDoublesAtOneR(t *testing.T) {
	exec := &fakeExec{fillPrice: 1.1010}
	m, repo, _ := newTestMonitor(exec, &fakePrices{}, nil)

	if err := m.Register(managedPosition(domain.StrategyScaling)); err != nil {
		t.Fatal(err)
	}
	m.quotes["EUR_USD"] = Tick{
		Instrument: "EUR_USD", Bid: 1.1010, Ask: 1.1010, Time: time.Now(),
	}

	m.cycle()

	if len(exec.placed) != 1 || exec.placed[0] != 10000 {
		t.Fatalf("placed = %+v, want one 10000-unit add", exec.placed)
	}
	p := repo.Open()[0]
	if !p.Scaling.ScaledIn || p.Units != 20000 || math.Abs(p.StopLoss-1.0995) > 1e-9 {
		t.Errorf("scaled state = %+v units=%v sl=%v", p.Scaling, p.Units, p.StopLoss)
	}
}

func TestMonitorTrailingRatchetPersists(t *testing.T) {
	exec := &fakeExec{fillPrice: 1.1020}
	m, repo, _ := newTestMonitor(exec, &fakePrices{}, nil)

	if err := m.Register(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}
	m.quotes["EUR_USD"] = Tick{
		Instrument: "EUR_USD", Bid: 1.1020, Ask: 1.1022, Time: time.Now(),
	}
	m.cycle()

	armed := repo.Open()[0].Standard.TrailingStop
	if math.Abs(armed-1.1019) > 1e-9 {
		t.Fatalf("armed trailing stop = %v, want mid - 2 pips", armed)
	}

	// A favorable move must ratchet the stored stop, not just a local copy.
	m.quotes["EUR_USD"] = Tick{
		Instrument: "EUR_USD", Bid: 1.1040, Ask: 1.1040, Time: time.Now(),
	}
	m.cycle()

	got := repo.Open()[0].Standard.TrailingStop
	if math.Abs(got-1.1038) > 1e-9 {
		t.Errorf("trailing stop = %v, want ratcheted to 1.1038", got)
	}

	// An adverse move must not loosen it.
	m.quotes["EUR_USD"] = Tick{
		Instrument: "EUR_USD", Bid: 1.1030, Ask: 1.1030, Time: time.Now(),
	}
	m.cycle()
	if after := repo.Open()[0].Standard.TrailingStop; after != got {
		t.Errorf("trailing stop loosened: %v -> %v", got, after)
	}
}

func TestMonitorNewsExit(t *testing.T) {
	exec := &fakeExec{fillPrice: 1.1005}
	m, repo, _ := newTestMonitor(exec, &fakePrices{bid: 1.1004, ask: 1.1006}, alwaysClose{})

	if err := m.Register(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}
	m.cycle()

	closed := repo.Closed()
	if len(closed) != 1 || closed[0].CloseReason != domain.ReasonNewsClose {
		t.Fatalf("closed = %+v, want news close", closed)
	}
}

func TestMonitorReconcileMarksDesync(t *testing.T) {
	exec := &fakeExec{openIDs: []string{"99"}}
	m, repo, _ := newTestMonitor(exec, &fakePrices{}, nil)

	if err := m.Register(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}
	m.reconcile(context.Background())

	closed := repo.Closed()
	if len(closed) != 1 || closed[0].CloseReason != domain.ReasonDesync {
		t.Fatalf("closed = %+v, want desync", closed)
	}
	if len(repo.Open()) != 0 {
		t.Error("desynced position left open")
	}
}

func TestMonitorStartStop(t *testing.T) {
	m, _, _ := newTestMonitor(&fakeExec{}, &fakePrices{}, nil)
	m.Start()
	m.PushQuote(Tick{Instrument: "EUR_USD", Bid: 1, Ask: 1, Time: time.Now()})
	m.Stop()
}
