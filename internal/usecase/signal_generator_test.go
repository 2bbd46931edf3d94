package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/repository"
)

type fakeBroker struct {
	fakeExec
	fakePrices
	candles []domain.Candle
}

func (b *fakeBroker) Candles(ctx context.Context, instrument, granularity string, count int) ([]domain.Candle, error) {
	return b.candles, nil
}

// flipSeries rises steadily, then collapses on the last bar so the trend
// flips bearish exactly once, at the end.
func flipSeries() []domain.Candle {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 1.2000
	candles := make([]domain.Candle, 0, 40)
	for i := 0; i < 40; i++ {
		d := 0.0001
		if i == 39 {
			d = -0.0200
		}
		o := price
		c := price + d
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      csvPrecision(o),
			High:      csvPrecision(math.Max(o, c) + 0.0002),
			Low:       csvPrecision(math.Min(o, c) - 0.0002),
			Close:     csvPrecision(c),
			Volume:    100,
		})
		price = c
		ts = ts.Add(15 * time.Minute)
	}
	return candles
}

func TestGeneratorForwardsTrendFlip(t *testing.T) {
	cfg := domain.DefaultConfig()
	repo := repository.NewInMemoryTradeRepository()
	if err := repo.Create(managedPosition(domain.StrategyStandard)); err != nil {
		t.Fatal(err)
	}

	broker := &fakeBroker{candles: flipSeries()}
	broker.fillPrice = 1.1800
	streak := NewLossStreak(cfg)
	monitor := NewMonitor(cfg, &broker.fakeExec, &broker.fakePrices, nil, repo, streak, nil)
	rules := NewRuleEngine(cfg,
		NewSessionFilter(cfg), NewCorrelationFilter(cfg), streak, openNews{})
	g := NewSignalGenerator(cfg, broker, rules, repo, monitor, nil)

	if err := g.scanPair(context.Background(), "EUR_USD"); err != nil {
		t.Fatal(err)
	}

	var flip TrendFlip
	select {
	case flip = <-monitor.flips:
	default:
		t.Fatal("bearish flip on a managed pair was not queued")
	}
	if flip.Instrument != "EUR_USD" || flip.Bullish {
		t.Fatalf("flip = %+v, want bearish EUR_USD", flip)
	}

	// The monitor then closes the adverse long on that flip.
	monitor.handleTrendFlip(flip)
	closed := repo.Closed()
	if len(closed) != 1 || closed[0].CloseReason != domain.ReasonTrendFlip {
		t.Fatalf("closed = %+v, want one trend-flip close", closed)
	}

	// The same bar must not queue the flip twice on the next scan.
	if err := g.scanPair(context.Background(), "EUR_USD"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-monitor.flips:
		t.Error("flip re-queued for the same bar")
	default:
	}
}
