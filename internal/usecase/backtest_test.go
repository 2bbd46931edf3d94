package usecase

import (
	"math"
	"reflect"
	"strconv"
	"testing"
	"time"

	"breakout-backend/internal/domain"
)

// csvPrecision mimics a 5-decimal data export round trip.
func csvPrecision(v float64) float64 {
	out, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 5, 64), 64)
	return out
}

// trendWithPullbacks builds a steady uptrend interrupted by sharp 15-bar
// pullbacks every 70 bars. Each pullback flips the M15 trend bearish and the
// following leg produces a confirmed short breakout while the higher
// timeframe agrees, so the run opens real trades through every entry gate.
func trendWithPullbacks() []domain.Candle {
	const (
		n       = 1200
		base    = 0.00008
		pbEvery = 70
		pbLen   = 15
		pbDrift = -0.00040
		wick    = 0.00015
	)

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 1.1000
	candles := make([]domain.Candle, 0, n)
	for i := 0; i < n; i++ {
		d := base
		if i%pbEvery < pbLen && i > 100 {
			d = pbDrift
		}
		o := price
		c := price + d
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      csvPrecision(o),
			High:      csvPrecision(math.Max(o, c) + wick),
			Low:       csvPrecision(math.Min(o, c) - wick),
			Close:     csvPrecision(c),
			Volume:    100,
		})
		price = c
		ts = ts.Add(15 * time.Minute)
		for ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			ts = ts.Add(12 * time.Hour)
		}
	}
	return candles
}

func TestBacktestTrendWithPullbacks(t *testing.T) {
	cfg := domain.DefaultConfig()
	rep, err := NewEngine(cfg).Run("EUR_USD", trendWithPullbacks())
	if err != nil {
		t.Fatal(err)
	}

	if rep.TotalTrades != 6 {
		t.Fatalf("total trades = %d, want 6", rep.TotalTrades)
	}
	if rep.Wins != 6 || rep.Losses != 0 {
		t.Errorf("wins/losses = %d/%d, want 6/0", rep.Wins, rep.Losses)
	}
	if rep.WinRate != 100.0 {
		t.Errorf("win rate = %v, want 100.0", rep.WinRate)
	}
	if rep.ProfitFactor != 999.0 {
		t.Errorf("profit factor = %v, want 999.0 with zero gross loss", rep.ProfitFactor)
	}
	if rep.NetProfit != 1231.43 {
		t.Errorf("net profit = %v, want 1231.43", rep.NetProfit)
	}
	if rep.FinalBalance != 11231.43 {
		t.Errorf("final balance = %v, want 11231.43", rep.FinalBalance)
	}
	if rep.MaxDrawdown != 0 {
		t.Errorf("max drawdown = %v, want 0", rep.MaxDrawdown)
	}
	if rep.StartDate != "2024-01-02" || rep.EndDate != "2024-01-18" {
		t.Errorf("period = %s..%s, want 2024-01-02..2024-01-18", rep.StartDate, rep.EndDate)
	}

	// The pullbacks produce short entries only; the first leg deep enough to
	// flip the trend confirms on Jan 4.
	first := rep.Trades[0]
	if first.Direction != "short" || first.EntryTime != "2024-01-04T23:00:00Z" {
		t.Errorf("first trade = %s @ %s, want short @ 2024-01-04T23:00:00Z",
			first.Direction, first.EntryTime)
	}
	trailing, endOfData := 0, 0
	for _, tr := range rep.Trades {
		if tr.Direction != "short" {
			t.Errorf("trade %d direction = %s, want short", tr.ID, tr.Direction)
		}
		switch tr.CloseReason {
		case domain.ReasonTrailingStop:
			trailing++
		case domain.ReasonEndOfData:
			endOfData++
		}
	}
	if trailing != 5 || endOfData != 1 {
		t.Errorf("close reasons = %d trailing + %d end-of-data, want 5 + 1", trailing, endOfData)
	}

	if got := rep.MonthlyReturns["2024-01"]; got != 1231.43 {
		t.Errorf("monthly return 2024-01 = %v, want 1231.43", got)
	}
	if len(rep.EquityCurve) != 3 {
		t.Fatalf("equity points = %d, want 3 (first trade, fifth trade, final)", len(rep.EquityCurve))
	}
	if rep.EquityCurve[0].Equity != 10000 || rep.EquityCurve[2].Equity != 11231.43 {
		t.Errorf("equity endpoints = %v..%v, want 10000..11231.43",
			rep.EquityCurve[0].Equity, rep.EquityCurve[2].Equity)
	}

	if rep.SharpeRatio != 150.86 {
		t.Errorf("sharpe = %v, want 150.86", rep.SharpeRatio)
	}
	if rep.AvgTradeDurationHours != 27.6 {
		t.Errorf("avg duration = %v, want 27.6", rep.AvgTradeDurationHours)
	}
	if rep.AvgWin != 205.24 || rep.BestTrade != 222.45 || rep.WorstTrade != 162.97 {
		t.Errorf("avg/best/worst = %v/%v/%v, want 205.24/222.45/162.97",
			rep.AvgWin, rep.BestTrade, rep.WorstTrade)
	}
	if rep.MaxConsecutiveWins != 6 {
		t.Errorf("max consecutive wins = %d, want 6", rep.MaxConsecutiveWins)
	}

	stats, ok := rep.ByPair["EUR_USD"]
	if !ok || stats.Trades != 6 || stats.Wins != 6 || stats.NetProfit != 1231.43 {
		t.Errorf("pair stats = %+v, want 6 trades / 6 wins / 1231.43", stats)
	}
}

// downtrendWithRallies mirrors trendWithPullbacks: a falling series broken by
// sharp 15-bar rallies. The first rally deep enough to flip the M15 trend
// confirms a long breakout with the H1 trend bullish. Appended plunge bars
// then drive price straight through the stop.
func downtrendWithRallies(n, plunge int) []domain.Candle {
	const (
		base    = -0.00008
		pbEvery = 70
		pbLen   = 15
		pbDrift = 0.00040
		wick    = 0.00015
		plungeD = -0.0050
	)

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 1.1000
	candles := make([]domain.Candle, 0, n+plunge)
	for i := 0; i < n+plunge; i++ {
		d := base
		if i%pbEvery < pbLen && i > 100 {
			d = pbDrift
		}
		if i >= n {
			d = plungeD
		}
		o := price
		c := price + d
		candles = append(candles, domain.Candle{
			Timestamp: ts,
			Open:      csvPrecision(o),
			High:      csvPrecision(math.Max(o, c) + wick),
			Low:       csvPrecision(math.Min(o, c) - wick),
			Close:     csvPrecision(c),
			Volume:    100,
		})
		price = c
		ts = ts.Add(15 * time.Minute)
		for ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			ts = ts.Add(12 * time.Hour)
		}
	}
	return candles
}

func TestBacktestLongEntryHitsSwingStop(t *testing.T) {
	// 288 bars confirm exactly one long on Jan 4; the plunge begins on the
	// next higher-timeframe boundary and fills the stop on its first bar.
	rep, err := NewEngine(domain.DefaultConfig()).Run("EUR_USD", downtrendWithRallies(288, 3))
	if err != nil {
		t.Fatal(err)
	}

	if rep.TotalTrades != 1 {
		t.Fatalf("total trades = %d, want exactly 1", rep.TotalTrades)
	}
	if rep.Wins != 0 || rep.Losses != 1 || rep.WinRate != 0 {
		t.Errorf("wins/losses/rate = %d/%d/%v, want 0/1/0", rep.Wins, rep.Losses, rep.WinRate)
	}

	tr := rep.Trades[0]
	if tr.Direction != "long" || tr.EntryTime != "2024-01-04T23:00:00Z" {
		t.Errorf("entry = %s @ %s, want long @ 2024-01-04T23:00:00Z", tr.Direction, tr.EntryTime)
	}
	// Breakout bar closes at 1.09400; the long pays half the 0.8-pip spread
	// plus 0.3 pips slippage on the way in.
	if tr.EntryPrice != 1.09407 {
		t.Errorf("entry price = %v, want 1.09407", tr.EntryPrice)
	}
	// The swing-anchored stop sits at 1.09165; the fill nets the same costs
	// on the way out.
	if tr.CloseReason != domain.ReasonStopLoss || tr.ExitPrice != 1.09158 {
		t.Errorf("exit = %v (%s), want 1.09158 stop loss", tr.ExitPrice, tr.CloseReason)
	}
	if tr.ExitTime != "2024-01-05T00:00:00Z" {
		t.Errorf("exit time = %s, want first plunge bar", tr.ExitTime)
	}
	if tr.ProfitLoss != -105.96 || tr.ProfitPips != -24.9 {
		t.Errorf("pl = %v (%v pips), want -105.96 (-24.9)", tr.ProfitLoss, tr.ProfitPips)
	}

	if rep.NetProfit != -105.96 || rep.FinalBalance != 9894.04 {
		t.Errorf("net/final = %v/%v, want -105.96/9894.04", rep.NetProfit, rep.FinalBalance)
	}
	if rep.MaxDrawdown != -105.96 {
		t.Errorf("max drawdown = %v, want -105.96", rep.MaxDrawdown)
	}
	if rep.StartDate != "2024-01-02" || rep.EndDate != "2024-01-05" {
		t.Errorf("period = %s..%s", rep.StartDate, rep.EndDate)
	}
	if got := rep.MonthlyReturns["2024-01"]; got != -105.96 {
		t.Errorf("monthly return = %v, want -105.96", got)
	}
	if len(rep.EquityCurve) != 2 ||
		rep.EquityCurve[0].Equity != 10000 || rep.EquityCurve[1].Equity != 9894.04 {
		t.Errorf("equity curve = %+v, want 10000..9894.04", rep.EquityCurve)
	}
}

func TestBacktestDeterminism(t *testing.T) {
	candles := trendWithPullbacks()

	a, err := NewEngine(domain.DefaultConfig()).Run("EUR_USD", candles)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewEngine(domain.DefaultConfig()).Run("EUR_USD", candles)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different reports")
	}
}

func TestBacktestPortfolioSharesBalance(t *testing.T) {
	candles := trendWithPullbacks()
	data := map[string][]domain.Candle{
		"EUR_USD": candles,
		"GBP_USD": candles,
	}

	rep, err := NewEngine(domain.DefaultConfig()).RunPortfolio(data)
	if err != nil {
		t.Fatal(err)
	}

	if len(rep.Pairs) != 2 {
		t.Fatalf("pairs = %v", rep.Pairs)
	}
	// EUR_USD and GBP_USD correlate +0.91 and the series are identical, so
	// every GBP breakout lands while the matching EUR trade is already on.
	if rep.Rejections[RuleCorrelation] == 0 {
		t.Errorf("expected correlation rejections on duplicate exposure")
	}
	var sum float64
	for _, s := range rep.ByPair {
		sum += s.NetProfit
	}
	if math.Abs(sum-rep.NetProfit) > 0.05 {
		t.Errorf("per-pair net %v does not sum to total %v", sum, rep.NetProfit)
	}
}

func TestBacktestRejectsEmptySeries(t *testing.T) {
	_, err := NewEngine(domain.DefaultConfig()).Run("EUR_USD", nil)
	if err == nil {
		t.Fatal("expected error for empty series")
	}
}
