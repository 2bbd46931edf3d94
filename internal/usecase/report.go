package usecase

import (
	"math"
	"sort"
	"strconv"
	"time"

	"breakout-backend/internal/domain"
)

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// profitFactorSentinel stands in for a profit factor with zero gross loss.
const profitFactorSentinel = 999.0

// CompileReport aggregates closed trades into the backtest result.
func CompileReport(
	trades []*domain.Position,
	pairs []string,
	strategy domain.StrategyKind,
	startDate, endDate string,
	initialBalance, finalBalance, maxDrawdown float64,
	monthly map[string]float64,
	equity []domain.EquityPoint,
	rejections map[string]int,
) *domain.Report {
	sort.Strings(pairs)

	rep := &domain.Report{
		Pairs:          pairs,
		Strategy:       string(strategy),
		StartDate:      startDate,
		EndDate:        endDate,
		InitialBalance: initialBalance,
		FinalBalance:   round(finalBalance, 2),
		MaxDrawdown:    round(-maxDrawdown, 2),
		MonthlyReturns: make(map[string]float64, len(monthly)),
		ByPair:         make(map[string]domain.PairStats),
		Rejections:     rejections,
		EquityCurve:    equity,
	}
	for k, v := range monthly {
		rep.MonthlyReturns[k] = round(v, 2)
	}
	if len(trades) == 0 {
		return rep
	}

	var grossProfit, grossLoss float64
	var wins, losses int
	best, worst := trades[0].RealizedPL, trades[0].RealizedPL
	var cw, cl, maxCW, maxCL int
	var durations float64
	var durCount int

	for i, t := range trades {
		pl := t.RealizedPL
		switch {
		case pl > 0:
			wins++
			grossProfit += pl
			cw++
			cl = 0
			if cw > maxCW {
				maxCW = cw
			}
		case pl < 0:
			losses++
			grossLoss += -pl
			cl++
			cw = 0
			if cl > maxCL {
				maxCL = cl
			}
		}
		if pl > best {
			best = pl
		}
		if pl < worst {
			worst = pl
		}
		if !t.ExitTime.IsZero() && !t.EntryTime.IsZero() {
			durations += t.ExitTime.Sub(t.EntryTime).Hours()
			durCount++
		}

		ps := rep.ByPair[t.Instrument]
		ps.Trades++
		if pl > 0 {
			ps.Wins++
		}
		ps.NetProfit = round(ps.NetProfit+pl, 2)
		rep.ByPair[t.Instrument] = ps

		// Keep the id assigned when the trade opened; trades that closed
		// out of open order keep their original numbering.
		id := i + 1
		if n, err := strconv.Atoi(t.ID); err == nil {
			id = n
		}

		rep.Trades = append(rep.Trades, domain.TradeRecord{
			ID:          id,
			Instrument:  t.Instrument,
			Direction:   string(t.Direction),
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			EntryTime:   t.EntryTime.Format(time.RFC3339),
			ExitTime:    t.ExitTime.Format(time.RFC3339),
			ProfitLoss:  pl,
			ProfitPips:  round(t.RealizedPips, 1),
			CloseReason: t.CloseReason,
		})
	}

	rep.TotalTrades = len(trades)
	rep.Wins = wins
	rep.Losses = losses
	rep.WinRate = round(float64(wins)/float64(len(trades))*100, 1)
	rep.GrossProfit = round(grossProfit, 2)
	rep.GrossLoss = round(-grossLoss, 2)
	rep.NetProfit = round(grossProfit-grossLoss, 2)
	if grossLoss > 0 {
		rep.ProfitFactor = round(grossProfit/grossLoss, 2)
	} else {
		rep.ProfitFactor = profitFactorSentinel
	}
	if wins > 0 {
		rep.AvgWin = round(grossProfit/float64(wins), 2)
	}
	if losses > 0 {
		rep.AvgLoss = round(-grossLoss/float64(losses), 2)
	}
	rep.BestTrade = round(best, 2)
	rep.WorstTrade = round(worst, 2)
	rep.MaxConsecutiveWins = maxCW
	rep.MaxConsecutiveLosses = maxCL
	rep.SharpeRatio = round(sharpe(trades), 2)
	if durCount > 0 {
		rep.AvgTradeDurationHours = round(durations/float64(durCount), 1)
	}
	return rep
}

// sharpe annualizes mean/stdev of per-trade P&L over a 252-day proxy. Needs
// at least two trades; a zero deviation falls back to 1.
func sharpe(trades []*domain.Position) float64 {
	if len(trades) < 2 {
		return 0
	}
	n := float64(len(trades))
	var sum float64
	for _, t := range trades {
		sum += t.RealizedPL
	}
	mean := sum / n

	var sq float64
	for _, t := range trades {
		d := t.RealizedPL - mean
		sq += d * d
	}
	std := math.Sqrt(sq / (n - 1))
	if std == 0 {
		std = 1
	}
	return mean / std * math.Sqrt(252)
}
