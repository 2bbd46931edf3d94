package usecase

import (
	"fmt"
	"log"
	"sort"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/infrastructure/csvdata"
	"breakout-backend/internal/infrastructure/indicators"
)

// Engine simulates the breakout strategy over historical candles. A run is
// fully deterministic: the same candles and config always produce an
// identical report.
type Engine struct {
	cfg   *domain.Config
	risk  *RiskCalculator
	exits *ExitEvaluator
}

func NewEngine(cfg *domain.Config) *Engine {
	return &Engine{
		cfg:   cfg,
		risk:  NewRiskCalculator(cfg),
		exits: NewExitEvaluator(cfg),
	}
}

// pairSeries is the precomputed per-instrument state for a run.
type pairSeries struct {
	candles   []domain.Candle
	states    []domain.TrendState
	htf       []domain.Candle
	htfStates []domain.TrendState
	tsIdx     map[int64]int

	pipSize      float64
	spreadCost   float64
	slippageCost float64
}

func (e *Engine) prepare(pair string, candles []domain.Candle) *pairSeries {
	cfg := e.cfg
	ps := &pairSeries{
		candles: candles,
		states: indicators.SupertrendSeries(candles,
			cfg.Indicators.SupertrendATRPeriod, cfg.Indicators.SupertrendMultiplier),
		htf:     csvdata.AggregateHTF(candles),
		pipSize: domain.PipSize(pair),
		tsIdx:   make(map[int64]int, len(candles)),
	}
	ps.htfStates = indicators.SupertrendSeries(ps.htf,
		cfg.Indicators.SupertrendATRPeriod, cfg.Indicators.SupertrendMultiplier)
	ps.spreadCost = cfg.SpreadPips(pair) * ps.pipSize
	ps.slippageCost = cfg.Backtest.SlippagePips * ps.pipSize
	for i, c := range candles {
		ps.tsIdx[c.Timestamp.UnixNano()] = i
	}
	return ps
}

// htfBullish walks back to the latest higher-timeframe bar at or before now.
func (ps *pairSeries) htfBullish(now time.Time) bool {
	for i := len(ps.htf) - 1; i >= 0; i-- {
		if !ps.htf[i].Timestamp.After(now) && i < len(ps.htfStates) {
			return ps.htfStates[i].Direction == 1
		}
	}
	return false
}

// Run backtests a single instrument.
func (e *Engine) Run(pair string, candles []domain.Candle) (*domain.Report, error) {
	return e.RunPortfolio(map[string][]domain.Candle{pair: candles})
}

// RunPortfolio backtests several instruments against one shared balance. All
// per-instrument series are merged into one sorted timeline; instruments
// sharing a timestamp are processed in lexicographic order.
func (e *Engine) RunPortfolio(data map[string][]domain.Candle) (*domain.Report, error) {
	cfg := e.cfg

	pairs := make([]string, 0, len(data))
	series := make(map[string]*pairSeries, len(data))
	tsSet := make(map[int64]struct{})
	for pair, candles := range data {
		if len(candles) == 0 {
			return nil, fmt.Errorf("backtest: no candles for %s", pair)
		}
		pairs = append(pairs, pair)
		series[pair] = e.prepare(pair, candles)
		for _, c := range candles {
			tsSet[c.Timestamp.UnixNano()] = struct{}{}
		}
	}
	sort.Strings(pairs)

	timeline := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i] < timeline[j] })

	sessions := NewSessionFilter(cfg)
	correlation := NewCorrelationFilter(cfg)
	streak := NewLossStreak(cfg)

	var (
		openTrades   []*domain.Position
		closedTrades []*domain.Position
		tradeCounter int

		balance     = cfg.Backtest.InitialBalance
		peakBalance = cfg.Backtest.InitialBalance
		maxDrawdown float64

		monthly    = make(map[string]float64)
		rejections = make(map[string]int)
		equity     []domain.EquityPoint
	)

	startBar := cfg.Indicators.RSIPeriod + 1
	if startBar < 30 {
		startBar = 30
	}

	reject := func(rule string) { rejections[rule]++ }

	closeFill := func(p *domain.Position, f Fill, now time.Time, ps *pairSeries) {
		pl := applyFill(p, f, now, ps)
		balance += pl
		if balance > peakBalance {
			peakBalance = balance
		}
		if dd := peakBalance - balance; dd > maxDrawdown {
			maxDrawdown = dd
		}
		monthly[now.UTC().Format("2006-01")] += pl

		if f.Terminal {
			streak.RecordClose(p.RealizedPL, now)
			closedTrades = append(closedTrades, p)
		}
	}

	for _, ts := range timeline {
		now := time.Unix(0, ts).UTC()
		if sessions.IsWeekend(now) {
			continue
		}

		for _, pair := range pairs {
			ps := series[pair]
			i, ok := ps.tsIdx[ts]
			if !ok || i < startBar {
				continue
			}
			candle := ps.candles[i]
			st := ps.states[i]

			// Exits before entries.
			remaining := openTrades[:0]
			for _, p := range openTrades {
				if p.Instrument != pair {
					remaining = append(remaining, p)
					continue
				}
				if f, ok := e.exits.Evaluate(p, candle, st, ps.pipSize); ok {
					closeFill(p, f, now, ps)
					if f.Terminal {
						continue
					}
				}
				remaining = append(remaining, p)
			}
			openTrades = remaining

			// Cooldown bookkeeping runs every bar so expiry resets the
			// streak even without a candidate signal.
			inCooldown := streak.Blocked(now)

			direction, ok := indicators.BreakoutSignal(st, candle)
			if !ok {
				continue
			}

			if inCooldown {
				reject(RuleLossStreak)
				continue
			}
			if len(openTrades) >= cfg.Risk.MaxOpenTrades {
				reject(RuleMaxPositions)
				continue
			}
			if safe, _ := sessions.SafeToEnter(now); !safe {
				reject(RuleSession)
				continue
			}

			lookStart := i - 50
			if lookStart < 0 {
				lookStart = 0
			}
			lookback := ps.candles[lookStart : i+1]
			closes := make([]float64, len(lookback))
			for j, c := range lookback {
				closes[j] = c.Close
			}
			rsi, ok := indicators.CalculateRSI(closes, cfg.Indicators.RSIPeriod)
			if !ok {
				reject(RuleRSI)
				continue
			}
			if direction == domain.Long && rsi >= cfg.Indicators.RSIOverbought {
				reject(RuleRSI)
				continue
			}
			if direction == domain.Short && rsi <= cfg.Indicators.RSIOversold {
				reject(RuleRSI)
				continue
			}

			htfBullish := ps.htfBullish(now)
			if (direction == domain.Long) != htfBullish {
				reject(RuleHTFTrend)
				continue
			}

			if dup, _ := correlation.WouldDuplicate(pair, direction, ExposuresOf(openTrades)); dup {
				reject(RuleCorrelation)
				continue
			}

			atr, atrOK := indicators.CalculateATR(lookback, cfg.Risk.ATRPeriod)
			sig := &domain.Signal{
				Instrument:     pair,
				Direction:      direction,
				Timestamp:      now,
				RSI:            rsi,
				TrendDirection: st.Direction,
				HTFBullish:     htfBullish,
				ATR:            atr,
				ATRValid:       atrOK,
				SwingLow:       indicators.SwingLow(ps.candles, i),
				SwingHigh:      indicators.SwingHigh(ps.candles, i),
				TriggerBarLow:  st.TriggerBarLow,
				TriggerBarHigh: st.TriggerBarHigh,
			}

			lv := e.risk.Levels(sig, candle.Close, ps.pipSize)
			lv.Units = e.risk.UnitsFor(balance, lv.RiskDistance)
			if cfg.Strategy == domain.StrategyAggressive {
				lv = e.risk.ApplyAggressiveOverride(sig, lv, candle.Close, ps.pipSize, balance)
			}

			entry := candle.Close
			if direction == domain.Long {
				entry += ps.spreadCost/2 + ps.slippageCost
			} else {
				entry -= ps.spreadCost/2 + ps.slippageCost
			}

			tradeCounter++
			openTrades = append(openTrades, &domain.Position{
				ID:             fmt.Sprintf("%d", tradeCounter),
				Instrument:     pair,
				Direction:      direction,
				Strategy:       cfg.Strategy,
				EntryPrice:     round(entry, 5),
				EntryTime:      now,
				StopLoss:       round(lv.StopLoss, 5),
				TakeProfit:     round(lv.TakeProfit, 5),
				RiskDistance:   lv.RiskDistance,
				Units:          lv.Units,
				RemainingUnits: lv.Units,
				TriggerBarHigh: st.TriggerBarHigh,
				TriggerBarLow:  st.TriggerBarLow,
			})

			if len(equity) == 0 || tradeCounter%cfg.Backtest.EquitySampleEvery == 0 {
				equity = append(equity, domain.EquityPoint{
					Date:   now.UTC().Format("2006-01-02"),
					Equity: round(balance, 2),
				})
			}
		}
	}

	// Force-close whatever is still open at each pair's last candle.
	for _, p := range openTrades {
		ps := series[p.Instrument]
		last := ps.candles[len(ps.candles)-1]
		closeFill(p, Fill{
			Units:    p.RemainingUnits,
			Price:    last.Close,
			Reason:   domain.ReasonEndOfData,
			Terminal: true,
		}, last.Timestamp, ps)
	}
	openTrades = nil

	equity = append(equity, domain.EquityPoint{
		Date:   time.Unix(0, timeline[len(timeline)-1]).UTC().Format("2006-01-02"),
		Equity: round(balance, 2),
	})

	first := time.Unix(0, timeline[0]).UTC()
	lastTS := time.Unix(0, timeline[len(timeline)-1]).UTC()
	rep := CompileReport(closedTrades, pairs, cfg.Strategy,
		first.Format("2006-01-02"), lastTS.Format("2006-01-02"),
		cfg.Backtest.InitialBalance, balance, maxDrawdown,
		monthly, equity, rejections)

	log.Printf("Backtest finished: %d trades, net %.2f, PF %.2f",
		rep.TotalTrades, rep.NetProfit, rep.ProfitFactor)
	return rep, nil
}

// applyFill books a fill on the position: exit costs, pips and P&L, and the
// remaining-units ledger. Returns the realized P&L of this fill.
func applyFill(p *domain.Position, f Fill, now time.Time, ps *pairSeries) float64 {
	exit := f.Price
	if p.Direction == domain.Long {
		exit -= ps.spreadCost/2 + ps.slippageCost
	} else {
		exit += ps.spreadCost/2 + ps.slippageCost
	}
	exit = round(exit, 5)

	var pips float64
	if p.Direction == domain.Long {
		pips = round((exit-p.EntryPrice)/ps.pipSize, 1)
	} else {
		pips = round((p.EntryPrice-exit)/ps.pipSize, 1)
	}
	pl := round(pips*ps.pipSize*f.Units, 2)

	p.RealizedPL = round(p.RealizedPL+pl, 2)
	if p.Units > 0 {
		p.RealizedPips += pips * (f.Units / p.Units)
	}

	if f.Terminal {
		p.RemainingUnits = 0
		p.ExitPrice = exit
		p.ExitTime = now
		p.CloseReason = f.Reason
	} else {
		p.RemainingUnits -= f.Units
	}
	return pl
}
