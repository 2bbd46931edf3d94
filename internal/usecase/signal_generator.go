package usecase

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/infrastructure/indicators"
)

// Broker is the combined broker surface the generator needs.
type Broker interface {
	domain.OrderExecutor
	domain.PricePort
	domain.CandleSource
}

// SignalGenerator periodically scans the allowed pairs for confirmed
// breakouts, runs the rule engine, and executes approved entries.
type SignalGenerator struct {
	cfg      *domain.Config
	broker   Broker
	rules    *RuleEngine
	risk     *RiskCalculator
	repo     domain.TradeRepository
	monitor  *Monitor
	notifier *Notifier

	// Bar timestamp of the last flip forwarded per pair, so one flip is
	// reported once even though scans repeat within the bar.
	lastFlip map[string]time.Time
}

func NewSignalGenerator(
	cfg *domain.Config,
	broker Broker,
	rules *RuleEngine,
	repo domain.TradeRepository,
	monitor *Monitor,
	notifier *Notifier,
) *SignalGenerator {
	return &SignalGenerator{
		cfg:      cfg,
		broker:   broker,
		rules:    rules,
		risk:     NewRiskCalculator(cfg),
		repo:     repo,
		monitor:  monitor,
		notifier: notifier,
		lastFlip: make(map[string]time.Time),
	}
}

// Run scans on the interval until the context is cancelled.
func (g *SignalGenerator) Run(ctx context.Context, interval time.Duration) {
	log.Printf("Signal generator started (interval %s, strategy %s)", interval, g.cfg.Strategy)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Signal generator stopped")
			return
		case <-ticker.C:
			g.Scan(ctx)
		}
	}
}

// Scan checks every allowed pair once. Pairs are scanned in sorted order so
// a run is reproducible against the same market snapshot. Pairs with an open
// position are still scanned: a trend flip there must reach the monitor so
// the held remainder has an exit path.
func (g *SignalGenerator) Scan(ctx context.Context) {
	pairs := append([]string(nil), g.cfg.Pairs.AllowedPairs...)
	sort.Strings(pairs)

	for _, pair := range pairs {
		if err := g.scanPair(ctx, pair); err != nil {
			log.Printf("scan %s: %v", pair, err)
		}
	}
}

func (g *SignalGenerator) scanPair(ctx context.Context, pair string) error {
	cfg := g.cfg

	candles, err := g.broker.Candles(ctx, pair, "M15", 100)
	if err != nil {
		return err
	}
	if len(candles) < 31 {
		return nil
	}

	states := indicators.SupertrendSeries(candles,
		cfg.Indicators.SupertrendATRPeriod, cfg.Indicators.SupertrendMultiplier)
	last := len(candles) - 1
	st := states[last]
	candle := candles[last]

	if st.Changed && !g.lastFlip[pair].Equal(candle.Timestamp) {
		g.lastFlip[pair] = candle.Timestamp
		log.Printf("Trend flip on %s (bullish=%v)", pair, st.Direction == 1)
		g.monitor.TriggerTrendFlip(pair, st.Direction == 1)
	}

	// With a position on, the scan only watches for flips.
	if len(g.repo.OpenByInstrument(pair)) > 0 {
		return nil
	}

	direction, ok := indicators.BreakoutSignal(st, candle)
	if !ok {
		return nil
	}

	closes := make([]float64, 0, 51)
	start := last - 50
	if start < 0 {
		start = 0
	}
	for _, c := range candles[start:] {
		closes = append(closes, c.Close)
	}
	rsi, ok := indicators.CalculateRSI(closes, cfg.Indicators.RSIPeriod)
	if !ok {
		return nil
	}

	htf, err := g.broker.Candles(ctx, pair, "H1", 50)
	if err != nil {
		return err
	}
	htfStates := indicators.SupertrendSeries(htf,
		cfg.Indicators.SupertrendATRPeriod, cfg.Indicators.SupertrendMultiplier)
	htfBullish := len(htfStates) > 0 && htfStates[len(htfStates)-1].Direction == 1

	atr, atrOK := indicators.CalculateATR(candles[start:], cfg.Risk.ATRPeriod)
	sig := &domain.Signal{
		Instrument:     pair,
		Direction:      direction,
		Timestamp:      candle.Timestamp,
		RSI:            rsi,
		TrendDirection: st.Direction,
		HTFBullish:     htfBullish,
		EntryPrice:     candle.Close,
		ATR:            atr,
		ATRValid:       atrOK,
		SwingLow:       indicators.SwingLow(candles, last),
		SwingHigh:      indicators.SwingHigh(candles, last),
		TriggerBarLow:  st.TriggerBarLow,
		TriggerBarHigh: st.TriggerBarHigh,
	}

	approved, results := g.rules.Evaluate(sig, g.repo.Open(), time.Now().UTC())
	if !approved {
		last := results[len(results)-1]
		log.Printf("🚫 %s %s rejected by %s: %s", pair, direction, last.Name, last.Reason)
		return nil
	}

	return g.execute(ctx, sig)
}

func (g *SignalGenerator) execute(ctx context.Context, sig *domain.Signal) error {
	cfg := g.cfg
	pip := domain.PipSize(sig.Instrument)

	balance := cfg.VirtualBalance
	if !cfg.PaperTrading {
		b, err := g.broker.Balance(ctx)
		if err != nil {
			return err
		}
		balance = b
	}

	lv := g.risk.Levels(sig, sig.EntryPrice, pip)
	lv.Units = g.risk.UnitsFor(balance, lv.RiskDistance)
	if cfg.Strategy == domain.StrategyAggressive {
		lv = g.risk.ApplyAggressiveOverride(sig, lv, sig.EntryPrice, pip, balance)
	}
	if lv.Units < 1 {
		return nil
	}

	units := int(lv.Units)
	if sig.Direction == domain.Short {
		units = -units
	}

	p := &domain.Position{
		ID:             uuid.NewString(),
		Instrument:     sig.Instrument,
		Direction:      sig.Direction,
		Strategy:       cfg.Strategy,
		EntryPrice:     sig.EntryPrice,
		EntryTime:      time.Now().UTC(),
		StopLoss:       lv.StopLoss,
		TakeProfit:     lv.TakeProfit,
		RiskDistance:   lv.RiskDistance,
		Units:          lv.Units,
		RemainingUnits: lv.Units,
		TriggerBarHigh: sig.TriggerBarHigh,
		TriggerBarLow:  sig.TriggerBarLow,
	}

	if cfg.PaperTrading {
		log.Printf("📝 [PAPER] %s %s %.0f units @ %.5f, SL %.5f",
			sig.Instrument, sig.Direction, lv.Units, sig.EntryPrice, lv.StopLoss)
	} else {
		res, err := g.broker.PlaceMarketOrder(ctx, sig.Instrument, units, lv.StopLoss, lv.TakeProfit)
		if err != nil {
			return err
		}
		if res.Rejected {
			log.Printf("🚫 Order rejected for %s: %s", sig.Instrument, res.RejectReason)
			return nil
		}
		p.BrokerTradeID = res.TradeID
		p.EntryPrice = res.FillPrice
	}

	if err := g.monitor.Register(p); err != nil {
		return err
	}
	if g.notifier != nil {
		g.notifier.NotifyOpen(p)
	}
	return nil
}
