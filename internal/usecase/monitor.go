package usecase

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"breakout-backend/internal/domain"
)

// TrendFlip is an external notice that the trend indicator changed color on
// an instrument. Bullish flips close shorts, bearish flips close longs.
type TrendFlip struct {
	Instrument string
	Bullish    bool
}

// Tick is a live quote update pushed into the monitor.
type Tick struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

// quoteStaleAfter bounds how long a streamed quote may serve before the
// monitor falls back to the REST price port.
const quoteStaleAfter = 10 * time.Second

// Monitor owns all open-position state transitions in live mode. One
// goroutine runs the loop; trend flips and quotes arrive over channels, so
// no handler ever races the cycle.
type Monitor struct {
	cfg      *domain.Config
	exec     domain.OrderExecutor
	prices   domain.PricePort
	news     domain.NewsAdvisor
	repo     domain.TradeRepository
	streak   *LossStreak
	notifier *Notifier

	interval time.Duration
	flips    chan TrendFlip
	ticks    chan Tick
	stop     chan struct{}
	done     chan struct{}

	// Owned by the loop goroutine.
	quotes map[string]Tick
	cycles int
}

func NewMonitor(
	cfg *domain.Config,
	exec domain.OrderExecutor,
	prices domain.PricePort,
	news domain.NewsAdvisor,
	repo domain.TradeRepository,
	streak *LossStreak,
	notifier *Notifier,
) *Monitor {
	return &Monitor{
		cfg:      cfg,
		exec:     exec,
		prices:   prices,
		news:     news,
		repo:     repo,
		streak:   streak,
		notifier: notifier,
		interval: 5 * time.Second,
		flips:    make(chan TrendFlip, 16),
		ticks:    make(chan Tick, 256),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		quotes:   make(map[string]Tick),
	}
}

// Register puts a freshly opened position under management.
func (m *Monitor) Register(p *domain.Position) error {
	if err := m.repo.Create(p); err != nil {
		return err
	}
	log.Printf("📈 Managing %s %s %s, %.0f units, SL %.5f",
		p.Instrument, p.Direction, p.Strategy, p.Units, p.StopLoss)
	return nil
}

// TriggerTrendFlip queues a flip for the loop; it never blocks the caller.
func (m *Monitor) TriggerTrendFlip(instrument string, bullish bool) {
	select {
	case m.flips <- TrendFlip{Instrument: instrument, Bullish: bullish}:
	default:
		log.Printf("trend flip queue full, dropping %s", instrument)
	}
}

// PushQuote feeds a streamed tick into the loop's price cache.
func (m *Monitor) PushQuote(t Tick) {
	select {
	case m.ticks <- t:
	default:
	}
}

// Start launches the monitor loop.
func (m *Monitor) Start() {
	go m.loop()
	log.Printf("Position monitor started (interval %s)", m.interval)
}

// Stop shuts the loop down and waits for it to finish.
func (m *Monitor) Stop() {
	close(m.stop)
	select {
	case <-m.done:
	case <-time.After(10 * time.Second):
		log.Println("monitor stop timed out")
	}
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case flip := <-m.flips:
			m.handleTrendFlip(flip)
		case t := <-m.ticks:
			m.quotes[t.Instrument] = t
		case <-ticker.C:
			m.cycle()
		}
	}
}

func (m *Monitor) cycle() {
	open := m.repo.Open()
	if len(open) == 0 {
		return
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })

	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	for _, p := range open {
		mid, ok := m.midPrice(ctx, p.Instrument)
		if !ok {
			continue
		}
		m.checkStrategy(ctx, p, mid)
		m.updateTrailing(p, mid)
	}

	m.checkNewsExits(ctx)

	// Reconcile against the broker once a minute.
	m.cycles++
	if m.cycles%12 == 0 {
		m.reconcile(ctx)
	}
}

func (m *Monitor) midPrice(ctx context.Context, instrument string) (float64, bool) {
	if t, ok := m.quotes[instrument]; ok && time.Since(t.Time) < quoteStaleAfter {
		return (t.Bid + t.Ask) / 2, true
	}
	bid, ask, err := m.prices.Quote(ctx, instrument)
	if err != nil {
		log.Printf("quote %s: %v", instrument, err)
		return 0, false
	}
	return (bid + ask) / 2, true
}

// checkStrategy advances the position's exit machine against the live price.
// Broker failures leave local state untouched so the next cycle retries.
func (m *Monitor) checkStrategy(ctx context.Context, p *domain.Position, mid float64) {
	switch p.Strategy {
	case domain.StrategyAggressive:
		if priceReached(p, mid, p.RTarget(10)) {
			m.closeRemainder(ctx, p, domain.ReasonTakeProfit10R)
		}
	case domain.StrategyScaling:
		m.checkScaling(ctx, p, mid)
	case domain.StrategyDPL:
		m.checkDPL(ctx, p, mid)
	default:
		m.checkStandard(ctx, p, mid)
	}
}

func priceReached(p *domain.Position, mid, target float64) bool {
	if p.Direction == domain.Long {
		return mid >= target
	}
	return mid <= target
}

func (m *Monitor) checkStandard(ctx context.Context, p *domain.Position, mid float64) {
	if p.Standard.PartialClosed || !priceReached(p, mid, p.RTarget(2)) {
		return
	}
	half := math.Floor(p.RemainingUnits * 0.5)
	if half < 1 {
		half = 1
	}
	if _, err := m.exec.CloseTrade(ctx, p.BrokerTradeID, half); err != nil {
		log.Printf("partial close %s: %v", p.Instrument, err)
		return
	}
	p.Standard.PartialClosed = true
	p.RemainingUnits -= half
	pip := domain.PipSize(p.Instrument)
	trail := m.cfg.Risk.TrailingStopPips * pip
	if p.Direction == domain.Long {
		p.Standard.TrailingStop = mid - trail
	} else {
		p.Standard.TrailingStop = mid + trail
	}
	if err := m.exec.ModifyTrade(ctx, p.BrokerTradeID, domain.ModifyOptions{TrailingStopDistance: trail}); err != nil {
		log.Printf("arm trailing stop %s: %v", p.Instrument, err)
	}
	if err := m.repo.Update(p); err != nil {
		log.Printf("update %s: %v", p.ID, err)
	}
	log.Printf("✅ [2R] Partial close %s: %.0f off, %.0f remaining", p.Instrument, half, p.RemainingUnits)
}

func (m *Monitor) checkScaling(ctx context.Context, p *domain.Position, mid float64) {
	if !p.Scaling.ScaledIn && priceReached(p, mid, p.RTarget(1)) {
		units := int(p.Units)
		if p.Direction == domain.Short {
			units = -units
		}
		res, err := m.exec.PlaceMarketOrder(ctx, p.Instrument, units, 0, 0)
		if err != nil {
			log.Printf("scale-in %s: %v", p.Instrument, err)
			return
		}
		if res.Rejected {
			log.Printf("scale-in %s rejected: %s", p.Instrument, res.RejectReason)
			return
		}
		p.Scaling.ScaledIn = true
		p.Units *= 2
		p.RemainingUnits = p.Units
		if p.Direction == domain.Long {
			p.StopLoss = p.EntryPrice - p.RiskDistance/2
		} else {
			p.StopLoss = p.EntryPrice + p.RiskDistance/2
		}
		if err := m.exec.ModifyTrade(ctx, p.BrokerTradeID, domain.ModifyOptions{StopLoss: p.StopLoss}); err != nil {
			log.Printf("tighten stop %s: %v", p.Instrument, err)
		}
		if err := m.repo.Update(p); err != nil {
			log.Printf("update %s: %v", p.ID, err)
		}
		log.Printf("✅ [1R] Scaled in %s, stop tightened to %.5f", p.Instrument, p.StopLoss)
		return
	}
	if p.Scaling.ScaledIn && priceReached(p, mid, p.RTarget(3)) {
		m.closeRemainder(ctx, p, domain.ReasonTakeProfit3R)
	}
}

func (m *Monitor) checkDPL(ctx context.Context, p *domain.Position, mid float64) {
	third := math.Floor(p.Units / 3)
	if third < 1 {
		third = 1
	}
	if !p.DPL.Stage1Done && priceReached(p, mid, p.RTarget(1)) {
		if _, err := m.exec.CloseTrade(ctx, p.BrokerTradeID, third); err != nil {
			log.Printf("dpl1 close %s: %v", p.Instrument, err)
			return
		}
		p.DPL.Stage1Done = true
		p.RemainingUnits -= third
		p.StopLoss = p.EntryPrice
		if err := m.exec.ModifyTrade(ctx, p.BrokerTradeID, domain.ModifyOptions{StopLoss: p.EntryPrice}); err != nil {
			log.Printf("move stop to breakeven %s: %v", p.Instrument, err)
		}
		if err := m.repo.Update(p); err != nil {
			log.Printf("update %s: %v", p.ID, err)
		}
		log.Printf("✅ [DPL1] %s: third off, stop at breakeven", p.Instrument)
		return
	}
	if p.DPL.Stage1Done && !p.DPL.Stage2Done && priceReached(p, mid, p.RTarget(2)) {
		if _, err := m.exec.CloseTrade(ctx, p.BrokerTradeID, third); err != nil {
			log.Printf("dpl2 close %s: %v", p.Instrument, err)
			return
		}
		p.DPL.Stage2Done = true
		p.RemainingUnits -= third
		if err := m.repo.Update(p); err != nil {
			log.Printf("update %s: %v", p.ID, err)
		}
		log.Printf("✅ [DPL2] %s: second third off", p.Instrument)
	}
}

// updateTrailing ratchets the local trailing stop toward a favorable move and
// persists it, so the trail survives a restart alongside the broker-side
// trailing order.
func (m *Monitor) updateTrailing(p *domain.Position, mid float64) {
	if p.Strategy != domain.StrategyStandard || !p.Standard.PartialClosed || p.Standard.TrailingStop == 0 {
		return
	}
	trail := m.cfg.Risk.TrailingStopPips * domain.PipSize(p.Instrument)
	moved := false
	if p.Direction == domain.Long {
		if nt := mid - trail; nt > p.Standard.TrailingStop {
			p.Standard.TrailingStop = nt
			moved = true
		}
	} else {
		if nt := mid + trail; nt < p.Standard.TrailingStop {
			p.Standard.TrailingStop = nt
			moved = true
		}
	}
	if !moved {
		return
	}
	if err := m.repo.Update(p); err != nil {
		log.Printf("update %s: %v", p.ID, err)
	}
}

func (m *Monitor) handleTrendFlip(flip TrendFlip) {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	for _, p := range m.repo.OpenByInstrument(flip.Instrument) {
		adverse := (p.Direction == domain.Long && !flip.Bullish) ||
			(p.Direction == domain.Short && flip.Bullish)
		if !adverse {
			continue
		}
		m.closeRemainder(ctx, p, domain.ReasonTrendFlip)
	}
}

func (m *Monitor) checkNewsExits(ctx context.Context) {
	if m.news == nil {
		return
	}
	now := time.Now().UTC()
	for _, p := range m.repo.Open() {
		if should, reason := m.news.ShouldClose(p.Instrument, now); should {
			log.Printf("⚠️ News exit %s: %s", p.Instrument, reason)
			m.closeRemainder(ctx, p, domain.ReasonNewsClose)
		}
	}
}

// closeRemainder closes whatever is left of a position at the broker and
// retires it locally with the exit price and realized P&L.
func (m *Monitor) closeRemainder(ctx context.Context, p *domain.Position, reason string) {
	res, err := m.exec.CloseTrade(ctx, p.BrokerTradeID, 0)
	if err != nil {
		log.Printf("close %s (%s): %v", p.Instrument, reason, err)
		return
	}

	pip := domain.PipSize(p.Instrument)
	var pips float64
	if p.Direction == domain.Long {
		pips = (res.FillPrice - p.EntryPrice) / pip
	} else {
		pips = (p.EntryPrice - res.FillPrice) / pip
	}
	pl := pips * pip * p.RemainingUnits

	p.RealizedPL += pl
	p.RealizedPips += pips
	p.RemainingUnits = 0
	p.ExitPrice = res.FillPrice
	p.ExitTime = time.Now().UTC()
	p.CloseReason = reason

	if err := m.repo.Close(p); err != nil {
		log.Printf("retire %s: %v", p.ID, err)
	}
	m.streak.RecordClose(p.RealizedPL, p.ExitTime)
	if m.notifier != nil {
		m.notifier.NotifyClose(p)
	}
	log.Printf("🔒 Closed %s %s (%s): %.1f pips, %.2f P&L",
		p.Instrument, p.Direction, reason, pips, pl)
}

// reconcile marks local positions the broker no longer knows as desynced.
func (m *Monitor) reconcile(ctx context.Context) {
	var ids []string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if ids, err = m.exec.OpenTradeIDs(ctx); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	if err != nil {
		log.Printf("reconcile: %v", err)
		return
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	for _, p := range m.repo.Open() {
		if p.BrokerTradeID == "" || known[p.BrokerTradeID] {
			continue
		}
		log.Printf("⚠️ %s (trade %s) gone at broker, marking desynced", p.Instrument, p.BrokerTradeID)
		p.RemainingUnits = 0
		p.ExitTime = time.Now().UTC()
		p.CloseReason = domain.ReasonDesync
		if err := m.repo.Close(p); err != nil {
			log.Printf("retire %s: %v", p.ID, err)
		}
	}
}
