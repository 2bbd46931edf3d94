package usecase

import (
	"fmt"
	"time"

	"breakout-backend/internal/domain"
)

// Rule names, also used as rejection-counter keys in backtest reports.
const (
	RulePairAllowed  = "pair_allowed"
	RuleSession      = "session"
	RuleNews         = "news"
	RuleLossStreak   = "loss_streak"
	RuleMaxPositions = "max_positions"
	RuleRSI          = "rsi_filter"
	RuleHTFTrend     = "htf_trend"
	RuleCorrelation  = "correlation"
)

// RuleResult is the outcome of one check.
type RuleResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// RuleEngine runs the entry checks in a fixed order and stops at the first
// failure.
type RuleEngine struct {
	cfg         *domain.Config
	sessions    *SessionFilter
	correlation *CorrelationFilter
	streak      *LossStreak
	news        domain.NewsAdvisor
}

func NewRuleEngine(cfg *domain.Config, sessions *SessionFilter, correlation *CorrelationFilter, streak *LossStreak, news domain.NewsAdvisor) *RuleEngine {
	return &RuleEngine{
		cfg:         cfg,
		sessions:    sessions,
		correlation: correlation,
		streak:      streak,
		news:        news,
	}
}

// Evaluate checks a signal against current exposure. It returns whether the
// entry is approved and every result up to and including the first failure.
func (e *RuleEngine) Evaluate(sig *domain.Signal, open []*domain.Position, now time.Time) (bool, []RuleResult) {
	var results []RuleResult
	check := func(name string, passed bool, reason string) bool {
		results = append(results, RuleResult{Name: name, Passed: passed, Reason: reason})
		return passed
	}

	if !check(RulePairAllowed, e.cfg.PairAllowed(sig.Instrument),
		fmt.Sprintf("%s not in allowed pairs", sig.Instrument)) {
		return false, results
	}

	if e.sessions.IsForexWeekend(now) {
		check(RuleSession, false, "market closed for the weekend")
		return false, results
	}
	if near, name := e.sessions.NearSessionOpen(now); near {
		check(RuleSession, false, fmt.Sprintf("too close to %s open", name))
		return false, results
	}
	check(RuleSession, true, "")

	if e.news != nil {
		if ok, reason := e.news.CanOpen(sig.Instrument, now); !check(RuleNews, ok, reason) {
			return false, results
		}
	}

	if e.streak.Blocked(now) {
		losses, until := e.streak.Stats()
		check(RuleLossStreak, false,
			fmt.Sprintf("%d consecutive losses, cooling down until %s", losses, until.Format(time.RFC3339)))
		return false, results
	}
	check(RuleLossStreak, true, "")

	if !check(RuleMaxPositions, len(open) < e.cfg.Risk.MaxOpenTrades,
		fmt.Sprintf("%d positions already open", len(open))) {
		return false, results
	}

	if sig.Direction == domain.Long && sig.RSI >= e.cfg.Indicators.RSIOverbought {
		check(RuleRSI, false, fmt.Sprintf("RSI %.1f overbought", sig.RSI))
		return false, results
	}
	if sig.Direction == domain.Short && sig.RSI <= e.cfg.Indicators.RSIOversold {
		check(RuleRSI, false, fmt.Sprintf("RSI %.1f oversold", sig.RSI))
		return false, results
	}
	check(RuleRSI, true, "")

	htfOK := (sig.Direction == domain.Long) == sig.HTFBullish
	if !check(RuleHTFTrend, htfOK, "higher timeframe trend disagrees") {
		return false, results
	}

	if dup, reason := e.correlation.WouldDuplicate(sig.Instrument, sig.Direction, ExposuresOf(open)); dup {
		check(RuleCorrelation, false, reason)
		return false, results
	}
	check(RuleCorrelation, true, "")

	return true, results
}
