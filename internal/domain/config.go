package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// PairCorrelation is a static correlation coefficient between two instruments.
type PairCorrelation struct {
	A           string
	B           string
	Coefficient float64
}

// PairsConfig lists tradable instruments and their known correlations.
type PairsConfig struct {
	AllowedPairs         []string
	PositiveCorrelations []PairCorrelation
	NegativeCorrelations []PairCorrelation
}

// RiskConfig holds sizing, stop and loss-streak parameters.
type RiskConfig struct {
	Leverage             int
	RiskPerTradePercent  float64
	UseATRStop           bool
	FixedStopPips        float64
	ATRMultiplier        float64
	ATRPeriod            int
	RiskRewardRatio      float64
	PartialClosePercent  float64
	TrailingStopPips     float64
	MaxOpenTrades        int
	MaxConsecutiveLosses int
	CooldownHours        float64
}

// HoursConfig holds session-open times (UTC hours) and weekend days.
type HoursConfig struct {
	SessionOpens     map[string]int
	OpenAvoidMinutes int
	WeekendDays      []time.Weekday
}

// NewsConfig holds high-impact news windows in minutes.
type NewsConfig struct {
	CloseBeforeMinutes  int
	AvoidAfterMinutes   int
	MonitoredCurrencies []string
}

// IndicatorConfig holds RSI, Supertrend and correlation parameters.
type IndicatorConfig struct {
	RSIPeriod            int
	RSIOversold          float64
	RSIOverbought        float64
	CorrelationThreshold float64
	SupertrendATRPeriod  int
	SupertrendMultiplier float64
	BreakoutWindowBars   int
}

// BacktestConfig holds simulated cost parameters.
type BacktestConfig struct {
	SpreadPips        map[string]float64
	SlippagePips      float64
	InitialBalance    float64
	EquitySampleEvery int
}

// OandaConfig holds broker credentials and endpoints, loaded from env.
type OandaConfig struct {
	APIKey      string
	AccountID   string
	UsePractice bool
	PracticeURL string
	LiveURL     string
}

// BaseURL returns the endpoint matching the practice flag.
func (o OandaConfig) BaseURL() string {
	if o.UsePractice {
		return o.PracticeURL
	}
	return o.LiveURL
}

// Config is the master configuration for both backtest and live modes.
type Config struct {
	Pairs      PairsConfig
	Risk       RiskConfig
	Hours      HoursConfig
	News       NewsConfig
	Indicators IndicatorConfig
	Backtest   BacktestConfig
	Oanda      OandaConfig

	Strategy       StrategyKind
	PaperTrading   bool
	VirtualBalance float64
}

// DefaultConfig returns the baseline parameter set.
func DefaultConfig() *Config {
	return &Config{
		Pairs: PairsConfig{
			AllowedPairs: []string{
				"EUR_USD", "USD_JPY", "GBP_USD", "AUD_USD",
				"NZD_USD", "USD_CHF", "USD_CAD",
			},
			PositiveCorrelations: []PairCorrelation{
				{"EUR_USD", "GBP_USD", 0.91},
				{"EUR_USD", "AUD_USD", 0.79},
				{"GBP_USD", "AUD_USD", 0.74},
				{"GBP_USD", "NZD_USD", 0.73},
				{"AUD_USD", "NZD_USD", 0.85},
				{"USD_CHF", "USD_CAD", 0.81},
			},
			NegativeCorrelations: []PairCorrelation{
				{"EUR_USD", "USD_CHF", -0.99},
				{"EUR_USD", "USD_CAD", -0.82},
				{"GBP_USD", "USD_CHF", -0.88},
				{"GBP_USD", "USD_CAD", -0.89},
				{"AUD_USD", "USD_CHF", -0.79},
				{"NZD_USD", "USD_CAD", -0.80},
			},
		},
		Risk: RiskConfig{
			Leverage:             10,
			RiskPerTradePercent:  1.0,
			UseATRStop:           true,
			FixedStopPips:        5.0,
			ATRMultiplier:        1.5,
			ATRPeriod:            14,
			RiskRewardRatio:      1.9,
			PartialClosePercent:  50.0,
			TrailingStopPips:     2.0,
			MaxOpenTrades:        3,
			MaxConsecutiveLosses: 4,
			CooldownHours:        6.0,
		},
		Hours: HoursConfig{
			SessionOpens: map[string]int{
				"Sydney":   21,
				"Tokyo":    0,
				"London":   7,
				"New York": 12,
			},
			OpenAvoidMinutes: 15,
			WeekendDays:      []time.Weekday{time.Saturday, time.Sunday},
		},
		News: NewsConfig{
			CloseBeforeMinutes: 30,
			AvoidAfterMinutes:  30,
			MonitoredCurrencies: []string{
				"USD", "EUR", "GBP", "JPY", "AUD", "NZD", "CHF", "CAD",
			},
		},
		Indicators: IndicatorConfig{
			RSIPeriod:            14,
			RSIOversold:          30,
			RSIOverbought:        70,
			CorrelationThreshold: 0.70,
			SupertrendATRPeriod:  10,
			SupertrendMultiplier: 3.0,
			BreakoutWindowBars:   5,
		},
		Backtest: BacktestConfig{
			SpreadPips: map[string]float64{
				"EUR_USD": 0.8,
				"USD_JPY": 0.9,
				"GBP_USD": 1.2,
				"AUD_USD": 1.0,
				"NZD_USD": 1.5,
				"USD_CHF": 1.2,
				"USD_CAD": 1.3,
			},
			SlippagePips:      0.3,
			InitialBalance:    10000.0,
			EquitySampleEvery: 5,
		},
		Oanda: OandaConfig{
			PracticeURL: "https://api-fxpractice.oanda.com",
			LiveURL:     "https://api-fxtrade.oanda.com",
			UsePractice: true,
		},
		Strategy:       StrategyStandard,
		VirtualBalance: 10000.0,
	}
}

// ConservativeConfig lowers risk and tightens the loss-streak guard.
func ConservativeConfig() *Config {
	cfg := DefaultConfig()
	cfg.Risk.RiskPerTradePercent = 0.5
	cfg.Risk.RiskRewardRatio = 2.0
	cfg.Risk.MaxOpenTrades = 2
	cfg.Risk.MaxConsecutiveLosses = 3
	cfg.Risk.CooldownHours = 8.0
	return cfg
}

// AggressiveConfig raises risk and loosens the loss-streak guard.
func AggressiveConfig() *Config {
	cfg := DefaultConfig()
	cfg.Risk.RiskPerTradePercent = 2.0
	cfg.Risk.RiskRewardRatio = 1.5
	cfg.Risk.MaxOpenTrades = 4
	cfg.Risk.MaxConsecutiveLosses = 5
	cfg.Risk.CooldownHours = 4.0
	return cfg
}

// PresetConfig returns a named preset, defaulting to the baseline.
func PresetConfig(name string) *Config {
	switch name {
	case "conservative":
		return ConservativeConfig()
	case "aggressive":
		return AggressiveConfig()
	default:
		return DefaultConfig()
	}
}

// PipSize returns the pip size for an instrument. JPY-quoted pairs use 0.01,
// everything else 0.0001.
func PipSize(instrument string) float64 {
	if len(instrument) >= 3 && instrument[len(instrument)-3:] == "JPY" {
		return 0.01
	}
	return 0.0001
}

// SpreadPips returns the simulated spread for an instrument, with a 1 pip
// fallback for unknown pairs.
func (c *Config) SpreadPips(instrument string) float64 {
	if s, ok := c.Backtest.SpreadPips[instrument]; ok {
		return s
	}
	return 1.0
}

// CooldownDuration converts the configured cooldown hours to a duration.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.Risk.CooldownHours * float64(time.Hour))
}

// PairAllowed reports whether trading the instrument is permitted.
func (c *Config) PairAllowed(instrument string) bool {
	for _, p := range c.Pairs.AllowedPairs {
		if p == instrument {
			return true
		}
	}
	return false
}

// LoadEnv fills broker credentials and flags from the environment.
func (c *Config) LoadEnv() {
	if v := os.Getenv("OANDA_API_KEY"); v != "" {
		c.Oanda.APIKey = v
	}
	if v := os.Getenv("OANDA_ACCOUNT_ID"); v != "" {
		c.Oanda.AccountID = v
	}
	if v := os.Getenv("OANDA_LIVE"); v == "true" || v == "1" {
		c.Oanda.UsePractice = false
	}
	if v := os.Getenv("PAPER_TRADING"); v == "true" || v == "1" {
		c.PaperTrading = true
	}
	if v := os.Getenv("STRATEGY"); v != "" {
		if s, ok := ParseStrategy(v); ok {
			c.Strategy = s
		}
	}
	if v := os.Getenv("RISK_PER_TRADE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Risk.RiskPerTradePercent = f
		}
	}
}

// Validate fails fast on a configuration the live system cannot run with.
// Backtest-only runs pass withCredentials=false to skip the broker checks.
func (c *Config) Validate(withCredentials bool) error {
	if _, ok := ParseStrategy(string(c.Strategy)); !ok {
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}
	if c.Risk.RiskPerTradePercent <= 0 || c.Risk.RiskPerTradePercent > 100 {
		return fmt.Errorf("config: risk per trade %.2f%% out of range", c.Risk.RiskPerTradePercent)
	}
	if c.Risk.MaxOpenTrades < 1 {
		return fmt.Errorf("config: max open trades must be positive")
	}
	if c.Indicators.RSIPeriod < 2 {
		return fmt.Errorf("config: rsi period %d too small", c.Indicators.RSIPeriod)
	}
	if len(c.Pairs.AllowedPairs) == 0 {
		return fmt.Errorf("config: no allowed pairs")
	}
	if withCredentials && !c.PaperTrading {
		if c.Oanda.APIKey == "" {
			return fmt.Errorf("config: OANDA_API_KEY not set")
		}
		if c.Oanda.AccountID == "" {
			return fmt.Errorf("config: OANDA_ACCOUNT_ID not set")
		}
	}
	return nil
}
