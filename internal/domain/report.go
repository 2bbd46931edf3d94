package domain

// TradeRecord is one closed trade in a backtest report.
type TradeRecord struct {
	ID          int     `json:"id"`
	Instrument  string  `json:"instrument"`
	Direction   string  `json:"direction"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	EntryTime   string  `json:"entry_time"`
	ExitTime    string  `json:"exit_time"`
	ProfitLoss  float64 `json:"profit_loss"`
	ProfitPips  float64 `json:"profit_pips"`
	CloseReason string  `json:"close_reason"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
}

// PairStats is the per-instrument breakdown of a portfolio run.
type PairStats struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	NetProfit float64 `json:"net_profit"`
}

// Report is the compiled result of a backtest run.
type Report struct {
	Pairs     []string `json:"pairs"`
	Strategy  string   `json:"strategy"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`

	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`

	NetProfit    float64 `json:"net_profit"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`

	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	MaxDrawdown    float64 `json:"max_drawdown"`

	AvgWin     float64 `json:"avg_win"`
	AvgLoss    float64 `json:"avg_loss"`
	BestTrade  float64 `json:"best_trade"`
	WorstTrade float64 `json:"worst_trade"`

	SharpeRatio           float64 `json:"sharpe_ratio"`
	MaxConsecutiveWins    int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses  int     `json:"max_consecutive_losses"`
	AvgTradeDurationHours float64 `json:"avg_trade_duration_hours"`

	MonthlyReturns map[string]float64   `json:"monthly_returns"`
	ByPair         map[string]PairStats `json:"by_pair"`
	Rejections     map[string]int       `json:"rejections"`
	EquityCurve    []EquityPoint        `json:"equity_curve"`
	Trades         []TradeRecord        `json:"trades"`
}
