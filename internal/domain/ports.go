package domain

import (
	"context"
	"time"
)

// OrderResult is the outcome of a market order. A broker rejection is a
// value (Rejected + reason), not an error; errors are reserved for transport
// failures.
type OrderResult struct {
	TradeID      string
	FillPrice    float64
	Rejected     bool
	RejectReason string
}

// CloseResult reports the fill of a full or partial close.
type CloseResult struct {
	FillPrice  float64
	RealizedPL float64
}

// ModifyOptions carries optional order amendments; zero fields are left
// untouched at the broker.
type ModifyOptions struct {
	StopLoss             float64
	TakeProfit           float64
	TrailingStopDistance float64
}

// OrderExecutor places and manages broker orders.
type OrderExecutor interface {
	PlaceMarketOrder(ctx context.Context, instrument string, units int, stopLoss, takeProfit float64) (*OrderResult, error)
	ModifyTrade(ctx context.Context, tradeID string, opts ModifyOptions) error
	// CloseTrade closes units of a trade; units <= 0 closes the whole trade.
	CloseTrade(ctx context.Context, tradeID string, units float64) (*CloseResult, error)
	OpenTradeIDs(ctx context.Context) ([]string, error)
	Balance(ctx context.Context) (float64, error)
}

// PricePort supplies current bid/ask quotes.
type PricePort interface {
	Quote(ctx context.Context, instrument string) (bid, ask float64, err error)
}

// CandleSource supplies recent candles for an instrument and granularity.
type CandleSource interface {
	Candles(ctx context.Context, instrument, granularity string, count int) ([]Candle, error)
}

// NewsAdvisor gates trading around scheduled high-impact events. CanOpen
// fails closed when the advisor's data is stale.
type NewsAdvisor interface {
	CanOpen(instrument string, at time.Time) (bool, string)
	ShouldClose(instrument string, at time.Time) (bool, string)
}
