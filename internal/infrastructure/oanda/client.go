package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"breakout-backend/internal/domain"
)

// APIError is a non-2xx response from the OANDA v3 API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oanda: status %d code %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the OANDA v3 REST API. It implements OrderExecutor,
// PricePort and CandleSource. Idempotent reads retry up to three times with
// backoff; mutating calls are sent exactly once.
type Client struct {
	apiKey     string
	accountID  string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(cfg domain.OandaConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oanda: API key required")
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("oanda: account ID required")
	}
	return &Client{
		apiKey:     cfg.APIKey,
		accountID:  cfg.AccountID,
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
	}, nil
}

// priceString renders a price at the instrument's quote precision: 3
// decimals for JPY pairs, 5 otherwise.
func priceString(instrument string, price float64) string {
	places := int32(5)
	if strings.Contains(instrument, "JPY") {
		places = 3
	}
	return decimal.NewFromFloat(price).Round(places).StringFixed(places)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("oanda: encode request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			var detail struct {
				ErrorCode    string `json:"errorCode"`
				ErrorMessage string `json:"errorMessage"`
			}
			if json.Unmarshal(data, &detail) == nil {
				apiErr.Code = detail.ErrorCode
				apiErr.Message = detail.ErrorMessage
			}
			if apiErr.Message == "" {
				apiErr.Message = string(data)
			}
			// Server errors on reads are worth a retry, client errors are not.
			if method == http.MethodGet && resp.StatusCode >= 500 {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("oanda: decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("oanda: %s %s failed after %d attempts: %w", method, path, attempts, lastErr)
}

// Balance returns the account balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var resp struct {
		Account struct {
			Balance string `json:"balance"`
			NAV     string `json:"NAV"`
		} `json:"account"`
	}
	path := fmt.Sprintf("/v3/accounts/%s/summary", c.accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return 0, err
	}
	balance, err := strconv.ParseFloat(resp.Account.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("oanda: parse balance %q: %w", resp.Account.Balance, err)
	}
	return balance, nil
}

// Quote returns the current bid and ask.
func (c *Client) Quote(ctx context.Context, instrument string) (float64, float64, error) {
	var resp struct {
		Prices []struct {
			Bids []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
		} `json:"prices"`
	}
	path := fmt.Sprintf("/v3/accounts/%s/pricing", c.accountID)
	q := url.Values{"instruments": {instrument}}
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Prices) == 0 || len(resp.Prices[0].Bids) == 0 || len(resp.Prices[0].Asks) == 0 {
		return 0, 0, fmt.Errorf("oanda: no pricing for %s", instrument)
	}
	bid, err := strconv.ParseFloat(resp.Prices[0].Bids[0].Price, 64)
	if err != nil {
		return 0, 0, err
	}
	ask, err := strconv.ParseFloat(resp.Prices[0].Asks[0].Price, 64)
	if err != nil {
		return 0, 0, err
	}
	return bid, ask, nil
}

// Candles fetches recent complete mid candles.
func (c *Client) Candles(ctx context.Context, instrument, granularity string, count int) ([]domain.Candle, error) {
	var resp struct {
		Candles []struct {
			Time     time.Time `json:"time"`
			Complete bool      `json:"complete"`
			Volume   float64   `json:"volume"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}
	path := fmt.Sprintf("/v3/instruments/%s/candles", instrument)
	q := url.Values{
		"granularity": {granularity},
		"count":       {strconv.Itoa(count)},
		"price":       {"M"},
	}
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, rc := range resp.Candles {
		if !rc.Complete {
			continue
		}
		o, err1 := strconv.ParseFloat(rc.Mid.O, 64)
		h, err2 := strconv.ParseFloat(rc.Mid.H, 64)
		l, err3 := strconv.ParseFloat(rc.Mid.L, 64)
		cl, err4 := strconv.ParseFloat(rc.Mid.C, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: rc.Time.UTC(),
			Open:      o, High: h, Low: l, Close: cl,
			Volume: rc.Volume,
		})
	}
	return candles, nil
}

// PlaceMarketOrder submits a fill-or-kill market order with optional stop
// and target. A broker rejection comes back as a value, not an error.
func (c *Client) PlaceMarketOrder(ctx context.Context, instrument string, units int, stopLoss, takeProfit float64) (*domain.OrderResult, error) {
	order := map[string]interface{}{
		"type":         "MARKET",
		"instrument":   instrument,
		"units":        strconv.Itoa(units),
		"timeInForce":  "FOK",
		"positionFill": "DEFAULT",
	}
	if stopLoss != 0 {
		order["stopLossOnFill"] = map[string]string{"price": priceString(instrument, stopLoss)}
	}
	if takeProfit != 0 {
		order["takeProfitOnFill"] = map[string]string{"price": priceString(instrument, takeProfit)}
	}

	var resp struct {
		OrderFillTransaction *struct {
			Price       string `json:"price"`
			TradeOpened *struct {
				TradeID string `json:"tradeID"`
			} `json:"tradeOpened"`
		} `json:"orderFillTransaction"`
		OrderRejectTransaction *struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderRejectTransaction"`
		OrderCancelTransaction *struct {
			Reason string `json:"reason"`
		} `json:"orderCancelTransaction"`
	}

	log.Printf("Placing market order: %d %s", units, instrument)
	path := fmt.Sprintf("/v3/accounts/%s/orders", c.accountID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]interface{}{"order": order}, &resp); err != nil {
		return nil, err
	}

	if resp.OrderRejectTransaction != nil {
		return &domain.OrderResult{Rejected: true, RejectReason: resp.OrderRejectTransaction.RejectReason}, nil
	}
	if resp.OrderFillTransaction == nil || resp.OrderFillTransaction.TradeOpened == nil {
		reason := "order not filled"
		if resp.OrderCancelTransaction != nil {
			reason = resp.OrderCancelTransaction.Reason
		}
		return &domain.OrderResult{Rejected: true, RejectReason: reason}, nil
	}

	price, err := strconv.ParseFloat(resp.OrderFillTransaction.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("oanda: parse fill price: %w", err)
	}
	return &domain.OrderResult{
		TradeID:   resp.OrderFillTransaction.TradeOpened.TradeID,
		FillPrice: price,
	}, nil
}

// ModifyTrade amends dependent orders on an open trade.
func (c *Client) ModifyTrade(ctx context.Context, tradeID string, opts domain.ModifyOptions) error {
	instrument, err := c.tradeInstrument(ctx, tradeID)
	if err != nil {
		return err
	}

	body := map[string]interface{}{}
	if opts.StopLoss != 0 {
		body["stopLoss"] = map[string]string{"price": priceString(instrument, opts.StopLoss)}
	}
	if opts.TakeProfit != 0 {
		body["takeProfit"] = map[string]string{"price": priceString(instrument, opts.TakeProfit)}
	}
	if opts.TrailingStopDistance != 0 {
		body["trailingStopLoss"] = map[string]string{"distance": priceString(instrument, opts.TrailingStopDistance)}
	}
	if len(body) == 0 {
		return nil
	}

	log.Printf("Modifying trade %s: %v", tradeID, body)
	path := fmt.Sprintf("/v3/accounts/%s/trades/%s/orders", c.accountID, tradeID)
	return c.do(ctx, http.MethodPut, path, nil, body, nil)
}

// CloseTrade closes units of a trade; units <= 0 closes everything.
func (c *Client) CloseTrade(ctx context.Context, tradeID string, units float64) (*domain.CloseResult, error) {
	body := map[string]string{"units": "ALL"}
	if units > 0 {
		body["units"] = strconv.Itoa(int(units))
	}

	var resp struct {
		OrderFillTransaction struct {
			Price string `json:"price"`
			PL    string `json:"pl"`
		} `json:"orderFillTransaction"`
	}
	log.Printf("Closing trade %s, units: %s", tradeID, body["units"])
	path := fmt.Sprintf("/v3/accounts/%s/trades/%s/close", c.accountID, tradeID)
	if err := c.do(ctx, http.MethodPut, path, nil, body, &resp); err != nil {
		return nil, err
	}

	price, _ := strconv.ParseFloat(resp.OrderFillTransaction.Price, 64)
	pl, _ := strconv.ParseFloat(resp.OrderFillTransaction.PL, 64)
	return &domain.CloseResult{FillPrice: price, RealizedPL: pl}, nil
}

// OpenTradeIDs lists the broker's open trade ids for reconciliation.
func (c *Client) OpenTradeIDs(ctx context.Context) ([]string, error) {
	trades, err := c.openTrades(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

type openTrade struct {
	ID         string `json:"id"`
	Instrument string `json:"instrument"`
}

func (c *Client) openTrades(ctx context.Context) ([]openTrade, error) {
	var resp struct {
		Trades []openTrade `json:"trades"`
	}
	path := fmt.Sprintf("/v3/accounts/%s/openTrades", c.accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

func (c *Client) tradeInstrument(ctx context.Context, tradeID string) (string, error) {
	trades, err := c.openTrades(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range trades {
		if t.ID == tradeID {
			return t.Instrument, nil
		}
	}
	return "", fmt.Errorf("oanda: trade %s not open", tradeID)
}
