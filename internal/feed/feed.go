// Package feed pulls computed technical-indicator snapshots from the
// external analysis service. Indicator math lives in that service; this
// client only maps its JSON payload onto core types.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"remora/internal/core"
)

// Feed supplies the latest indicator snapshot for a symbol and interval.
type Feed interface {
	Fetch(ctx context.Context, symbol, interval string) (*core.IndicatorSnapshot, error)
}

// HTTPFeed is the REST client for the indicator service.
type HTTPFeed struct {
	client  *http.Client
	baseURL string
}

// NewHTTP creates a feed client against the given service base URL.
func NewHTTP(baseURL string) (*HTTPFeed, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("feed base URL required")
	}
	return &HTTPFeed{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}, nil
}

var _ Feed = (*HTTPFeed)(nil)

// Fetch retrieves the current snapshot for symbol at the given interval
// (Bybit-style minutes, "240" for 4h).
func (f *HTTPFeed) Fetch(ctx context.Context, symbol, interval string) (*core.IndicatorSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	reqURL := fmt.Sprintf("%s/indicators?%s", f.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("fetching indicators: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.Errorf(core.ErrFeedFailed, "indicator service returned status %d", resp.StatusCode)
	}

	var payload indicatorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("decoding response: %w", err))
	}
	if len(payload.Errors) > 0 {
		return nil, core.Errorf(core.ErrFeedFailed, "indicator service error for %s: %v", symbol, payload.Errors)
	}
	if payload.ClosePrice == nil {
		return nil, core.Errorf(core.ErrFeedFailed, "indicator payload for %s missing close_price", symbol)
	}

	return payload.toSnapshot(symbol, interval), nil
}

// indicatorsResponse mirrors the service payload. Indicators the service
// could not compute arrive absent and stay nil.
type indicatorsResponse struct {
	Symbol     string            `json:"symbol"`
	Interval   string            `json:"interval"`
	Timestamp  string            `json:"timestamp"`
	ClosePrice *float64          `json:"close_price"`
	RSI        *float64          `json:"rsi14"`
	MACD       *float64          `json:"macd"`
	MACDSignal *float64          `json:"macd_signal"`
	MACDHist   *float64          `json:"macd_hist"`
	EMA20      *float64          `json:"ema20"`
	EMA200     *float64          `json:"ema200"`
	SMA20      *float64          `json:"sma20"`
	SMA50      *float64          `json:"sma50"`
	SMA200     *float64          `json:"sma200"`
	BBUpper    *float64          `json:"bb_upper"`
	BBMiddle   *float64          `json:"bb_middle"`
	BBLower    *float64          `json:"bb_lower"`
	ADX        *float64          `json:"adx14"`
	ATR14      *float64          `json:"atr14"`
	OBV        *float64          `json:"obv"`
	Errors     map[string]string `json:"errors"`
}

func (r *indicatorsResponse) toSnapshot(symbol, interval string) *core.IndicatorSnapshot {
	capturedAt := time.Now().UTC()
	if r.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			capturedAt = ts.UTC()
		}
	}
	if r.Interval != "" {
		interval = r.Interval
	}

	return &core.IndicatorSnapshot{
		Symbol:        symbol,
		Interval:      interval,
		Time:          capturedAt,
		Price:         *r.ClosePrice,
		RSI:           r.RSI,
		MACD:          r.MACD,
		MACDSignal:    r.MACDSignal,
		MACDHistogram: r.MACDHist,
		EMA20:         r.EMA20,
		EMA200:        r.EMA200,
		SMA20:         r.SMA20,
		SMA50:         r.SMA50,
		SMA200:        r.SMA200,
		BollUpper:     r.BBUpper,
		BollMiddle:    r.BBMiddle,
		BollLower:     r.BBLower,
		ADX:           r.ADX,
		ATR14:         r.ATR14,
		OBV:           r.OBV,
	}
}
