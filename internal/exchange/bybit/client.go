// Package bybit implements the exchange client against the Bybit V5 REST API
// for USDT-settled linear contracts.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"remora/internal/core"
	"remora/internal/exchange"
)

const (
	mainnetURL = "https://api.bybit.com"
	testnetURL = "https://api-testnet.bybit.com"

	defaultRecvWindow = 5000
	defaultCategory   = "linear"

	// retCodeInvalidTimestamp is Bybit's recv_window violation.
	retCodeInvalidTimestamp = 10002
)

// Config holds Bybit credentials and connection settings.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	Category   string
}

// Client talks to the Bybit V5 REST API. Signed calls run behind the clock
// skew guard, so a recv_window rejection triggers a resync and a retry.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *exchange.TimeSync
	guard      *exchange.Guard
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client against mainnet or testnet per cfg.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	base := mainnetURL
	if cfg.Testnet {
		base = testnetURL
	}
	return NewWithBaseURL(cfg, base, logger)
}

// NewWithBaseURL creates a client against a specific base URL. Tests point
// this at an httptest server.
func NewWithBaseURL(cfg Config, baseURL string, logger *zap.Logger) *Client {
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = defaultRecvWindow
	}
	if cfg.Category == "" {
		cfg.Category = defaultCategory
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	c.timeSync = exchange.NewTimeSync(c.ServerTime, logger)
	c.guard = exchange.NewGuard(c.timeSync, logger)
	// Bybit allows 10 req/s per UID on most trade endpoints.
	c.limiter = rate.NewLimiter(rate.Limit(10), 20)
	return c
}

// Name returns the venue name.
func (c *Client) Name() string {
	return "bybit"
}

// SyncTime refreshes the local clock offset against the venue.
func (c *Client) SyncTime(ctx context.Context) error {
	return c.timeSync.Sync(ctx)
}

// ServerTime fetches the venue clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.public(ctx, "/v5/market/time", nil)
	if err != nil {
		return time.Time{}, err
	}

	var out struct {
		TimeSecond string `json:"timeSecond"`
		TimeNano   string `json:"timeNano"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}

	if nano, err := strconv.ParseInt(out.TimeNano, 10, 64); err == nil && nano > 0 {
		return time.Unix(0, nano), nil
	}
	sec, err := strconv.ParseInt(out.TimeSecond, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server time %q: %w", out.TimeSecond, err)
	}
	return time.Unix(sec, 0), nil
}

// GetPrice returns the last traded price for the symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("category", c.cfg.Category)
	query.Set("symbol", symbol)

	body, err := c.public(ctx, "/v5/market/tickers", query)
	if err != nil {
		return 0, err
	}

	var out struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode tickers: %w", err)
	}
	if len(out.List) == 0 {
		return 0, core.Errorf(core.ErrNotFound, "no ticker for %s", symbol)
	}
	return parseFloat(out.List[0].LastPrice), nil
}

// GetBalance returns the unified account balance for one asset.
func (c *Client) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return exchange.Call(ctx, c.guard, "get balance", func(ctx context.Context) (*exchange.Balance, error) {
		query := url.Values{}
		query.Set("accountType", "UNIFIED")
		query.Set("coin", asset)

		body, err := c.signedGet(ctx, "/v5/account/wallet-balance", query)
		if err != nil {
			return nil, err
		}

		var out struct {
			List []struct {
				TotalAvailableBalance string `json:"totalAvailableBalance"`
				TotalWalletBalance    string `json:"totalWalletBalance"`
				Coin                  []struct {
					Coin                string `json:"coin"`
					WalletBalance       string `json:"walletBalance"`
					AvailableToWithdraw string `json:"availableToWithdraw"`
				} `json:"coin"`
			} `json:"list"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode wallet balance: %w", err)
		}

		balance := &exchange.Balance{Asset: asset, UpdatedAt: time.Now()}
		if len(out.List) == 0 {
			return balance, nil
		}

		account := out.List[0]
		balance.Available = parseFloat(account.TotalAvailableBalance)
		balance.Total = parseFloat(account.TotalWalletBalance)

		// Isolated-margin accounts leave the account-level fields empty;
		// fall back to the per-coin row.
		for _, coin := range account.Coin {
			if coin.Coin != asset {
				continue
			}
			if balance.Total == 0 {
				balance.Total = parseFloat(coin.WalletBalance)
			}
			if balance.Available == 0 {
				if v := parseFloat(coin.AvailableToWithdraw); v > 0 {
					balance.Available = v
				} else {
					balance.Available = parseFloat(coin.WalletBalance)
				}
			}
			break
		}
		return balance, nil
	})
}

// GetPosition returns the open position for the symbol, nil when flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	return exchange.Call(ctx, c.guard, "get position", func(ctx context.Context) (*exchange.Position, error) {
		query := url.Values{}
		query.Set("category", c.cfg.Category)
		query.Set("symbol", symbol)

		body, err := c.signedGet(ctx, "/v5/position/list", query)
		if err != nil {
			return nil, err
		}

		var out struct {
			List []positionData `json:"list"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode positions: %w", err)
		}

		for _, p := range out.List {
			size := parseFloat(p.Size)
			if size == 0 {
				continue
			}
			return &exchange.Position{
				Symbol:       p.Symbol,
				Side:         exchange.Side(p.Side),
				Size:         size,
				EntryPrice:   parseFloat(p.AvgPrice),
				MarkPrice:    parseFloat(p.MarkPrice),
				UnrealizedPL: parseFloat(p.UnrealisedPnl),
				Leverage:     parseFloat(p.Leverage),
				UpdatedAt:    parseMillis(p.UpdatedTime),
			}, nil
		}
		return nil, nil
	})
}

// PlaceOrder submits one order, optionally with attached take profit and
// stop loss levels.
func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return exchange.Call(ctx, c.guard, "place order", func(ctx context.Context) (*exchange.Order, error) {
		payload := createOrderRequest{
			Category:    c.cfg.Category,
			Symbol:      req.Symbol,
			Side:        string(req.Side),
			OrderType:   string(req.Type),
			Qty:         formatFloat(req.Quantity),
			TimeInForce: req.TimeInForce,
			OrderLinkID: req.ClientTag,
		}
		if req.Price != 0 {
			payload.Price = formatFloat(req.Price)
		}
		if req.TakeProfit != nil {
			payload.TakeProfit = formatFloat(*req.TakeProfit)
		}
		if req.StopLoss != nil {
			payload.StopLoss = formatFloat(*req.StopLoss)
		}

		body, err := c.signedPost(ctx, "/v5/order/create", payload)
		if err != nil {
			return nil, err
		}

		var out struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode create order: %w", err)
		}

		now := time.Now()
		order := &exchange.Order{
			OrderID:    out.OrderID,
			ClientTag:  out.OrderLinkID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Type:       req.Type,
			Quantity:   req.Quantity,
			TakeProfit: req.TakeProfit,
			StopLoss:   req.StopLoss,
			Status:     exchange.OrderStatusNew,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if req.Price != 0 {
			order.Price = req.Price
		}
		return order, nil
	})
}

// CancelOrder cancels one order by venue ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return c.guard.Do(ctx, "cancel order", func(ctx context.Context) error {
		payload := struct {
			Category string `json:"category"`
			Symbol   string `json:"symbol"`
			OrderID  string `json:"orderId"`
		}{c.cfg.Category, symbol, orderID}

		_, err := c.signedPost(ctx, "/v5/order/cancel", payload)
		return err
	})
}

// ListOpenOrders returns the symbol's live orders.
func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	return exchange.Call(ctx, c.guard, "list open orders", func(ctx context.Context) ([]exchange.Order, error) {
		query := url.Values{}
		query.Set("category", c.cfg.Category)
		query.Set("symbol", symbol)
		query.Set("openOnly", "0")

		body, err := c.signedGet(ctx, "/v5/order/realtime", query)
		if err != nil {
			return nil, err
		}

		var out struct {
			List []orderData `json:"list"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode open orders: %w", err)
		}

		orders := make([]exchange.Order, 0, len(out.List))
		for _, o := range out.List {
			orders = append(orders, o.toOrder())
		}
		return orders, nil
	})
}

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	StopLoss    string `json:"stopLoss,omitempty"`
}

type positionData struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	Leverage      string `json:"leverage"`
	UpdatedTime   string `json:"updatedTime"`
}

type orderData struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	TakeProfit  string `json:"takeProfit"`
	StopLoss    string `json:"stopLoss"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

func (o orderData) toOrder() exchange.Order {
	order := exchange.Order{
		OrderID:   o.OrderID,
		ClientTag: o.OrderLinkID,
		Symbol:    o.Symbol,
		Side:      exchange.Side(o.Side),
		Type:      exchange.OrderType(o.OrderType),
		Quantity:  parseFloat(o.Qty),
		Price:     parseFloat(o.Price),
		Status:    mapOrderStatus(o.OrderStatus),
		CreatedAt: parseMillis(o.CreatedTime),
		UpdatedAt: parseMillis(o.UpdatedTime),
	}
	if v := parseFloat(o.TakeProfit); v > 0 {
		order.TakeProfit = &v
	}
	if v := parseFloat(o.StopLoss); v > 0 {
		order.StopLoss = &v
	}
	return order
}

func mapOrderStatus(s string) exchange.OrderStatus {
	switch s {
	case "New", "Created", "Untriggered":
		return exchange.OrderStatusNew
	case "PartiallyFilled":
		return exchange.OrderStatusPartiallyFilled
	case "Filled":
		return exchange.OrderStatusFilled
	case "Cancelled", "Deactivated":
		return exchange.OrderStatusCancelled
	case "Rejected":
		return exchange.OrderStatusRejected
	}
	return exchange.OrderStatus(s)
}

// public performs an unsigned GET.
func (c *Client) public(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

// signedGet performs a GET with V5 authentication headers. The signature
// covers timestamp, key, recv window and the encoded query string.
func (c *Client) signedGet(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	encoded := query.Encode()
	endpoint := c.baseURL + path
	if encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, encoded)
	return c.send(req)
}

// signedPost performs a JSON POST with V5 authentication headers. The
// signature covers the raw body.
func (c *Client) signedPost(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, string(body))
	return c.send(req)
}

func (c *Client) authorize(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(c.timeSync.NowMilli(), 10)
	recvWindow := strconv.FormatInt(c.cfg.RecvWindow, 10)

	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", sign(timestamp+c.cfg.APIKey+recvWindow+payload, c.cfg.APISecret))
}

// send runs the request through the rate limiter and unwraps the V5
// response envelope.
func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrTransientNetwork, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, core.WrapError(core.ErrTransientNetwork, err)
	}
	if res.StatusCode >= 300 {
		return nil, core.Errorf(core.ErrTransientNetwork, "%s %s status %d: %s",
			req.Method, req.URL.Path, res.StatusCode, string(body))
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		if envelope.RetCode == retCodeInvalidTimestamp {
			return nil, core.Errorf(core.ErrClockSkew, "retCode %d: %s", envelope.RetCode, envelope.RetMsg)
		}
		return nil, core.Errorf(core.ErrExchangeRejected, "retCode %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return envelope.Result, nil
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

var _ exchange.Client = (*Client)(nil)
