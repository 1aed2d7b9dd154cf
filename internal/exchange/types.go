// Package exchange provides the typed port to the derivatives venue and the
// helpers the execution path depends on: quantity normalization, server time
// synchronization, and the clock-skew retry wrapper.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Exchange-specific validation errors.
var (
	// ErrInvalidSymbol indicates an invalid or empty symbol.
	ErrInvalidSymbol = errors.New("exchange: invalid symbol")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("exchange: invalid quantity")
	// ErrInvalidPrice indicates an invalid price for limit orders.
	ErrInvalidPrice = errors.New("exchange: invalid price for limit order")
)

// Side represents the direction of an order. Values use the venue's native
// capitalization so client order tags stay stable across systems.
type Side string

const (
	// SideBuy represents a buy order.
	SideBuy Side = "Buy"
	// SideSell represents a sell order.
	SideSell Side = "Sell"
)

// OrderType represents the type of order execution.
type OrderType string

const (
	// OrderTypeLimit executes at the specified price or better.
	OrderTypeLimit OrderType = "Limit"
	// OrderTypeMarket executes at the current market price.
	OrderTypeMarket OrderType = "Market"
)

// OrderStatus represents the lifecycle status of an order at the venue.
type OrderStatus string

const (
	// OrderStatusNew indicates the order is live and unfilled.
	OrderStatusNew OrderStatus = "New"
	// OrderStatusPartial indicates the order is partially filled.
	OrderStatusPartial OrderStatus = "PartiallyFilled"
	// OrderStatusPartiallyFilled is an alternate name for OrderStatusPartial,
	// matching the venue's native status string.
	OrderStatusPartiallyFilled = OrderStatusPartial
	// OrderStatusFilled indicates the order is completely filled.
	OrderStatusFilled OrderStatus = "Filled"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "Cancelled"
	// OrderStatusRejected indicates the venue rejected the order.
	OrderStatusRejected OrderStatus = "Rejected"
)

// OrderRequest represents a request to place a new order. Take-profit and
// stop-loss prices ride on the entry order as venue-native attributes
// instead of being placed as separate reduce-only orders.
type OrderRequest struct {
	// Symbol is the contract symbol (e.g., "BTCUSDT").
	Symbol string `json:"symbol"`
	// Side indicates buy or sell.
	Side Side `json:"side"`
	// Type specifies the order execution type.
	Type OrderType `json:"type"`
	// Quantity is the contract quantity in base currency.
	Quantity float64 `json:"quantity"`
	// Price is the limit price (required for Limit orders).
	Price float64 `json:"price,omitempty"`
	// TakeProfit is an optional protective take-profit price.
	TakeProfit *float64 `json:"take_profit,omitempty"`
	// StopLoss is an optional protective stop-loss price.
	StopLoss *float64 `json:"stop_loss,omitempty"`
	// TimeInForce specifies how long the order remains active.
	TimeInForce string `json:"time_in_force,omitempty"`
	// ClientTag is the caller-chosen order identifier used for
	// idempotency and traceability.
	ClientTag string `json:"client_tag,omitempty"`
}

// Validate checks if the order request has valid required fields.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Order represents an order as reported by the venue.
type Order struct {
	// OrderID is the venue-assigned unique identifier.
	OrderID string `json:"order_id"`
	// ClientTag is the caller-chosen identifier if one was provided.
	ClientTag string `json:"client_tag,omitempty"`
	// Symbol is the contract symbol.
	Symbol string `json:"symbol"`
	// Side indicates buy or sell.
	Side Side `json:"side"`
	// Type specifies the order execution type.
	Type OrderType `json:"type"`
	// Quantity is the total order quantity.
	Quantity float64 `json:"quantity"`
	// Price is the limit price for limit orders.
	Price float64 `json:"price,omitempty"`
	// TakeProfit is the attached take-profit price, if any.
	TakeProfit *float64 `json:"take_profit,omitempty"`
	// StopLoss is the attached stop-loss price, if any.
	StopLoss *float64 `json:"stop_loss,omitempty"`
	// Status is the current order status.
	Status OrderStatus `json:"status"`
	// CreatedAt is when the venue accepted the order.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the venue last updated the order.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen returns true if the order is still active at the venue.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartial
}

// Position represents an open derivatives position.
type Position struct {
	// Symbol is the contract symbol.
	Symbol string `json:"symbol"`
	// Side is the position direction.
	Side Side `json:"side"`
	// Size is the position size in base currency (always positive).
	Size float64 `json:"size"`
	// EntryPrice is the average entry price.
	EntryPrice float64 `json:"entry_price"`
	// MarkPrice is the venue mark price.
	MarkPrice float64 `json:"mark_price"`
	// UnrealizedPL is the unrealized profit/loss in quote currency.
	UnrealizedPL float64 `json:"unrealized_pl"`
	// Leverage is the position leverage.
	Leverage float64 `json:"leverage,omitempty"`
	// UpdatedAt is when the position was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance represents account balance for a single asset.
type Balance struct {
	// Asset is the currency code (e.g., "USDT").
	Asset string `json:"asset"`
	// Available is the balance available for new orders.
	Available float64 `json:"available"`
	// Total is the total wallet balance including frozen amounts.
	Total float64 `json:"total"`
	// UpdatedAt is when the balance was fetched.
	UpdatedAt time.Time `json:"updated_at"`
}

// Client defines the venue operations the execution path consumes. All
// response shape-sniffing stays behind this boundary; implementations return
// typed results only.
type Client interface {
	// Name returns the venue identifier (e.g., "bybit").
	Name() string

	// ServerTime returns the venue's current time.
	ServerTime(ctx context.Context) (time.Time, error)

	// GetBalance returns the account balance for one asset.
	GetBalance(ctx context.Context, asset string) (*Balance, error)

	// GetPosition returns the open position for a symbol, or nil when the
	// account holds no position in it.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// GetPrice returns the latest traded price for a symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceOrder submits a new order and returns the accepted order.
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels a live order by venue order id.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// ListOpenOrders returns the live orders for a symbol.
	ListOpenOrders(ctx context.Context, symbol string) ([]Order, error)
}
