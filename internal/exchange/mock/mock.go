// Package mock provides an in-memory exchange client for tests and dry runs.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remora/internal/core"
	"remora/internal/exchange"
)

// MockExchange implements the exchange.Client interface with scriptable
// balances, prices and failures.
type MockExchange struct {
	mu        sync.RWMutex
	balances  map[string]exchange.Balance
	prices    map[string]float64
	positions map[string]exchange.Position
	orders    []exchange.Order
	orderID   int

	placeErr     error
	rejectReason string
	placeCalls   int
	cancelled    []string
	serverSkew   time.Duration
}

// New creates a mock exchange with an empty book and a default USDT balance.
func New() *MockExchange {
	return &MockExchange{
		balances: map[string]exchange.Balance{
			"USDT": {Asset: "USDT", Available: 10000, Total: 10000, UpdatedAt: time.Now()},
		},
		prices:    make(map[string]float64),
		positions: make(map[string]exchange.Position),
		orderID:   1000,
	}
}

// Name returns the venue name.
func (m *MockExchange) Name() string {
	return "mock"
}

// ServerTime returns local time shifted by the configured skew.
func (m *MockExchange) ServerTime(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Add(m.serverSkew), nil
}

// GetBalance returns the scripted balance for the asset, zero if unset.
func (m *MockExchange) GetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.balances[asset]
	if !ok {
		b = exchange.Balance{Asset: asset, UpdatedAt: time.Now()}
	}
	return &b, nil
}

// GetPosition returns the scripted position, nil when none is set.
func (m *MockExchange) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetPrice returns the scripted price for the symbol.
func (m *MockExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.prices[symbol]
	if !ok {
		return 0, core.Errorf(core.ErrNotFound, "no price for %s", symbol)
	}
	return price, nil
}

// PlaceOrder records the order as open and returns it, unless a failure or
// rejection was scripted.
func (m *MockExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.placeCalls++

	if m.placeErr != nil {
		err := m.placeErr
		m.placeErr = nil
		return nil, err
	}
	if m.rejectReason != "" {
		reason := m.rejectReason
		m.rejectReason = ""
		return nil, core.Errorf(core.ErrExchangeRejected, "%s", reason)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.orderID++
	now := time.Now()
	price := req.Price
	order := exchange.Order{
		OrderID:    fmt.Sprintf("ORD%d", m.orderID),
		ClientTag:  req.ClientTag,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		Price:      price,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		Status:     exchange.OrderStatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.orders = append(m.orders, order)
	return &order, nil
}

// CancelOrder marks an open order cancelled.
func (m *MockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.orders {
		if o.OrderID == orderID && o.Symbol == symbol {
			if !o.IsOpen() {
				return core.Errorf(core.ErrInvalidState, "order %s is %s", orderID, o.Status)
			}
			m.orders[i].Status = exchange.OrderStatusCancelled
			m.orders[i].UpdatedAt = time.Now()
			m.cancelled = append(m.cancelled, orderID)
			return nil
		}
	}
	return core.Errorf(core.ErrNotFound, "order %s", orderID)
}

// ListOpenOrders returns open orders for the symbol.
func (m *MockExchange) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []exchange.Order
	for _, o := range m.orders {
		if o.Symbol == symbol && o.IsOpen() {
			result = append(result, o)
		}
	}
	return result, nil
}

// SetBalance scripts the balance for an asset.
func (m *MockExchange) SetBalance(asset string, available, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = exchange.Balance{Asset: asset, Available: available, Total: total, UpdatedAt: time.Now()}
}

// SetPrice scripts the last price for a symbol.
func (m *MockExchange) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetPosition scripts an open position for a symbol.
func (m *MockExchange) SetPosition(pos exchange.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Symbol] = pos
}

// SetServerSkew shifts the mock's server clock relative to local time.
func (m *MockExchange) SetServerSkew(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverSkew = d
}

// FailNextPlace makes the next PlaceOrder return err.
func (m *MockExchange) FailNextPlace(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeErr = err
}

// RejectNextPlace makes the next PlaceOrder fail as a venue rejection.
func (m *MockExchange) RejectNextPlace(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectReason = reason
}

// AddOpenOrder seeds an open order, assigning an ID when absent.
func (m *MockExchange) AddOpenOrder(o exchange.Order) exchange.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.OrderID == "" {
		m.orderID++
		o.OrderID = fmt.Sprintf("ORD%d", m.orderID)
	}
	if o.Status == "" {
		o.Status = exchange.OrderStatusNew
	}
	m.orders = append(m.orders, o)
	return o
}

// PlaceCalls reports how many times PlaceOrder was invoked.
func (m *MockExchange) PlaceCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.placeCalls
}

// Cancelled returns the IDs cancelled so far, in order.
func (m *MockExchange) Cancelled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.cancelled...)
}

// Orders returns a copy of every order the mock has seen.
func (m *MockExchange) Orders() []exchange.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]exchange.Order(nil), m.orders...)
}

var _ exchange.Client = (*MockExchange)(nil)
