// Package execution turns validated strategies into venue orders: it checks
// preconditions and balance, clears stale tagged orders, and places one limit
// order with the protective levels attached.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"remora/internal/core"
	"remora/internal/exchange"
)

// Config holds execution settings.
type Config struct {
	// DefaultOrderUSDT is the stake used when the caller passes no amount.
	DefaultOrderUSDT float64
	// TimeInForce applies to every placed order.
	TimeInForce string
	// QuoteAsset is the settlement asset checked for balance.
	QuoteAsset string
}

// DefaultConfig returns the stock execution settings.
func DefaultConfig() Config {
	return Config{
		DefaultOrderUSDT: 50,
		TimeInForce:      "GTC",
		QuoteAsset:       "USDT",
	}
}

// StrategyGetter loads strategies for execution.
type StrategyGetter interface {
	Get(ctx context.Context, id int64) (*core.Strategy, error)
}

// Engine executes strategies against an exchange client.
type Engine struct {
	config     Config
	client     exchange.Client
	strategies StrategyGetter
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(config Config, client exchange.Client, strategies StrategyGetter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:     config,
		client:     client,
		strategies: strategies,
		logger:     logger,
		now:        time.Now,
	}
}

// Execute places the order for one PENDING, unexpired strategy. usdtAmount
// zero means the configured default stake. A venue rejection comes back as a
// result with Success=false and a nil error; precondition and transport
// failures come back as errors. On success the caller is expected to move
// the strategy to OPEN with the returned order ID.
func (e *Engine) Execute(ctx context.Context, strategyID int64, usdtAmount float64) (*core.ExecutionResult, error) {
	s, err := e.strategies.Get(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if s.Status != core.StatusPending {
		return nil, core.Errorf(core.ErrInvalidState, "strategy %d is %s, not PENDING", strategyID, s.Status)
	}
	if s.IsExpired(e.now()) {
		return nil, core.Errorf(core.ErrExpired, "strategy %d expired at %s", strategyID, s.ExpiresAt.Format(time.RFC3339))
	}

	side := exchange.SideBuy
	if s.Action == core.ActionShort {
		side = exchange.SideSell
	}

	if usdtAmount == 0 {
		usdtAmount = e.config.DefaultOrderUSDT
	}

	// The stored entry price is the limit price; the live ticker fills in
	// when the recommendation left it unset.
	price := s.EntryPrice
	if price <= 0 {
		price, err = e.client.GetPrice(ctx, s.Symbol)
		if err != nil {
			return nil, fmt.Errorf("get price for %s: %w", s.Symbol, err)
		}
	}

	quantity, err := exchange.NormalizeQuantity(s.Symbol, price, usdtAmount)
	if err != nil {
		return nil, err
	}

	balance, err := e.client.GetBalance(ctx, e.config.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("get %s balance: %w", e.config.QuoteAsset, err)
	}
	if balance.Available < usdtAmount {
		return nil, core.Errorf(core.ErrInsufficientBalance,
			"need %.2f %s, available %.2f", usdtAmount, e.config.QuoteAsset, balance.Available)
	}

	baseTag := fmt.Sprintf("%s_%s_%s", s.Ticket(), s.Symbol, side)
	e.cancelTagged(ctx, s.Symbol, baseTag)

	req := exchange.OrderRequest{
		Symbol:      s.Symbol,
		Side:        side,
		Type:        exchange.OrderTypeLimit,
		Quantity:    quantity,
		Price:       price,
		TakeProfit:  s.TakeProfit,
		StopLoss:    s.StopLoss,
		TimeInForce: e.config.TimeInForce,
		ClientTag:   fmt.Sprintf("%s_%d", baseTag, e.now().UnixMilli()),
	}

	order, err := e.client.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, core.ErrExchangeRejected) {
			e.logger.Warn("order rejected by venue",
				zap.String("ticket", s.Ticket()),
				zap.String("symbol", s.Symbol),
				zap.Error(err))
			return &core.ExecutionResult{
				Success:    false,
				Ticket:     s.Ticket(),
				Symbol:     s.Symbol,
				Side:       string(side),
				Quantity:   quantity,
				EntryPrice: price,
				TakeProfit: s.TakeProfit,
				StopLoss:   s.StopLoss,
				Error:      err.Error(),
			}, nil
		}
		return nil, fmt.Errorf("place order for %s: %w", s.Ticket(), err)
	}

	e.logger.Info("order placed",
		zap.String("ticket", s.Ticket()),
		zap.String("symbol", s.Symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.String("order_id", order.OrderID))

	return &core.ExecutionResult{
		Success:    true,
		Ticket:     s.Ticket(),
		Symbol:     s.Symbol,
		Side:       string(side),
		Quantity:   quantity,
		OrderID:    order.OrderID,
		EntryPrice: price,
		TakeProfit: s.TakeProfit,
		StopLoss:   s.StopLoss,
		Message:    fmt.Sprintf("limit order placed: %s %g %s @ %g", side, quantity, s.Symbol, price),
	}, nil
}

// cancelTagged cancels open orders carrying the strategy's tag so a retry
// never stacks a second order on top of a live one. Failures here are logged
// and do not abort the execution.
func (e *Engine) cancelTagged(ctx context.Context, symbol, baseTag string) {
	open, err := e.client.ListOpenOrders(ctx, symbol)
	if err != nil {
		e.logger.Warn("list open orders failed, skipping stale-order cleanup",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	for _, o := range open {
		if !strings.HasPrefix(o.ClientTag, baseTag) {
			continue
		}
		if err := e.client.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			e.logger.Warn("cancel stale order failed",
				zap.String("order_id", o.OrderID),
				zap.String("tag", o.ClientTag),
				zap.Error(err))
			continue
		}
		e.logger.Info("cancelled stale order",
			zap.String("order_id", o.OrderID),
			zap.String("tag", o.ClientTag))
	}
}
