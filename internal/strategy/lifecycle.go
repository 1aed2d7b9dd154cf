// Package strategy manages the lifecycle of persisted trade strategies:
// creation from a reasoned recommendation, the PENDING -> OPEN -> CLOSED
// state machine, and time-based expiry.
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"remora/internal/core"
	store "remora/internal/storage/strategy"
)

// DefaultTTL is how long a strategy stays actionable after creation.
const DefaultTTL = time.Hour

// allowedTransitions is the full state machine. Terminal statuses admit
// nothing; every legal move is listed here.
var allowedTransitions = map[core.StrategyStatus][]core.StrategyStatus{
	core.StatusPending: {core.StatusOpen, core.StatusCancelled, core.StatusExpired},
	core.StatusOpen:    {core.StatusClosed, core.StatusExpired},
}

func canTransition(from, to core.StrategyStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager owns strategy lifecycle rules on top of a Store.
type Manager struct {
	store  store.Store
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager with the default TTL.
func NewManager(s store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  s,
		logger: logger,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

// Create validates the recommendation and persists a new PENDING strategy.
// The expiry is fixed at creation time and never moves afterwards.
func (m *Manager) Create(ctx context.Context, symbol string, rec *core.Recommendation, llmResponse, marketConditions string) (*core.Strategy, error) {
	if !rec.Action.IsTradable() {
		return nil, core.Errorf(core.ErrInvalidAction, "got %q", rec.Action)
	}
	if rec.Confidence < 0 || rec.Confidence > 100 {
		return nil, core.Errorf(core.ErrInvalidConfidence, "got %.1f", rec.Confidence)
	}

	now := m.now().UTC()
	s := &core.Strategy{
		Symbol:           symbol,
		Action:           rec.Action,
		Confidence:       rec.Confidence,
		StopLoss:         rec.StopLoss,
		TakeProfit:       rec.TakeProfit,
		RiskRewardRatio:  rec.RiskRewardRatio,
		Justification:    rec.Justification,
		KeyFactors:       rec.KeyFactors,
		RiskLevel:        rec.RiskLevel,
		Status:           core.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.ttl),
		LLMResponse:      llmResponse,
		MarketConditions: marketConditions,
	}
	if rec.EntryPrice != nil {
		s.EntryPrice = *rec.EntryPrice
	}

	if err := m.store.Create(ctx, s); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	m.logger.Info("strategy created",
		zap.Int64("id", s.ID),
		zap.String("ticket", s.Ticket()),
		zap.String("symbol", s.Symbol),
		zap.String("action", string(s.Action)),
		zap.Float64("confidence", s.Confidence),
		zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

// Get retrieves one strategy by ID.
func (m *Manager) Get(ctx context.Context, id int64) (*core.Strategy, error) {
	return m.store.GetByID(ctx, id)
}

// List retrieves strategies matching the filter.
func (m *Manager) List(ctx context.Context, filter store.ListFilter) ([]core.Strategy, error) {
	return m.store.List(ctx, filter)
}

// UpdateStatus moves a strategy to a new status, enforcing the transition
// table. transactionID is recorded when the target status is OPEN.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, to core.StrategyStatus, transactionID string) error {
	if !to.IsValid() {
		return core.Errorf(core.ErrInvalidStatus, "got %q", to)
	}

	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(current.Status, to) {
		return core.Errorf(core.ErrInvalidState, "cannot move strategy %d from %s to %s", id, current.Status, to)
	}

	upd := store.StatusUpdate{Status: to}
	now := m.now().UTC()
	switch to {
	case core.StatusOpen:
		upd.ExecutedAt = &now
		if transactionID != "" {
			upd.TransactionID = &transactionID
		}
	case core.StatusClosed:
		upd.ClosedAt = &now
	}

	// Conditioned on the status we just read, so a concurrent transition
	// cannot be overwritten.
	ok, err := m.store.UpdateStatusFrom(ctx, id, current.Status, upd)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	if !ok {
		return core.Errorf(core.ErrInvalidState, "strategy %d changed status concurrently", id)
	}

	m.logger.Info("strategy status updated",
		zap.Int64("id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)))
	return nil
}

// MarkOpen records a successful execution: PENDING -> OPEN with the venue
// order ID attached.
func (m *Manager) MarkOpen(ctx context.Context, id int64, transactionID string) error {
	return m.UpdateStatus(ctx, id, core.StatusOpen, transactionID)
}

// Close records position exit: OPEN -> CLOSED.
func (m *Manager) Close(ctx context.Context, id int64) error {
	return m.UpdateStatus(ctx, id, core.StatusClosed, "")
}

// Cancel withdraws a strategy that never executed: PENDING -> CANCELLED.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	return m.UpdateStatus(ctx, id, core.StatusCancelled, "")
}

// ExpireOverdue sweeps every PENDING and OPEN strategy whose expiry has
// passed into EXPIRED and returns how many changed. Safe to call repeatedly.
func (m *Manager) ExpireOverdue(ctx context.Context) (int, error) {
	count, err := m.store.ExpireOverdue(ctx, m.now().UTC())
	if err != nil {
		return 0, core.WrapError(core.ErrStoreFailed, err)
	}
	if count > 0 {
		m.logger.Info("expired overdue strategies", zap.Int("count", count))
	}
	return count, nil
}

// GetActive sweeps expired strategies first, then returns the PENDING
// strategies that remain, newest first. An empty symbol returns every
// symbol. The result never contains a past-due strategy.
func (m *Manager) GetActive(ctx context.Context, symbol string) ([]core.Strategy, error) {
	if _, err := m.ExpireOverdue(ctx); err != nil {
		return nil, err
	}
	return m.store.List(ctx, store.ListFilter{Symbol: symbol, Status: core.StatusPending})
}

// Stats aggregates lifecycle counters across all strategies.
func (m *Manager) Stats(ctx context.Context) (*core.StrategyStats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return stats, nil
}
