package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"remora/internal/core"
)

// MemoryStore is an in-memory strategy store. It backs tests and dry runs;
// production deployments use the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[int64]*core.Strategy
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]*core.Strategy)}
}

var _ Store = (*MemoryStore)(nil)

// Create stores a copy of s and assigns the next ID.
func (m *MemoryStore) Create(ctx context.Context, s *core.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID
	m.items[s.ID] = cloneStrategy(s)
	return nil
}

// GetByID retrieves a strategy by ID.
func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*core.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneStrategy(s), nil
}

// List returns strategies matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]core.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]core.Strategy, 0, len(m.items))
	for _, s := range m.items {
		if m.matches(s, filter) {
			result = append(result, *cloneStrategy(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateStatus applies upd to the strategy unconditionally.
func (m *MemoryStore) UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[id]
	if !ok {
		return core.ErrNotFound
	}
	applyUpdate(s, upd)
	return nil
}

// UpdateStatusFrom applies upd only when the stored status equals from.
func (m *MemoryStore) UpdateStatusFrom(ctx context.Context, id int64, from core.StrategyStatus, upd StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if s.Status != from {
		return false, nil
	}
	applyUpdate(s, upd)
	return true, nil
}

// ExpireOverdue sweeps every active strategy past its expiry into EXPIRED.
func (m *MemoryStore) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, s := range m.items {
		if (s.Status == core.StatusPending || s.Status == core.StatusOpen) && s.IsExpired(now) {
			s.Status = core.StatusExpired
			count++
		}
	}
	return count, nil
}

// Stats aggregates lifecycle counters.
func (m *MemoryStore) Stats(ctx context.Context) (*core.StrategyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &core.StrategyStats{}
	var confidenceSum float64
	for _, s := range m.items {
		stats.Total++
		confidenceSum += s.Confidence
		switch s.Status {
		case core.StatusPending:
			stats.Pending++
		case core.StatusOpen:
			stats.Open++
		case core.StatusClosed:
			stats.Closed++
		case core.StatusCancelled:
			stats.Cancelled++
		case core.StatusExpired:
			stats.Expired++
		}
		if s.Executed {
			stats.Executed++
		}
		switch s.Action {
		case core.ActionLong:
			stats.Long++
		case core.ActionShort:
			stats.Short++
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Total)
	}
	if stats.Executed > 0 {
		stats.SuccessRate = float64(stats.Closed) / float64(stats.Executed) * 100
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) matches(s *core.Strategy, filter ListFilter) bool {
	if filter.Symbol != "" && s.Symbol != filter.Symbol {
		return false
	}
	if filter.Status != "" && s.Status != filter.Status {
		return false
	}
	if filter.Action != "" && s.Action != filter.Action {
		return false
	}
	return true
}

func applyUpdate(s *core.Strategy, upd StatusUpdate) {
	s.Status = upd.Status
	if upd.TransactionID != nil {
		s.TransactionID = *upd.TransactionID
	}
	if upd.ExecutedAt != nil {
		t := *upd.ExecutedAt
		s.ExecutedAt = &t
		s.Executed = true
	}
	if upd.ClosedAt != nil {
		t := *upd.ClosedAt
		s.ClosedAt = &t
	}
}

// cloneStrategy returns a deep copy so callers never alias store internals.
func cloneStrategy(s *core.Strategy) *core.Strategy {
	c := *s
	if s.StopLoss != nil {
		v := *s.StopLoss
		c.StopLoss = &v
	}
	if s.TakeProfit != nil {
		v := *s.TakeProfit
		c.TakeProfit = &v
	}
	if s.RiskRewardRatio != nil {
		v := *s.RiskRewardRatio
		c.RiskRewardRatio = &v
	}
	if s.KeyFactors != nil {
		c.KeyFactors = append([]string(nil), s.KeyFactors...)
	}
	if s.ExecutedAt != nil {
		t := *s.ExecutedAt
		c.ExecutedAt = &t
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
