package snapshot

import (
	"context"
	"sync"
	"time"

	"remora/internal/core"
)

// MemoryStore is an in-memory snapshot store. It backs tests and dry runs;
// production deployments use the SQLite store.
type MemoryStore struct {
	mu      sync.RWMutex
	records []memoryRecord
	nextID  int64
}

type memoryRecord struct {
	id     int64
	snap   core.IndicatorSnapshot
	signal bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

// Save appends a copy of snap and returns its assigned id.
func (m *MemoryStore) Save(ctx context.Context, snap *core.IndicatorSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.records = append(m.records, memoryRecord{id: m.nextID, snap: cloneSnapshot(snap)})
	return m.nextID, nil
}

// MarkSignal flags the snapshot with the given id.
func (m *MemoryStore) MarkSignal(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].id == id {
			m.records[i].signal = true
			return nil
		}
	}
	return core.ErrNotFound
}

// Recent returns up to n snapshots for symbol, newest first.
func (m *MemoryStore) Recent(ctx context.Context, symbol string, n int) ([]core.IndicatorSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window(symbol, n), nil
}

// Summary aggregates the last points snapshots for symbol.
func (m *MemoryStore) Summary(ctx context.Context, symbol string, points int) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return summarize(m.window(symbol, points)), nil
}

// Events scans the last lookback snapshot pairs for indicator crossings.
func (m *MemoryStore) Events(ctx context.Context, symbol string, lookback int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return detectEvents(m.window(symbol, lookback+1)), nil
}

// Prune deletes snapshots captured before the cutoff.
func (m *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var removed int64
	for _, r := range m.records {
		if r.snap.Time.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// window collects up to n snapshots for symbol, newest first. Callers hold
// the lock.
func (m *MemoryStore) window(symbol string, n int) []core.IndicatorSnapshot {
	if n <= 0 {
		return nil
	}
	var out []core.IndicatorSnapshot
	for i := len(m.records) - 1; i >= 0 && len(out) < n; i-- {
		if m.records[i].snap.Symbol == symbol {
			out = append(out, cloneSnapshot(&m.records[i].snap))
		}
	}
	return out
}

// signalled reports whether the snapshot with the given id carries the
// signal flag. Test hook.
func (m *MemoryStore) signalled(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.id == id {
			return r.signal
		}
	}
	return false
}

// cloneSnapshot returns a deep copy so callers never alias store internals.
func cloneSnapshot(s *core.IndicatorSnapshot) core.IndicatorSnapshot {
	c := *s
	c.RSI = cloneFloat(s.RSI)
	c.MACD = cloneFloat(s.MACD)
	c.MACDSignal = cloneFloat(s.MACDSignal)
	c.MACDHistogram = cloneFloat(s.MACDHistogram)
	c.EMA20 = cloneFloat(s.EMA20)
	c.EMA200 = cloneFloat(s.EMA200)
	c.SMA20 = cloneFloat(s.SMA20)
	c.SMA50 = cloneFloat(s.SMA50)
	c.SMA200 = cloneFloat(s.SMA200)
	c.BollUpper = cloneFloat(s.BollUpper)
	c.BollMiddle = cloneFloat(s.BollMiddle)
	c.BollLower = cloneFloat(s.BollLower)
	c.ADX = cloneFloat(s.ADX)
	c.ATR14 = cloneFloat(s.ATR14)
	c.OBV = cloneFloat(s.OBV)
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
