package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"remora/internal/core"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	full := &core.IndicatorSnapshot{
		Symbol:        "BTCUSDT",
		Interval:      "4h",
		Time:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Price:         58500,
		RSI:           core.Float(24),
		MACD:          core.Float(120.5),
		MACDSignal:    core.Float(118.2),
		MACDHistogram: core.Float(2.3),
		EMA20:         core.Float(58000),
		EMA200:        core.Float(52000),
		SMA20:         core.Float(57900),
		SMA50:         core.Float(56500),
		SMA200:        core.Float(51000),
		BollUpper:     core.Float(60000),
		BollMiddle:    core.Float(58000),
		BollLower:     core.Float(56000),
		ADX:           core.Float(31),
		ATR14:         core.Float(1200),
		OBV:           core.Float(1.5e9),
	}
	sparse := &core.IndicatorSnapshot{
		Symbol:   "BTCUSDT",
		Interval: "4h",
		Time:     time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC),
		Price:    58900,
	}

	id1, err := store.Save(ctx, full)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id2, err := store.Save(ctx, sparse)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("expected sequential ids 1, 2, got %d, %d", id1, id2)
	}

	recent, err := store.Recent(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}

	got := recent[1] // oldest of the two
	if got.Symbol != "BTCUSDT" || got.Interval != "4h" {
		t.Errorf("identity fields wrong: %+v", got)
	}
	if !got.Time.Equal(full.Time) {
		t.Errorf("expected time %v, got %v", full.Time, got.Time)
	}
	if got.Price != 58500 {
		t.Errorf("expected price 58500, got %g", got.Price)
	}
	if got.RSI == nil || *got.RSI != 24 {
		t.Errorf("rsi did not round-trip: %v", got.RSI)
	}
	if got.OBV == nil || *got.OBV != 1.5e9 {
		t.Errorf("obv did not round-trip: %v", got.OBV)
	}

	bare := recent[0]
	if bare.RSI != nil || bare.MACDHistogram != nil || bare.SMA50 != nil {
		t.Errorf("missing indicators should come back nil: %+v", bare)
	}
}

func TestSQLiteStore_MarkSignal(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, testSnap("BTCUSDT", 100))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.MarkSignal(ctx, id); err != nil {
		t.Fatalf("mark signal: %v", err)
	}

	var flagged bool
	if err := store.db.QueryRow(`SELECT signal FROM snapshots WHERE id = ?`, id).Scan(&flagged); err != nil {
		t.Fatalf("read signal flag: %v", err)
	}
	if !flagged {
		t.Error("expected signal flag set")
	}

	if err := store.MarkSignal(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSQLiteStore_SummaryAndEvents(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	points := []struct {
		hist float64
		rsi  float64
	}{
		{-1, 25},
		{1, 35},
		{2, 75},
		{-1, 65},
	}
	for i, p := range points {
		s := testSnap("BTCUSDT", 100+float64(i))
		s.Time = s.Time.Add(time.Duration(i) * 4 * time.Hour)
		s.MACDHistogram = core.Float(p.hist)
		s.RSI = core.Float(p.rsi)
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	sum, err := store.Summary(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Points != 4 {
		t.Errorf("expected 4 points, got %d", sum.Points)
	}
	if sum.RSIMin != 25 || sum.RSIMax != 75 {
		t.Errorf("rsi range wrong: min %g max %g", sum.RSIMin, sum.RSIMax)
	}
	if sum.RSIMean != 50 {
		t.Errorf("expected rsi mean 50, got %g", sum.RSIMean)
	}

	events, err := store.Events(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{
		"macd_cross_down@t-0",
		"macd_cross_up@t-2",
		"rsi_out_of_overbought@t-0",
		"rsi_out_of_oversold@t-2",
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("event %d: expected %s, got %s", i, w, events[i])
		}
	}
}

func TestSQLiteStore_SummaryEmptyWindow(t *testing.T) {
	store := newSQLiteStore(t)

	sum, err := store.Summary(context.Background(), "BTCUSDT", 30)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum != nil {
		t.Errorf("expected nil summary for empty window, got %+v", sum)
	}
}

func TestSQLiteStore_SymbolIsolation(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, testSnap("BTCUSDT", 58500)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Save(ctx, testSnap("ETHUSDT", 3100)); err != nil {
		t.Fatalf("save: %v", err)
	}

	recent, err := store.Recent(ctx, "ETHUSDT", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Symbol != "ETHUSDT" {
		t.Errorf("expected only the ETH snapshot, got %+v", recent)
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	old := testSnap("BTCUSDT", 100)
	old.Time = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	fresh := testSnap("BTCUSDT", 101)
	fresh.Time = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, s := range []*core.IndicatorSnapshot{old, fresh} {
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	removed, err := store.Prune(ctx, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned snapshot, got %d", removed)
	}

	recent, err := store.Recent(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Price != 101 {
		t.Errorf("expected only the fresh snapshot to survive, got %+v", recent)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}
