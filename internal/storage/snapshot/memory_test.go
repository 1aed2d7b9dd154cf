package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"remora/internal/core"
)

func testSnap(symbol string, price float64) *core.IndicatorSnapshot {
	return &core.IndicatorSnapshot{
		Symbol:   symbol,
		Interval: "4h",
		Time:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Price:    price,
	}
}

func TestMemoryStore_SaveAndRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, price := range []float64{100, 101, 102} {
		s := testSnap("BTCUSDT", price)
		s.Time = s.Time.Add(time.Duration(i) * 4 * time.Hour)
		id, err := store.Save(ctx, s)
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("expected id %d, got %d", i+1, id)
		}
	}
	if _, err := store.Save(ctx, testSnap("ETHUSDT", 3000)); err != nil {
		t.Fatalf("save: %v", err)
	}

	recent, err := store.Recent(ctx, "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}
	if recent[0].Price != 102 || recent[1].Price != 101 {
		t.Errorf("expected newest first (102, 101), got (%g, %g)", recent[0].Price, recent[1].Price)
	}
	if recent[0].Symbol != "BTCUSDT" {
		t.Errorf("unexpected symbol %s", recent[0].Symbol)
	}
}

func TestMemoryStore_RecentReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testSnap("BTCUSDT", 100)
	s.RSI = core.Float(40)
	if _, err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	recent, err := store.Recent(ctx, "BTCUSDT", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	*recent[0].RSI = 99

	again, err := store.Recent(ctx, "BTCUSDT", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if *again[0].RSI != 40 {
		t.Errorf("store state leaked through returned snapshot: rsi %g", *again[0].RSI)
	}
}

func TestMemoryStore_MarkSignal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Save(ctx, testSnap("BTCUSDT", 100))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if store.signalled(id) {
		t.Error("fresh snapshot should not carry the signal flag")
	}
	if err := store.MarkSignal(ctx, id); err != nil {
		t.Fatalf("mark signal: %v", err)
	}
	if !store.signalled(id) {
		t.Error("expected signal flag after MarkSignal")
	}

	if err := store.MarkSignal(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestMemoryStore_Summary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	p1 := testSnap("BTCUSDT", 105)
	p1.RSI = core.Float(40)
	p1.MACDHistogram = core.Float(-0.5)
	p1.BollUpper, p1.BollMiddle, p1.BollLower = core.Float(110), core.Float(100), core.Float(90)
	p1.SMA50 = core.Float(100)

	p2 := testSnap("BTCUSDT", 190)
	p2.RSI = core.Float(60)
	p2.MACDHistogram = core.Float(1.5)
	p2.BollUpper, p2.BollMiddle, p2.BollLower = core.Float(220), core.Float(200), core.Float(180)
	p2.SMA50 = core.Float(200)

	sparse := testSnap("BTCUSDT", 100)

	for _, s := range []*core.IndicatorSnapshot{p1, p2, sparse} {
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	sum, err := store.Summary(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum == nil {
		t.Fatal("expected a summary")
	}
	if sum.Points != 3 {
		t.Errorf("expected 3 points, got %d", sum.Points)
	}
	if sum.RSIMin != 40 || sum.RSIMax != 60 || sum.RSIMean != 50 {
		t.Errorf("rsi aggregates wrong: min %g max %g mean %g", sum.RSIMin, sum.RSIMax, sum.RSIMean)
	}
	if sum.MACDHistMean != 0.5 {
		t.Errorf("expected macd hist mean 0.5, got %g", sum.MACDHistMean)
	}
	if diff := sum.BollWidthMean - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected bollinger width mean 0.2, got %g", sum.BollWidthMean)
	}
	if diff := sum.DistSMA50Mean - 0.05; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected sma distance mean 0.05, got %g", sum.DistSMA50Mean)
	}
}

func TestMemoryStore_SummaryEmptyWindow(t *testing.T) {
	store := NewMemoryStore()

	sum, err := store.Summary(context.Background(), "BTCUSDT", 30)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum != nil {
		t.Errorf("expected nil summary for empty window, got %+v", sum)
	}
}

func TestMemoryStore_SummaryWindowLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, rsi := range []float64{10, 50, 70} {
		s := testSnap("BTCUSDT", 100)
		s.RSI = core.Float(rsi)
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// Only the newest two points fall inside the window.
	sum, err := store.Summary(ctx, "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Points != 2 {
		t.Errorf("expected 2 points, got %d", sum.Points)
	}
	if sum.RSIMin != 50 || sum.RSIMax != 70 {
		t.Errorf("expected window over the newest points, got min %g max %g", sum.RSIMin, sum.RSIMax)
	}
}

func TestMemoryStore_Events(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Oldest to newest: histogram crosses up then back down, RSI leaves the
	// oversold band and later the overbought band.
	points := []struct {
		hist float64
		rsi  float64
	}{
		{-1, 25},
		{1, 35},
		{2, 75},
		{-1, 65},
	}
	for _, p := range points {
		s := testSnap("BTCUSDT", 100)
		s.MACDHistogram = core.Float(p.hist)
		s.RSI = core.Float(p.rsi)
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
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

func TestMemoryStore_EventsLookbackBoundsWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, hist := range []float64{-1, 1, 2} {
		s := testSnap("BTCUSDT", 100)
		s.MACDHistogram = core.Float(hist)
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// The cross sits between the two oldest points; a lookback of 1 only
	// compares the newest pair.
	events, err := store.Events(ctx, "BTCUSDT", 1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events inside lookback 1, got %v", events)
	}
}

func TestMemoryStore_EventsSkipMissingValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	withHist := testSnap("BTCUSDT", 100)
	withHist.MACDHistogram = core.Float(-1)
	bare := testSnap("BTCUSDT", 100)
	withHist2 := testSnap("BTCUSDT", 100)
	withHist2.MACDHistogram = core.Float(1)

	for _, s := range []*core.IndicatorSnapshot{withHist, bare, withHist2} {
		if _, err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	events, err := store.Events(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("pairs with a missing side should not produce events, got %v", events)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	store := NewMemoryStore()
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
