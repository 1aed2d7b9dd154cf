package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"remora/internal/core"
)

func testStrategy(symbol string) *core.Strategy {
	now := time.Now().UTC()
	return &core.Strategy{
		Symbol:     symbol,
		Action:     core.ActionLong,
		Confidence: 80,
		EntryPrice: 58500,
		TakeProfit: core.Float(61000),
		StopLoss:   core.Float(56930),
		KeyFactors: []string{"RSI oversold", "MACD bullish crossover"},
		Status:     core.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestMemoryStore_CreateAssignsIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := testStrategy("BTCUSDT")
	second := testStrategy("ETHUSDT")

	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.Ticket() != "STRATEGY_1" {
		t.Errorf("wrong ticket: %s", first.Ticket())
	}
}

func TestMemoryStore_GetByID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testStrategy("BTCUSDT")
	store.Create(ctx, s)

	got, err := store.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Symbol != "BTCUSDT" || got.Status != core.StatusPending {
		t.Errorf("wrong strategy: %+v", got)
	}
	if got.TakeProfit == nil || *got.TakeProfit != 61000 {
		t.Errorf("take profit not preserved: %v", got.TakeProfit)
	}

	_, err = store.GetByID(ctx, 999)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testStrategy("BTCUSDT")
	store.Create(ctx, s)

	got, _ := store.GetByID(ctx, s.ID)
	got.Symbol = "mutated"
	*got.TakeProfit = 0
	got.KeyFactors[0] = "mutated"

	again, _ := store.GetByID(ctx, s.ID)
	if again.Symbol != "BTCUSDT" {
		t.Error("store aliased the returned struct")
	}
	if *again.TakeProfit != 61000 {
		t.Error("store aliased the pointer field")
	}
	if again.KeyFactors[0] != "RSI oversold" {
		t.Error("store aliased the key factors slice")
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	btc := testStrategy("BTCUSDT")
	eth := testStrategy("ETHUSDT")
	eth.Action = core.ActionShort
	store.Create(ctx, btc)
	store.Create(ctx, eth)
	store.UpdateStatus(ctx, btc.ID, StatusUpdate{Status: core.StatusCancelled})

	bySymbol, _ := store.List(ctx, ListFilter{Symbol: "ETHUSDT"})
	if len(bySymbol) != 1 || bySymbol[0].Symbol != "ETHUSDT" {
		t.Errorf("symbol filter: %+v", bySymbol)
	}

	byStatus, _ := store.List(ctx, ListFilter{Status: core.StatusCancelled})
	if len(byStatus) != 1 || byStatus[0].ID != btc.ID {
		t.Errorf("status filter: %+v", byStatus)
	}

	byAction, _ := store.List(ctx, ListFilter{Action: core.ActionShort})
	if len(byAction) != 1 || byAction[0].ID != eth.ID {
		t.Errorf("action filter: %+v", byAction)
	}

	all, _ := store.List(ctx, ListFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2, got %d", len(all))
	}
	if all[0].ID != eth.ID {
		t.Error("expected newest first")
	}

	limited, _ := store.List(ctx, ListFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testStrategy("BTCUSDT")
	store.Create(ctx, s)

	orderID := "order-123"
	executedAt := time.Now().UTC()
	err := store.UpdateStatus(ctx, s.ID, StatusUpdate{
		Status:        core.StatusOpen,
		TransactionID: &orderID,
		ExecutedAt:    &executedAt,
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, _ := store.GetByID(ctx, s.ID)
	if got.Status != core.StatusOpen {
		t.Errorf("status not updated: %s", got.Status)
	}
	if got.TransactionID != "order-123" {
		t.Errorf("transaction id not updated: %s", got.TransactionID)
	}
	if !got.Executed || got.ExecutedAt == nil {
		t.Error("executed flag not set")
	}

	err = store.UpdateStatus(ctx, 999, StatusUpdate{Status: core.StatusCancelled})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateStatusFrom(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testStrategy("BTCUSDT")
	store.Create(ctx, s)

	ok, err := store.UpdateStatusFrom(ctx, s.ID, core.StatusPending, StatusUpdate{Status: core.StatusOpen})
	if err != nil {
		t.Fatalf("UpdateStatusFrom failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first transition to win")
	}

	// The strategy is OPEN now, so a second PENDING-conditioned write loses.
	ok, err = store.UpdateStatusFrom(ctx, s.ID, core.StatusPending, StatusUpdate{Status: core.StatusCancelled})
	if err != nil {
		t.Fatalf("UpdateStatusFrom failed: %v", err)
	}
	if ok {
		t.Error("stale transition should not apply")
	}

	got, _ := store.GetByID(ctx, s.ID)
	if got.Status != core.StatusOpen {
		t.Errorf("status clobbered: %s", got.Status)
	}

	_, err = store.UpdateStatusFrom(ctx, 999, core.StatusPending, StatusUpdate{Status: core.StatusOpen})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ExpireOverdue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	overduePending := testStrategy("BTCUSDT")
	overduePending.ExpiresAt = now.Add(-time.Minute)
	overdueOpen := testStrategy("ETHUSDT")
	overdueOpen.ExpiresAt = now.Add(-time.Minute)
	fresh := testStrategy("BNBUSDT")
	doneLongAgo := testStrategy("SOLUSDT")
	doneLongAgo.ExpiresAt = now.Add(-time.Hour)

	store.Create(ctx, overduePending)
	store.Create(ctx, overdueOpen)
	store.Create(ctx, fresh)
	store.Create(ctx, doneLongAgo)
	store.UpdateStatus(ctx, overdueOpen.ID, StatusUpdate{Status: core.StatusOpen})
	store.UpdateStatus(ctx, doneLongAgo.ID, StatusUpdate{Status: core.StatusClosed})

	count, err := store.ExpireOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 expired, got %d", count)
	}

	got, _ := store.GetByID(ctx, overdueOpen.ID)
	if got.Status != core.StatusExpired {
		t.Errorf("open strategy not expired: %s", got.Status)
	}
	kept, _ := store.GetByID(ctx, fresh.ID)
	if kept.Status != core.StatusPending {
		t.Errorf("fresh strategy touched: %s", kept.Status)
	}
	terminal, _ := store.GetByID(ctx, doneLongAgo.ID)
	if terminal.Status != core.StatusClosed {
		t.Errorf("closed strategy touched: %s", terminal.Status)
	}

	// Second sweep over the same set finds nothing.
	count, err = store.ExpireOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if count != 0 {
		t.Errorf("repeat sweep expired %d", count)
	}
}

func TestMemoryStore_ExpireOverdueBoundary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	atBoundary := testStrategy("BTCUSDT")
	atBoundary.ExpiresAt = now
	store.Create(ctx, atBoundary)

	count, _ := store.ExpireOverdue(ctx, now)
	if count != 1 {
		t.Errorf("expiry at exactly now should sweep, got %d", count)
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	long1 := testStrategy("BTCUSDT")
	long1.Confidence = 80
	long2 := testStrategy("ETHUSDT")
	long2.Confidence = 60
	short1 := testStrategy("BNBUSDT")
	short1.Action = core.ActionShort
	short1.Confidence = 70

	store.Create(ctx, long1)
	store.Create(ctx, long2)
	store.Create(ctx, short1)

	executedAt := time.Now().UTC()
	store.UpdateStatus(ctx, long1.ID, StatusUpdate{Status: core.StatusOpen, ExecutedAt: &executedAt})
	closedAt := executedAt.Add(time.Minute)
	store.UpdateStatus(ctx, long2.ID, StatusUpdate{Status: core.StatusClosed, ExecutedAt: &executedAt, ClosedAt: &closedAt})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 3 || stats.Pending != 1 || stats.Open != 1 || stats.Closed != 1 {
		t.Errorf("wrong status counts: %+v", stats)
	}
	if stats.Long != 2 || stats.Short != 1 {
		t.Errorf("wrong action counts: %+v", stats)
	}
	if stats.Executed != 2 {
		t.Errorf("wrong executed count: %d", stats.Executed)
	}
	if stats.AvgConfidence != 70 {
		t.Errorf("wrong avg confidence: %f", stats.AvgConfidence)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("wrong success rate: %f", stats.SuccessRate)
	}
}
