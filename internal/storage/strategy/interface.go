// Package strategy persists trade strategies and their lifecycle state.
package strategy

import (
	"context"
	"time"

	"remora/internal/core"
)

// Store defines the interface for strategy persistence.
type Store interface {
	// Create persists a new strategy and assigns its ID.
	Create(ctx context.Context, s *core.Strategy) error

	// GetByID retrieves a strategy by ID. Returns core.ErrNotFound when
	// no such strategy exists.
	GetByID(ctx context.Context, id int64) (*core.Strategy, error)

	// List retrieves strategies matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]core.Strategy, error)

	// UpdateStatus applies upd to the strategy unconditionally.
	// Returns core.ErrNotFound when no such strategy exists.
	UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error

	// UpdateStatusFrom applies upd only when the strategy is currently in
	// the from status. Reports whether the update took effect; a false
	// return with nil error means the strategy had moved on.
	UpdateStatusFrom(ctx context.Context, id int64, from core.StrategyStatus, upd StatusUpdate) (bool, error)

	// ExpireOverdue marks every PENDING and OPEN strategy whose expiry is
	// at or before now as EXPIRED, in one sweep. Returns how many rows
	// changed; zero on a repeat call over the same set.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)

	// Stats aggregates lifecycle counters across all strategies.
	Stats(ctx context.Context) (*core.StrategyStats, error)

	// Close releases the underlying resources.
	Close() error
}

// ListFilter defines criteria for listing strategies.
type ListFilter struct {
	Symbol string
	Status core.StrategyStatus
	Action core.TradeAction
	Limit  int
}

// StatusUpdate carries the fields a status transition may touch. Nil fields
// keep their stored values; a set ExecutedAt also flips the executed flag.
type StatusUpdate struct {
	Status        core.StrategyStatus
	TransactionID *string
	ExecutedAt    *time.Time
	ClosedAt      *time.Time
}
