// Package snapshot persists indicator snapshots and serves the windowed
// history context the analyzer feeds to the reasoning model.
package snapshot

import (
	"context"
	"time"

	"remora/internal/core"
)

// Store persists indicator snapshots per symbol.
type Store interface {
	// Save appends a snapshot and returns its assigned id.
	Save(ctx context.Context, snap *core.IndicatorSnapshot) (int64, error)

	// MarkSignal flags the snapshot that led to a proposed strategy.
	// Returns ErrNotFound for an unknown id.
	MarkSignal(ctx context.Context, id int64) error

	// Recent returns up to n snapshots for symbol, newest first.
	Recent(ctx context.Context, symbol string, n int) ([]core.IndicatorSnapshot, error)

	// Summary aggregates the last points snapshots for symbol.
	// An empty window yields (nil, nil).
	Summary(ctx context.Context, symbol string, points int) (*Summary, error)

	// Events scans the last lookback snapshot pairs for indicator
	// crossings, newest first.
	Events(ctx context.Context, symbol string, lookback int) ([]string, error)

	// Prune deletes snapshots captured before the cutoff and reports how
	// many rows went away.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Summary holds windowed aggregates over a symbol's recent snapshots.
// Aggregates skip snapshots missing the relevant indicator.
type Summary struct {
	Points        int
	RSIMin        float64
	RSIMax        float64
	RSIMean       float64
	MACDHistMean  float64
	BollWidthMean float64 // (upper-lower)/middle
	DistSMA50Mean float64 // |price-sma50|/sma50
}
