package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"remora/internal/core"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    interval_tf TEXT NOT NULL,
    captured_at INTEGER NOT NULL,
    price REAL NOT NULL,
    rsi REAL,
    macd REAL,
    macd_signal REAL,
    macd_hist REAL,
    ema20 REAL,
    ema200 REAL,
    sma20 REAL,
    sma50 REAL,
    sma200 REAL,
    bb_upper REAL,
    bb_middle REAL,
    bb_lower REAL,
    adx REAL,
    atr14 REAL,
    obv REAL,
    signal INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_id ON snapshots(symbol, id);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at);
`

const insertSnapshot = `
INSERT INTO snapshots (
    symbol, interval_tf, captured_at, price,
    rsi, macd, macd_signal, macd_hist,
    ema20, ema200, sma20, sma50, sma200,
    bb_upper, bb_middle, bb_lower, adx, atr14, obv
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectWindow = `
SELECT symbol, interval_tf, captured_at, price,
       rsi, macd, macd_signal, macd_hist,
       ema20, ema200, sma20, sma50, sma200,
       bb_upper, bb_middle, bb_lower, adx, atr14, obv
FROM snapshots
WHERE symbol = ?
ORDER BY id DESC
LIMIT ?`

// SQLiteStore persists snapshots in a local SQLite file. captured_at is
// stored as unix milliseconds so range scans stay free of text-format
// comparison quirks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path and
// applies the schema. Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers a single writer.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply snapshots schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var _ Store = (*SQLiteStore)(nil)

// Save inserts snap and returns its assigned id.
func (s *SQLiteStore) Save(ctx context.Context, snap *core.IndicatorSnapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertSnapshot,
		snap.Symbol, snap.Interval, snap.Time.UnixMilli(), snap.Price,
		snap.RSI, snap.MACD, snap.MACDSignal, snap.MACDHistogram,
		snap.EMA20, snap.EMA200, snap.SMA20, snap.SMA50, snap.SMA200,
		snap.BollUpper, snap.BollMiddle, snap.BollLower, snap.ADX, snap.ATR14, snap.OBV)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read snapshot id: %w", err)
	}
	return id, nil
}

// MarkSignal flags the snapshot with the given id.
func (s *SQLiteStore) MarkSignal(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE snapshots SET signal = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark snapshot signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark snapshot signal: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Recent returns up to n snapshots for symbol, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, symbol string, n int) ([]core.IndicatorSnapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, selectWindow, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query snapshot window: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// Summary aggregates the last points snapshots for symbol.
func (s *SQLiteStore) Summary(ctx context.Context, symbol string, points int) (*Summary, error) {
	window, err := s.Recent(ctx, symbol, points)
	if err != nil {
		return nil, err
	}
	return summarize(window), nil
}

// Events scans the last lookback snapshot pairs for indicator crossings.
func (s *SQLiteStore) Events(ctx context.Context, symbol string, lookback int) ([]string, error) {
	window, err := s.Recent(ctx, symbol, lookback+1)
	if err != nil {
		return nil, err
	}
	return detectEvents(window), nil
}

// Prune deletes snapshots captured before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE captured_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}

// Close releases the underlying handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSnapshots(rows *sql.Rows) ([]core.IndicatorSnapshot, error) {
	var out []core.IndicatorSnapshot
	for rows.Next() {
		var snap core.IndicatorSnapshot
		var capturedAt int64
		if err := rows.Scan(&snap.Symbol, &snap.Interval, &capturedAt, &snap.Price,
			&snap.RSI, &snap.MACD, &snap.MACDSignal, &snap.MACDHistogram,
			&snap.EMA20, &snap.EMA200, &snap.SMA20, &snap.SMA50, &snap.SMA200,
			&snap.BollUpper, &snap.BollMiddle, &snap.BollLower, &snap.ADX, &snap.ATR14, &snap.OBV); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.Time = time.UnixMilli(capturedAt).UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}
