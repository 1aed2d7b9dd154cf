package strategy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"remora/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres, verifies the connection and applies
// the idempotent schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply strategies schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool. The schema is assumed to
// be present; tests use this with a pool they migrated themselves.
func NewPostgresStoreWithPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const strategyColumns = `
	id, symbol, action, confidence, entry_price,
	stop_loss, take_profit, risk_reward_ratio,
	justification, key_factors, risk_level,
	status, executed, transaction_id,
	llm_response, market_conditions,
	created_at, expires_at, executed_at, closed_at`

// Create inserts the strategy and writes the generated ID back into st.
func (s *PostgresStore) Create(ctx context.Context, st *core.Strategy) error {
	query := `
		INSERT INTO strategies (
			symbol, action, confidence, entry_price,
			stop_loss, take_profit, risk_reward_ratio,
			justification, key_factors, risk_level,
			status, executed, transaction_id,
			llm_response, market_conditions,
			created_at, expires_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, $17
		)
		RETURNING id
	`

	keyFactors := st.KeyFactors
	if keyFactors == nil {
		keyFactors = []string{}
	}

	err := s.pool.QueryRow(ctx, query,
		st.Symbol, string(st.Action), st.Confidence, st.EntryPrice,
		st.StopLoss, st.TakeProfit, st.RiskRewardRatio,
		st.Justification, keyFactors, st.RiskLevel,
		string(st.Status), st.Executed, st.TransactionID,
		st.LLMResponse, st.MarketConditions,
		st.CreatedAt, st.ExpiresAt,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

// GetByID retrieves a strategy by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*core.Strategy, error) {
	query := `SELECT` + strategyColumns + `
		FROM strategies
		WHERE id = $1
	`

	st, err := scanStrategy(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy by id: %w", err)
	}
	return st, nil
}

// List retrieves strategies matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]core.Strategy, error) {
	query := `SELECT` + strategyColumns + `
		FROM strategies
		WHERE ($1 = '' OR symbol = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR action = $3)
		ORDER BY id DESC
	`
	args := []any{filter.Symbol, string(filter.Status), string(filter.Action)}
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

const updateStatusSet = `
	SET status = $2,
	    transaction_id = COALESCE($3, transaction_id),
	    executed = executed OR $4,
	    executed_at = COALESCE($5, executed_at),
	    closed_at = COALESCE($6, closed_at)`

// UpdateStatus applies upd unconditionally.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error {
	query := `UPDATE strategies` + updateStatusSet + `
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		id, string(upd.Status), upd.TransactionID, upd.ExecutedAt != nil, upd.ExecutedAt, upd.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update strategy status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UpdateStatusFrom applies upd only when the stored status equals from. The
// status check and the write are one statement, so two racing callers cannot
// both succeed.
func (s *PostgresStore) UpdateStatusFrom(ctx context.Context, id int64, from core.StrategyStatus, upd StatusUpdate) (bool, error) {
	query := `UPDATE strategies` + updateStatusSet + `
		WHERE id = $1 AND status = $7
	`

	tag, err := s.pool.Exec(ctx, query,
		id, string(upd.Status), upd.TransactionID, upd.ExecutedAt != nil, upd.ExecutedAt, upd.ClosedAt,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update strategy status from %s: %w", from, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireOverdue sweeps every active strategy past its expiry into EXPIRED.
func (s *PostgresStore) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE strategies
		SET status = 'EXPIRED'
		WHERE status IN ('PENDING', 'OPEN') AND expires_at <= $1
	`

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue strategies: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats aggregates lifecycle counters in a single query.
func (s *PostgresStore) Stats(ctx context.Context) (*core.StrategyStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'OPEN'),
			COUNT(*) FILTER (WHERE status = 'CLOSED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COUNT(*) FILTER (WHERE status = 'EXPIRED'),
			COUNT(*) FILTER (WHERE executed),
			COUNT(*) FILTER (WHERE action = 'LONG'),
			COUNT(*) FILTER (WHERE action = 'SHORT'),
			COALESCE(AVG(confidence), 0)
		FROM strategies
	`

	stats := &core.StrategyStats{}
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.Total, &stats.Pending, &stats.Open, &stats.Closed,
		&stats.Cancelled, &stats.Expired, &stats.Executed,
		&stats.Long, &stats.Short, &stats.AvgConfidence,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate strategy stats: %w", err)
	}
	if stats.Executed > 0 {
		stats.SuccessRate = float64(stats.Closed) / float64(stats.Executed) * 100
	}
	return stats, nil
}

// scanStrategy scans a single row into a Strategy.
func scanStrategy(row pgx.Row) (*core.Strategy, error) {
	var st core.Strategy
	var action, status string

	err := row.Scan(
		&st.ID, &st.Symbol, &action, &st.Confidence, &st.EntryPrice,
		&st.StopLoss, &st.TakeProfit, &st.RiskRewardRatio,
		&st.Justification, &st.KeyFactors, &st.RiskLevel,
		&status, &st.Executed, &st.TransactionID,
		&st.LLMResponse, &st.MarketConditions,
		&st.CreatedAt, &st.ExpiresAt, &st.ExecutedAt, &st.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Action = core.TradeAction(action)
	st.Status = core.StrategyStatus(status)
	return &st, nil
}

// scanStrategies scans multiple rows into a slice of Strategy.
func scanStrategies(rows pgx.Rows) ([]core.Strategy, error) {
	var out []core.Strategy

	for rows.Next() {
		var st core.Strategy
		var action, status string

		err := rows.Scan(
			&st.ID, &st.Symbol, &action, &st.Confidence, &st.EntryPrice,
			&st.StopLoss, &st.TakeProfit, &st.RiskRewardRatio,
			&st.Justification, &st.KeyFactors, &st.RiskLevel,
			&status, &st.Executed, &st.TransactionID,
			&st.LLMResponse, &st.MarketConditions,
			&st.CreatedAt, &st.ExpiresAt, &st.ExecutedAt, &st.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}

		st.Action = core.TradeAction(action)
		st.Status = core.StrategyStatus(status)
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}
	return out, nil
}
