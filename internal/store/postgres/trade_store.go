package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantleap/polyflux/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `trade_id, market_id, bet_id, asset, side, outcome,
	token_label, quantity, price, total_value, status, order_id, error, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeResult, error) {
	var trades []domain.TradeResult
	for rows.Next() {
		var t domain.TradeResult
		if err := rows.Scan(
			&t.TradeID, &t.MarketID, &t.BetID, &t.Asset, &t.Side, &t.Outcome,
			&t.TokenLabel, &t.Quantity, &t.Price, &t.TotalValue,
			&t.Status, &t.OrderID, &t.Error, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert stores a new trade result.
func (s *TradeStore) Insert(ctx context.Context, t domain.TradeResult) error {
	const query = `
		INSERT INTO trades (
			trade_id, market_id, bet_id, asset, side, outcome,
			token_label, quantity, price, total_value, status,
			order_id, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.MarketID, t.BetID, t.Asset, t.Side, t.Outcome,
		t.TokenLabel, t.Quantity, t.Price, t.TotalValue, t.Status,
		t.OrderID, t.Error, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

// Update rewrites a trade's mutable fields by id.
func (s *TradeStore) Update(ctx context.Context, t domain.TradeResult) error {
	const query = `
		UPDATE trades
		SET status = $2, order_id = $3, error = $4, price = $5, total_value = $6
		WHERE trade_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		t.TradeID, t.Status, t.OrderID, t.Error, t.Price, t.TotalValue,
	)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", t.TradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update trade %s: %w", t.TradeID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a single trade by its id.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (domain.TradeResult, error) {
	var t domain.TradeResult
	err := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE trade_id = $1`, tradeID,
	).Scan(
		&t.TradeID, &t.MarketID, &t.BetID, &t.Asset, &t.Side, &t.Outcome,
		&t.TokenLabel, &t.Quantity, &t.Price, &t.TotalValue,
		&t.Status, &t.OrderID, &t.Error, &t.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeResult{}, fmt.Errorf("postgres: trade %s: %w", tradeID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("postgres: get trade %s: %w", tradeID, err)
	}
	return t, nil
}

// List returns resolved trades newest-first, filtered by status and asset.
func (s *TradeStore) List(ctx context.Context, f domain.TradeFilter) ([]domain.TradeResult, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE status <> $1`
	args := []any{domain.TradeStatusPending}
	argIdx := 2

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Asset != "" {
		query += fmt.Sprintf(" AND asset = $%d", argIdx)
		args = append(args, f.Asset)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListPending returns unresolved trades oldest-first.
func (s *TradeStore) ListPending(ctx context.Context) ([]domain.TradeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE status = $1 ORDER BY created_at ASC`,
		domain.TradeStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns resolved trades created strictly before the cutoff.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE status <> $1 AND created_at < $2 ORDER BY created_at ASC`,
		domain.TradeStatusPending, before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

var _ domain.TradeStore = (*TradeStore)(nil)
