package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantleap/polyflux/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

const decisionSelectCols = `decision_id, market_id, bet_id, outcome, action,
	confidence, reasoning, trade_id, created_at`

// Insert stores a recorded decision.
func (s *DecisionStore) Insert(ctx context.Context, d domain.Decision) error {
	const query = `
		INSERT INTO decisions (
			decision_id, market_id, bet_id, outcome, action,
			confidence, reasoning, trade_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		d.DecisionID, d.MarketID, d.BetID, d.Outcome, d.Action,
		d.Confidence, d.Reasoning, d.TradeID, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.DecisionID, err)
	}
	return nil
}

// GetByID returns a decision by its id.
func (s *DecisionStore) GetByID(ctx context.Context, decisionID string) (domain.Decision, error) {
	var d domain.Decision
	err := s.pool.QueryRow(ctx,
		`SELECT `+decisionSelectCols+` FROM decisions WHERE decision_id = $1`, decisionID,
	).Scan(
		&d.DecisionID, &d.MarketID, &d.BetID, &d.Outcome, &d.Action,
		&d.Confidence, &d.Reasoning, &d.TradeID, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Decision{}, fmt.Errorf("postgres: decision %s: %w", decisionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Decision{}, fmt.Errorf("postgres: get decision %s: %w", decisionID, err)
	}
	return d, nil
}

// List returns decisions newest-first.
func (s *DecisionStore) List(ctx context.Context, limit int) ([]domain.Decision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM decisions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var d domain.Decision
		if err := rows.Scan(
			&d.DecisionID, &d.MarketID, &d.BetID, &d.Outcome, &d.Action,
			&d.Confidence, &d.Reasoning, &d.TradeID, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

var _ domain.DecisionStore = (*DecisionStore)(nil)
