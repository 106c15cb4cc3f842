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

// ProposalStore implements domain.ProposalStore using PostgreSQL.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a ProposalStore backed by the given pool.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

const proposalSelectCols = `proposal_id, market_id, bet_id, outcome, token_label,
	confidence, reasoning, recommended_quantity, recommended_price,
	estimated_value, status, created_at, executed_at`

// Create stores a new proposal.
func (s *ProposalStore) Create(ctx context.Context, p domain.Proposal) error {
	const query = `
		INSERT INTO proposals (
			proposal_id, market_id, bet_id, outcome, token_label,
			confidence, reasoning, recommended_quantity, recommended_price,
			estimated_value, status, created_at, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		p.ProposalID, p.MarketID, p.BetID, p.Outcome, p.TokenLabel,
		p.Confidence, p.Reasoning, p.RecommendedQuantity, p.RecommendedPrice,
		p.EstimatedValue, p.Status, p.CreatedAt, p.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create proposal %s: %w", p.ProposalID, err)
	}
	return nil
}

// GetByID returns a proposal by its id.
func (s *ProposalStore) GetByID(ctx context.Context, proposalID string) (domain.Proposal, error) {
	var p domain.Proposal
	err := s.pool.QueryRow(ctx,
		`SELECT `+proposalSelectCols+` FROM proposals WHERE proposal_id = $1`, proposalID,
	).Scan(
		&p.ProposalID, &p.MarketID, &p.BetID, &p.Outcome, &p.TokenLabel,
		&p.Confidence, &p.Reasoning, &p.RecommendedQuantity, &p.RecommendedPrice,
		&p.EstimatedValue, &p.Status, &p.CreatedAt, &p.ExecutedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Proposal{}, fmt.Errorf("postgres: proposal %s: %w", proposalID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("postgres: get proposal %s: %w", proposalID, err)
	}
	return p, nil
}

// MarkExecuted claims a ready proposal. The status guard in the UPDATE makes
// the transition atomic; a second caller sees zero rows and gets
// ErrAlreadyExecuted.
func (s *ProposalStore) MarkExecuted(ctx context.Context, proposalID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET status = $2, executed_at = $3
		 WHERE proposal_id = $1 AND status = $4`,
		proposalID, domain.ProposalStatusExecuted, at, domain.ProposalStatusReady,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark proposal %s executed: %w", proposalID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the proposal does not exist or it was claimed already.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM proposals WHERE proposal_id = $1)", proposalID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check proposal %s: %w", proposalID, err)
	}
	if !exists {
		return fmt.Errorf("postgres: proposal %s: %w", proposalID, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: proposal %s: %w", proposalID, domain.ErrAlreadyExecuted)
}

// List returns proposals newest-first.
func (s *ProposalStore) List(ctx context.Context, limit int) ([]domain.Proposal, error) {
	query := `SELECT ` + proposalSelectCols + ` FROM proposals ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []domain.Proposal
	for rows.Next() {
		var p domain.Proposal
		if err := rows.Scan(
			&p.ProposalID, &p.MarketID, &p.BetID, &p.Outcome, &p.TokenLabel,
			&p.Confidence, &p.Reasoning, &p.RecommendedQuantity, &p.RecommendedPrice,
			&p.EstimatedValue, &p.Status, &p.CreatedAt, &p.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

var _ domain.ProposalStore = (*ProposalStore)(nil)
