package memory

import (
	"context"
	"sync"

	"github.com/quantleap/polyflux/internal/domain"
)

// DecisionStore keeps recorded trading decisions in memory, append-only.
type DecisionStore struct {
	mu        sync.RWMutex
	decisions []domain.Decision
}

// NewDecisionStore creates an empty DecisionStore.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{}
}

// Insert appends a decision.
func (s *DecisionStore) Insert(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

// GetByID looks up a decision by id.
func (s *DecisionStore) GetByID(_ context.Context, decisionID string) (domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.decisions {
		if d.DecisionID == decisionID {
			return d, nil
		}
	}
	return domain.Decision{}, domain.ErrNotFound
}

// List returns the most recent decisions, newest first.
func (s *DecisionStore) List(_ context.Context, limit int) ([]domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Decision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.decisions[i])
	}
	return out, nil
}

var _ domain.DecisionStore = (*DecisionStore)(nil)
