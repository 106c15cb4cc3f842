package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// ProposalStore keeps trade proposals in memory.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[string]domain.Proposal
}

// NewProposalStore creates an empty ProposalStore.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{proposals: make(map[string]domain.Proposal)}
}

// Create stores a new proposal.
func (s *ProposalStore) Create(_ context.Context, p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ProposalID] = p
	return nil
}

// GetByID returns a proposal or ErrNotFound.
func (s *ProposalStore) GetByID(_ context.Context, proposalID string) (domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return domain.Proposal{}, domain.ErrNotFound
	}
	return p, nil
}

// MarkExecuted transitions a ready proposal to executed exactly once.
func (s *ProposalStore) MarkExecuted(_ context.Context, proposalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == domain.ProposalStatusExecuted {
		return domain.ErrAlreadyExecuted
	}
	p.Status = domain.ProposalStatusExecuted
	p.ExecutedAt = &at
	s.proposals[proposalID] = p
	return nil
}

// List returns proposals newest-first up to limit.
func (s *ProposalStore) List(_ context.Context, limit int) ([]domain.Proposal, error) {
	s.mu.RLock()
	out := make([]domain.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.ProposalStore = (*ProposalStore)(nil)
