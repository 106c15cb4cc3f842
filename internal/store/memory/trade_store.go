// Package memory provides in-memory implementations of the domain
// repository interfaces. They back tests and the default single-process
// deployment; the Postgres stores are the durable alternative.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// TradeStore keeps trade results in memory, with pending trades held apart
// from resolved history until they reach a terminal status.
type TradeStore struct {
	mu      sync.RWMutex
	pending map[string]domain.TradeResult
	history map[string]domain.TradeResult
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		pending: make(map[string]domain.TradeResult),
		history: make(map[string]domain.TradeResult),
	}
}

// Insert stores a new trade result.
func (s *TradeStore) Insert(_ context.Context, t domain.TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status.Terminal() {
		s.history[t.TradeID] = t
	} else {
		s.pending[t.TradeID] = t
	}
	return nil
}

// Update replaces an existing trade result, moving it between the pending
// set and history as its status dictates.
func (s *TradeStore) Update(_ context.Context, t domain.TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[t.TradeID]; !ok {
		if _, ok := s.history[t.TradeID]; !ok {
			return domain.ErrNotFound
		}
	}
	if t.Status.Terminal() {
		delete(s.pending, t.TradeID)
		s.history[t.TradeID] = t
	} else {
		s.pending[t.TradeID] = t
	}
	return nil
}

// GetByID looks up a trade in either set.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.pending[tradeID]; ok {
		return t, nil
	}
	if t, ok := s.history[tradeID]; ok {
		return t, nil
	}
	return domain.TradeResult{}, domain.ErrNotFound
}

// List returns resolved trades newest-first, filtered by status and asset.
func (s *TradeStore) List(_ context.Context, f domain.TradeFilter) ([]domain.TradeResult, error) {
	s.mu.RLock()
	out := make([]domain.TradeResult, 0, len(s.history))
	for _, t := range s.history {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Asset != "" && t.Asset != f.Asset {
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListPending returns all unresolved trades.
func (s *TradeStore) ListPending(_ context.Context) ([]domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TradeResult, 0, len(s.pending))
	for _, t := range s.pending {
		out = append(out, t)
	}
	return out, nil
}

// ListBefore returns resolved trades strictly older than the cutoff.
func (s *TradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TradeResult
	for _, t := range s.history {
		if t.Timestamp.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
