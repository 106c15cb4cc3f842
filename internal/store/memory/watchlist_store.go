package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/quantleap/polyflux/internal/domain"
)

// WatchlistStore is the in-memory counterpart of the Redis watchlist store.
type WatchlistStore struct {
	mu            sync.RWMutex
	positions     map[string]domain.WatchlistPosition
	prices        map[string]float64
	notifications []domain.Notification // newest first
	globalROI     float64
	globalROISet  bool
}

// NewWatchlistStore creates an empty WatchlistStore.
func NewWatchlistStore() *WatchlistStore {
	return &WatchlistStore{
		positions: make(map[string]domain.WatchlistPosition),
		prices:    make(map[string]float64),
	}
}

// SavePosition upserts a position keyed by id.
func (s *WatchlistStore) SavePosition(_ context.Context, pos domain.WatchlistPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.PositionID] = pos
	return nil
}

// GetPosition returns a position or ErrNotFound.
func (s *WatchlistStore) GetPosition(_ context.Context, positionID string) (domain.WatchlistPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[positionID]
	if !ok {
		return domain.WatchlistPosition{}, domain.ErrNotFound
	}
	return pos, nil
}

// ListPositions returns every stored position, open and closed.
func (s *WatchlistStore) ListPositions(_ context.Context) ([]domain.WatchlistPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WatchlistPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	return out, nil
}

// SetPrice records the latest price for a symbol.
func (s *WatchlistStore) SetPrice(_ context.Context, symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(symbol)] = price
	return nil
}

// GetPrices returns a copy of the price map.
func (s *WatchlistStore) GetPrices(_ context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out, nil
}

// PushNotification prepends and trims to domain.MaxNotifications.
func (s *WatchlistStore) PushNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]domain.Notification{n}, s.notifications...)
	if len(s.notifications) > domain.MaxNotifications {
		s.notifications = s.notifications[:domain.MaxNotifications]
	}
	return nil
}

// ListNotifications returns the most recent notifications.
func (s *WatchlistStore) ListNotifications(_ context.Context, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.notifications) {
		limit = len(s.notifications)
	}
	out := make([]domain.Notification, limit)
	copy(out, s.notifications[:limit])
	return out, nil
}

// GetGlobalROI returns the stored scalar; ok is false before the first set.
func (s *WatchlistStore) GetGlobalROI(_ context.Context) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalROI, s.globalROISet, nil
}

// SetGlobalROI stores the scalar.
func (s *WatchlistStore) SetGlobalROI(_ context.Context, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalROI = value
	s.globalROISet = true
	return nil
}

var _ domain.WatchlistStore = (*WatchlistStore)(nil)
