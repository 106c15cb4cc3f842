package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// LockManager is a single-process domain.LockManager. TTLs are honored so a
// holder that never releases does not wedge the process forever.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> expiry
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]time.Time)}
}

// Acquire obtains the lock for key or returns domain.ErrLockHeld. The
// returned release function is safe to call more than once.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if expiry, held := lm.locks[key]; held && time.Now().Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	lm.locks[key] = time.Now().Add(ttl)

	var once sync.Once
	release := func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			delete(lm.locks, key)
		})
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
