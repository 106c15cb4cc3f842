package pipeline

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// feedEntry is one cached market candidate.
type feedEntry struct {
	Market    domain.Market `json:"market"`
	AddedAt   time.Time     `json:"added_at"`
	Processed bool          `json:"processed"`
}

// FeedCache accumulates market candidates between scans so a batch only runs
// once enough pending work exists. It persists to a JSON file so candidates
// survive restarts; a missing or corrupt file just means an empty cache.
type FeedCache struct {
	mu      sync.Mutex
	path    string
	maxSize int
	entries map[string]*feedEntry
	logger  *slog.Logger
}

// NewFeedCache creates a FeedCache persisted at path, holding at most
// maxSize candidates. An empty path disables persistence.
func NewFeedCache(path string, maxSize int, logger *slog.Logger) *FeedCache {
	fc := &FeedCache{
		path:    path,
		maxSize: maxSize,
		entries: make(map[string]*feedEntry),
		logger:  logger,
	}
	fc.load()
	return fc
}

func (fc *FeedCache) load() {
	if fc.path == "" {
		return
	}
	data, err := os.ReadFile(fc.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fc.logger.Warn("feed cache: read failed, starting empty",
				slog.String("path", fc.path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	var entries []feedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		fc.logger.Warn("feed cache: corrupt file, starting empty",
			slog.String("path", fc.path),
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range entries {
		e := entries[i]
		fc.entries[e.Market.ID] = &e
	}
}

// persist writes the cache atomically. Callers hold fc.mu.
func (fc *FeedCache) persist() {
	if fc.path == "" {
		return
	}

	entries := make([]feedEntry, 0, len(fc.entries))
	for _, e := range fc.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AddedAt.Before(entries[j].AddedAt) })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		fc.logger.Warn("feed cache: marshal failed", slog.String("error", err.Error()))
		return
	}

	dir := filepath.Dir(fc.path)
	tmp, err := os.CreateTemp(dir, ".feedcache-*")
	if err != nil {
		fc.logger.Warn("feed cache: persist failed", slog.String("error", err.Error()))
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		fc.logger.Warn("feed cache: persist failed", slog.String("error", err.Error()))
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		fc.logger.Warn("feed cache: persist failed", slog.String("error", err.Error()))
		return
	}
	if err := os.Rename(tmpName, fc.path); err != nil {
		_ = os.Remove(tmpName)
		fc.logger.Warn("feed cache: persist failed", slog.String("error", err.Error()))
	}
}

// Add merges newly fetched markets into the cache and returns how many were
// new. Existing entries get their market data refreshed but keep their
// processed flag. When the cache exceeds its bound the oldest processed
// entries are evicted first, then the oldest pending ones.
func (fc *FeedCache) Add(markets []domain.Market) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	added := 0
	now := time.Now().UTC()
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		if e, ok := fc.entries[m.ID]; ok {
			e.Market = m
			continue
		}
		fc.entries[m.ID] = &feedEntry{Market: m, AddedAt: now}
		added++
	}

	fc.evictLocked()
	fc.persist()
	return added
}

func (fc *FeedCache) evictLocked() {
	over := len(fc.entries) - fc.maxSize
	if over <= 0 {
		return
	}

	type keyed struct {
		id string
		e  *feedEntry
	}
	all := make([]keyed, 0, len(fc.entries))
	for id, e := range fc.entries {
		all = append(all, keyed{id, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].e.Processed != all[j].e.Processed {
			return all[i].e.Processed
		}
		return all[i].e.AddedAt.Before(all[j].e.AddedAt)
	})
	for i := 0; i < over; i++ {
		delete(fc.entries, all[i].id)
	}
}

// Prune drops exhausted candidates: closed markets, markets past their close
// time, and already-processed entries. Returns how many were removed.
func (fc *FeedCache) Prune(now time.Time) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	removed := 0
	for id, e := range fc.entries {
		exhausted := e.Processed || e.Market.Closed ||
			(e.Market.CloseTime != nil && e.Market.CloseTime.Before(now))
		if exhausted {
			delete(fc.entries, id)
			removed++
		}
	}
	if removed > 0 {
		fc.persist()
	}
	return removed
}

// Pending returns unprocessed candidates, oldest first.
func (fc *FeedCache) Pending() []domain.Market {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	pending := make([]feedEntry, 0, len(fc.entries))
	for _, e := range fc.entries {
		if !e.Processed {
			pending = append(pending, *e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].AddedAt.Before(pending[j].AddedAt) })

	out := make([]domain.Market, len(pending))
	for i, e := range pending {
		out[i] = e.Market
	}
	return out
}

// Ready reports whether enough pending candidates have accumulated for a
// batch to be worth dispatching.
func (fc *FeedCache) Ready(threshold int) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	pending := 0
	for _, e := range fc.entries {
		if !e.Processed {
			pending++
		}
	}
	return pending >= threshold
}

// MarkProcessed flags candidates as handled; they are dropped on the next
// prune.
func (fc *FeedCache) MarkProcessed(ids []string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	changed := false
	for _, id := range ids {
		if e, ok := fc.entries[id]; ok && !e.Processed {
			e.Processed = true
			changed = true
		}
	}
	if changed {
		fc.persist()
	}
}

// Size returns the total number of cached entries.
func (fc *FeedCache) Size() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.entries)
}
