package pipeline

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidate(id string, closeIn time.Duration) domain.Market {
	ct := time.Now().UTC().Add(closeIn)
	return domain.Market{
		ID:             id,
		Question:       "will it happen",
		Volume24h:      1000,
		LiquidityScore: 80,
		BidAskSpread:   1,
		Active:         true,
		CloseTime:      &ct,
	}
}

func TestFeedCacheReadyThreshold(t *testing.T) {
	fc := NewFeedCache("", 100, discardLogger())

	fc.Add([]domain.Market{candidate("m1", 48*time.Hour), candidate("m2", 48*time.Hour)})
	assert.False(t, fc.Ready(3))
	assert.True(t, fc.Ready(2))

	// Re-adding the same markets does not inflate the pending count.
	added := fc.Add([]domain.Market{candidate("m1", 48*time.Hour)})
	assert.Equal(t, 0, added)
	assert.False(t, fc.Ready(3))
}

func TestFeedCachePruneExhausted(t *testing.T) {
	fc := NewFeedCache("", 100, discardLogger())
	now := time.Now().UTC()

	closed := candidate("closed", 48*time.Hour)
	closed.Closed = true
	expired := candidate("expired", -time.Hour)
	live := candidate("live", 48*time.Hour)
	done := candidate("done", 48*time.Hour)

	fc.Add([]domain.Market{closed, expired, live, done})
	fc.MarkProcessed([]string{"done"})

	removed := fc.Prune(now)
	assert.Equal(t, 3, removed)

	pending := fc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "live", pending[0].ID)
}

func TestFeedCacheMaxSizeEvictsProcessedFirst(t *testing.T) {
	fc := NewFeedCache("", 3, discardLogger())

	fc.Add([]domain.Market{candidate("a", 48*time.Hour), candidate("b", 48*time.Hour), candidate("c", 48*time.Hour)})
	fc.MarkProcessed([]string{"a"})

	fc.Add([]domain.Market{candidate("d", 48*time.Hour)})
	assert.Equal(t, 3, fc.Size())

	// The processed entry went first; all pending candidates survive.
	pending := fc.Pending()
	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.ID
	}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, ids)
}

func TestFeedCachePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedcache.json")

	fc := NewFeedCache(path, 100, discardLogger())
	fc.Add([]domain.Market{candidate("m1", 48*time.Hour), candidate("m2", 48*time.Hour)})
	fc.MarkProcessed([]string{"m2"})

	reloaded := NewFeedCache(path, 100, discardLogger())
	assert.Equal(t, 2, reloaded.Size())

	pending := reloaded.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].ID)
}

func TestFeedCacheCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedcache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	fc := NewFeedCache(path, 100, discardLogger())
	assert.Equal(t, 0, fc.Size())
}
