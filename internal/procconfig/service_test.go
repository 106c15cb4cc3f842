package procconfig

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config", "polymarket_config.json")
	return NewService(path, slog.Default())
}

func ptr[T any](v T) *T { return &v }

func TestUpdateRoundTrip(t *testing.T) {
	s := newTestService(t)

	_, err := s.Update(Update{
		Process: &ProcessUpdate{
			ActiveFlux:            ptr("rss_flux"),
			MaxAIWeightedDaily:    ptr(0.5),
			MaxAIWeightedPerTrade: ptr(0.1),
		},
		TradingControls: &TradingControlsUpdate{
			MaxAmountPerTrade: ptr(250.0),
		},
		TriggerConfig: &TriggerUpdate{
			TriggerType: ptr(TriggerManual),
		},
	})
	require.NoError(t, err)

	got := s.Get()
	assert.Equal(t, "rss_flux", got.Process.ActiveFlux)
	assert.InDelta(t, 0.5, got.Process.MaxAIWeightedDaily, 1e-9)
	assert.InDelta(t, 0.1, got.Process.MaxAIWeightedPerTrade, 1e-9)
	assert.InDelta(t, 250.0, got.TradingControls.MaxAmountPerTrade, 1e-9)
	assert.Equal(t, TriggerManual, got.TriggerConfig.TriggerType)

	// Unspecified fields keep their previous values.
	assert.Equal(t, 4, got.Process.TradeFrequencyHours)
	assert.InDelta(t, 5000.0, got.TradingControls.MaxExposureTotal, 1e-9)
	assert.Equal(t, 4, got.TriggerConfig.IntervalHours)
	assert.NotEmpty(t, got.LastUpdated)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	s := newTestService(t)
	before := s.Get()

	_, err := s.Update(Update{
		Process: &ProcessUpdate{MaxAIWeightedDaily: ptr(1.5)},
	})
	require.Error(t, err)

	// Failed updates leave the previous config untouched.
	assert.Equal(t, before.Process, s.Get().Process)
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polymarket_config.json")
	s := NewService(path, slog.Default())

	_, err := s.Update(Update{
		TradingControls: &TradingControlsUpdate{MaxTradesPerDay: ptr(3)},
		TaskFlows:       map[string]bool{"batch_orchestration": false},
	})
	require.NoError(t, err)

	// The file on disk is a complete, valid document.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Snapshot
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 3, onDisk.TradingControls.MaxTradesPerDay)

	// A fresh service picks it up.
	reloaded := NewService(path, slog.Default())
	got := reloaded.Get()
	assert.Equal(t, 3, got.TradingControls.MaxTradesPerDay)
	assert.False(t, got.TaskFlows["batch_orchestration"])
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polymarket_config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewService(path, slog.Default())
	assert.Equal(t, Defaults().TradingControls, s.Get().TradingControls)
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestService(t)
	got := s.Get()
	got.TaskFlows["batch_orchestration"] = false

	assert.True(t, s.Get().TaskFlows["batch_orchestration"])
}
