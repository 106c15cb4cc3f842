package trigger

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/procconfig"
)

func TestEnsureRegisteredIdempotent(t *testing.T) {
	r1 := EnsureRegistered()
	r2 := EnsureRegistered()
	assert.Same(t, r1, r2)

	specs := r1.List()
	require.Len(t, specs, 3)

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		assert.Equal(t, PipelinePolymarket, s.Pipeline)
		names = append(names, s.Trigger)
	}
	assert.Equal(t, []string{"interval", "manual", "rss"}, names)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	spec := Spec{Pipeline: "polymarket", Trigger: "interval"}
	require.NoError(t, r.Register(spec))
	assert.Error(t, r.Register(spec))
}

func TestExtractSettingsScopedPerTrigger(t *testing.T) {
	snap := procconfig.Defaults()

	got, err := ExtractSettings(procconfig.TriggerInterval, snap)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"trigger_type":   "interval",
		"interval_hours": 4,
	}, got)

	got, err = ExtractSettings(procconfig.TriggerRSS, snap)
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, 300, got["scan_interval_seconds"])

	_, err = ExtractSettings("cron", snap)
	assert.Error(t, err)
}

func TestApplySettingsTouchesOnlyTriggerConfig(t *testing.T) {
	u, err := ApplySettings(procconfig.TriggerInterval, []byte(`{"interval_hours": 8}`))
	require.NoError(t, err)

	require.NotNil(t, u.TriggerConfig)
	require.NotNil(t, u.TriggerConfig.IntervalHours)
	assert.Equal(t, 8, *u.TriggerConfig.IntervalHours)
	assert.Nil(t, u.TriggerConfig.TriggerType)

	// Sections outside the trigger's surface are never populated.
	assert.Nil(t, u.Process)
	assert.Nil(t, u.TradingControls)
	assert.Nil(t, u.RSSFlux)
	assert.Nil(t, u.TaskFlows)
}

func TestApplySettingsRejectsForeignFields(t *testing.T) {
	// An interval payload cannot smuggle flux knobs.
	_, err := ApplySettings(procconfig.TriggerInterval, []byte(`{"batch_size": 10}`))
	assert.Error(t, err)

	// No trigger payload can reach the trading controls.
	_, err = ApplySettings(procconfig.TriggerRSS, []byte(`{"max_amount_per_trade": 99999}`))
	assert.Error(t, err)
}

func TestApplySettingsRSSIncludesFluxKnobs(t *testing.T) {
	u, err := ApplySettings(procconfig.TriggerRSS, []byte(`{"batch_size": 10, "min_confidence": 0.8}`))
	require.NoError(t, err)

	require.NotNil(t, u.RSSFlux)
	require.NotNil(t, u.RSSFlux.BatchSize)
	assert.Equal(t, 10, *u.RSSFlux.BatchSize)
	require.NotNil(t, u.RSSFlux.MinConfidence)
	assert.Equal(t, 0.8, *u.RSSFlux.MinConfidence)

	// Round-trip through the config service leaves other sections unchanged.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := procconfig.NewService(filepath.Join(t.TempDir(), "runtime.json"), logger)
	before := svc.Get()

	after, err := svc.Update(u)
	require.NoError(t, err)
	assert.Equal(t, before.TradingControls, after.TradingControls)
	assert.Equal(t, before.Process, after.Process)
	assert.Equal(t, 10, after.RSSFlux.BatchSize)
}
