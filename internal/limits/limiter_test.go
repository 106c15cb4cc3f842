package limits

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/procconfig"
)

func TestComputeCaps(t *testing.T) {
	tc := procconfig.TradingControls{MaxAmountPerTrade: 500, MaxExposureTotal: 5000}
	ps := procconfig.ProcessSettings{MaxAIWeightedPerTrade: 0.1, MaxAIWeightedDaily: 0.5}

	caps := ComputeCaps(tc, ps)
	assert.InDelta(t, 50.0, caps.PerTrade, 1e-9)
	assert.InDelta(t, 2500.0, caps.Daily, 1e-9)
}

func TestCheckPerTradeCap(t *testing.T) {
	caps := Caps{PerTrade: 50, Daily: 5000}

	err := Check(100*1.0, 0, caps)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "exceeds AI-weighted per-trade limit")

	assert.NoError(t, Check(50, 0, caps))
}

func TestCheckDailyCap(t *testing.T) {
	caps := Caps{PerTrade: 100, Daily: 250}

	// Below the cap succeeds regardless of call order within the day.
	assert.NoError(t, Check(100, 100, caps))

	err := Check(100, 200, caps)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "exceeds AI-weighted daily limit")
}

func TestDailyTotal(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	trades := []domain.ExchangeTrade{
		{Timestamp: "2026-03-14T08:00:00Z", TotalValue: 40},
		{Timestamp: "2026-03-14T12:30:00Z", Price: 0.5, Size: 60}, // notional 30
		{Timestamp: "2026-03-13T23:59:00Z", TotalValue: 999},      // yesterday
		{Timestamp: "not-a-timestamp", TotalValue: 500},           // skipped
		{Timestamp: "", TotalValue: 500},                          // skipped
	}

	assert.InDelta(t, 70.0, DailyTotal(trades, now), 1e-9)
}

func TestDailyTotalParsesEpochTimestamps(t *testing.T) {
	// The exchange trade history reports match_time as epoch seconds.
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC).Unix()
	yesterday := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC).Unix()

	trades := []domain.ExchangeTrade{
		{Timestamp: strconv.FormatInt(morning, 10), TotalValue: 40},
		{Timestamp: strconv.FormatInt(yesterday, 10), TotalValue: 999},
		{Timestamp: "2026-03-14T12:00:00Z", TotalValue: 10},
	}

	assert.InDelta(t, 50.0, DailyTotal(trades, now), 1e-9)
}

func TestDailyTotalCrossesUTCDateBoundary(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 10, 0, 0, time.UTC)
	trades := []domain.ExchangeTrade{
		// 01:30 in a +02:00 offset is 23:30 UTC the previous day.
		{Timestamp: "2026-03-14T01:30:00+02:00", TotalValue: 10},
		{Timestamp: "2026-03-14T01:00:00Z", TotalValue: 5},
	}
	assert.InDelta(t, 5.0, DailyTotal(trades, now), 1e-9)
}
