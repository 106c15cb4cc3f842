package watchlist

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/store/memory"
)

func newTestService() (*Service, *memory.WatchlistStore) {
	store := memory.NewWatchlistStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, memory.NewSignalBus(), logger), store
}

func TestAddPositionAppliesDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pos, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "sol",
		Quantity:    10,
		EntryPrice:  100,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, pos.PositionID)
	assert.Equal(t, "SOL", pos.TokenSymbol)
	assert.Equal(t, DefaultStopLossPct, pos.StopLossPct)
	assert.Equal(t, DefaultTakeProfitPct, pos.TakeProfitPct)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
}

func TestAddPositionValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, AddPositionInput{Quantity: 1, EntryPrice: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "SOL", Quantity: 0, EntryPrice: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "SOL", Quantity: 1, EntryPrice: 1, StopLossPct: 0.05})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEvaluateTriggersStopLossFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pos, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "SOL",
		Quantity:    5,
		EntryPrice:  100,
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "SOL", 90))

	fired, err := svc.EvaluateTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)

	n := fired[0]
	assert.Equal(t, domain.TriggerStopLoss, n.TriggerType)
	assert.Equal(t, pos.PositionID, n.PositionID)
	assert.InDelta(t, -0.10, n.PctChange, 1e-9)

	// The firing does not close the position.
	got, err := svc.GetPosition(ctx, pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
}

func TestEvaluateTriggersTakeProfitInclusive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "ETH",
		Quantity:    2,
		EntryPrice:  100,
	})
	require.NoError(t, err)

	// pct_change exactly equals the take-profit threshold.
	require.NoError(t, svc.UpdatePrice(ctx, "ETH", 112))

	fired, err := svc.EvaluateTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.TriggerTakeProfit, fired[0].TriggerType)
	assert.InDelta(t, 0.12, fired[0].PctChange, 1e-9)
}

func TestEvaluateTriggersSkipsUnevaluablePositions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Zero entry price: stored but never evaluated.
	_, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "FREE",
		Quantity:    1,
		EntryPrice:  0,
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "FREE", 50))

	// No recorded price.
	_, err = svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "GHOST",
		Quantity:    1,
		EntryPrice:  10,
	})
	require.NoError(t, err)

	// Closed position, even with a deep loss.
	closed, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol: "DONE",
		Quantity:    1,
		EntryPrice:  100,
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "DONE", 10))
	_, err = svc.ClosePosition(ctx, closed.PositionID, "manual exit")
	require.NoError(t, err)

	fired, err := svc.EvaluateTriggers(ctx)
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestEvaluateTriggersAtMostOnePerPosition(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, AddPositionInput{
		TokenSymbol:   "ODD",
		Quantity:      1,
		EntryPrice:    100,
		StopLossPct:   -0.01,
		TakeProfitPct: 0.0, // falls back to default 0.12
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "ODD", 80))

	fired, err := svc.EvaluateTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.TriggerStopLoss, fired[0].TriggerType)
}

func TestEvaluateGlobalROI(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	// invested = 200, current value = 230, roi = 0.15.
	_, err := svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "AAA", Quantity: 10, EntryPrice: 10})
	require.NoError(t, err)
	_, err = svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "BBB", Quantity: 10, EntryPrice: 10})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "AAA", 12))
	require.NoError(t, svc.UpdatePrice(ctx, "BBB", 11))

	res, err := svc.EvaluateGlobalROI(ctx, GlobalROIOptions{
		Enabled:          true,
		ThresholdPct:     0.05,
		FastThresholdPct: 0.15,
	})
	require.NoError(t, err)

	assert.True(t, res.Triggered)
	assert.InDelta(t, 0.15, res.GlobalROI, 1e-9)
	assert.InDelta(t, 0.15, res.Delta, 1e-9)
	assert.Equal(t, ModeFastDecision, res.Mode)

	stored, ok, err := store.GetGlobalROI(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.15, stored, 1e-9)

	// Second pass with unchanged prices: delta is since last check, so no fire.
	res, err = svc.EvaluateGlobalROI(ctx, GlobalROIOptions{
		Enabled:          true,
		ThresholdPct:     0.05,
		FastThresholdPct: 0.15,
	})
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.InDelta(t, 0.0, res.Delta, 1e-9)
}

func TestEvaluateGlobalROIPersistsWhenNotTriggered(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "AAA", Quantity: 10, EntryPrice: 10})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "AAA", 10.2))

	res, err := svc.EvaluateGlobalROI(ctx, GlobalROIOptions{
		Enabled:          true,
		ThresholdPct:     0.05,
		FastThresholdPct: 0.15,
	})
	require.NoError(t, err)
	assert.False(t, res.Triggered)

	stored, ok, err := store.GetGlobalROI(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.02, stored, 1e-9)
}

func TestEvaluateGlobalROIPriceFallsBackToEntry(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// No price recorded: current value equals invested, roi 0.
	_, err := svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "AAA", Quantity: 10, EntryPrice: 10})
	require.NoError(t, err)

	res, err := svc.EvaluateGlobalROI(ctx, GlobalROIOptions{Enabled: true, ThresholdPct: 0.05})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.GlobalROI, 1e-9)
	assert.InDelta(t, 100.0, res.Invested, 1e-9)
	assert.InDelta(t, 100.0, res.CurrentValue, 1e-9)
}

func TestEvaluateGlobalROIDisabledDoesNotMutate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "AAA", Quantity: 10, EntryPrice: 10})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePrice(ctx, "AAA", 20))

	res, err := svc.EvaluateGlobalROI(ctx, GlobalROIOptions{Enabled: false, ThresholdPct: 0.01})
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.False(t, res.Triggered)

	_, ok, err := store.GetGlobalROI(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosePositionKeptForAudit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pos, err := svc.AddPosition(ctx, AddPositionInput{TokenSymbol: "SOL", Quantity: 1, EntryPrice: 100})
	require.NoError(t, err)

	closed, err := svc.ClosePosition(ctx, pos.PositionID, "stop loss hit")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, "stop loss hit", closed.CloseReason)

	// Closing again is a no-op and keeps the original reason.
	again, err := svc.ClosePosition(ctx, pos.PositionID, "other reason")
	require.NoError(t, err)
	assert.Equal(t, "stop loss hit", again.CloseReason)

	all, err := svc.ListPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	open, err := svc.ListPositions(ctx, domain.PositionStatusOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestNotificationListCapped(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	for i := 0; i < domain.MaxNotifications+25; i++ {
		require.NoError(t, store.PushNotification(ctx, domain.Notification{
			NotificationID: "n",
			TriggerType:    domain.TriggerStopLoss,
		}))
	}

	all, err := svc.Notifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, domain.MaxNotifications)
}
