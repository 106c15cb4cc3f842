package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/procconfig"
	"github.com/quantleap/polyflux/internal/service"
	"github.com/quantleap/polyflux/internal/store/memory"
)

type fakeFeed struct {
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeFeed) LatestMarkets(_ context.Context, _ int) ([]domain.Market, error) {
	f.calls++
	return f.markets, f.err
}

type fakeWorkforce struct {
	result domain.TaskResult
	err    error
	tasks  []domain.Task
}

func (f *fakeWorkforce) Process(_ context.Context, task domain.Task) (domain.TaskResult, error) {
	f.tasks = append(f.tasks, task)
	return f.result, f.err
}

type stubExchange struct{}

func (stubExchange) Buy(_ context.Context, _ string, _ int, _ float64) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true, OrderID: "ord"}, nil
}

func (stubExchange) Sell(_ context.Context, _ string, _ int, _ float64) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true, OrderID: "ord"}, nil
}

func (stubExchange) MidPrice(_ context.Context, _ string) (float64, error) { return 0.5, nil }

func (stubExchange) OutcomeTokenIDs(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (stubExchange) Trades(_ context.Context) ([]domain.ExchangeTrade, error) { return nil, nil }

func (stubExchange) CancelOrder(_ context.Context, _ string) error { return nil }

type managerEnv struct {
	manager   *Manager
	cfg       *procconfig.Service
	feed      *fakeFeed
	workforce *fakeWorkforce
	locks     *memory.LockManager
	decisions *memory.DecisionStore
}

func newManagerEnv(t *testing.T) *managerEnv {
	t.Helper()
	logger := discardLogger()
	dir := t.TempDir()

	cfg := procconfig.NewService(filepath.Join(dir, "runtime.json"), logger)
	gate := service.NewTradeService(
		memory.NewTradeStore(), memory.NewProposalStore(), stubExchange{},
		cfg, memory.NewSignalBus(), memory.NewAuditStore(), logger,
	)

	env := &managerEnv{
		cfg:       cfg,
		feed:      &fakeFeed{},
		workforce: &fakeWorkforce{},
		locks:     memory.NewLockManager(),
		decisions: memory.NewDecisionStore(),
	}
	env.manager = NewManager(
		cfg, env.feed, env.workforce, gate, env.decisions,
		env.locks, filepath.Join(dir, "feedcache.json"), logger,
	)
	return env
}

func TestProcessMarketBatchCompletes(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour), candidate("m2", 48*time.Hour)}
	env.workforce.result = domain.TaskResult{
		Status: "completed",
		Decisions: []domain.TaskDecision{
			{MarketID: "m1", Outcome: "yes", Confidence: 0.9},
			{MarketID: "m2", Outcome: "no", Confidence: 0.3},
		},
	}

	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, BatchCompleted, report.Status)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 1, report.Skipped)

	require.Len(t, env.workforce.tasks, 1)
	assert.Len(t, env.workforce.tasks[0].Markets, 2)

	recs, err := env.decisions.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byAction := map[string]int{}
	for _, d := range recs {
		byAction[d.Action]++
	}
	assert.Equal(t, 1, byAction["execute"])
	assert.Equal(t, 1, byAction["skip"])
}

func TestProcessMarketBatchAccumulatesBelowThreshold(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	// Default review threshold is 25; two candidates are not enough for a
	// scheduled trigger.
	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour), candidate("m2", 48*time.Hour)}

	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerInterval)
	require.NoError(t, err)
	assert.Equal(t, BatchAccumulating, report.Status)
	assert.Empty(t, env.workforce.tasks)

	// A manual trigger bypasses the threshold.
	env.workforce.result = domain.TaskResult{Status: "completed"}
	report, err = env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, report.Status)
	require.Len(t, env.workforce.tasks, 1)
}

func TestProcessMarketBatchBusyLock(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	unlock, err := env.locks.Acquire(ctx, scanLockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, BatchInProgress, report.Status)
	assert.Equal(t, 0, env.feed.calls)
}

func TestTaskFlowToggleCheckedAtDispatch(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour)}
	env.workforce.result = domain.TaskResult{Status: "completed"}

	flows, err := env.manager.UpdateTaskFlows(map[string]bool{TaskFlowBatchOrchestration: false})
	require.NoError(t, err)
	assert.False(t, flows[TaskFlowBatchOrchestration])

	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, BatchDisabled, report.Status)
	assert.Empty(t, env.workforce.tasks)

	// Re-enabling takes effect on the next cycle, no restart involved.
	_, err = env.manager.UpdateTaskFlows(map[string]bool{TaskFlowBatchOrchestration: true})
	require.NoError(t, err)

	report, err = env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, report.Status)
	require.Len(t, env.workforce.tasks, 1)
}

func TestMaxTradesPerDayStopsExecution(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	one := 1
	_, err := env.cfg.Update(procconfig.Update{
		TradingControls: &procconfig.TradingControlsUpdate{MaxTradesPerDay: &one},
	})
	require.NoError(t, err)

	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour), candidate("m2", 48*time.Hour)}
	env.workforce.result = domain.TaskResult{
		Status: "completed",
		Decisions: []domain.TaskDecision{
			{MarketID: "m1", Outcome: "yes", Confidence: 0.9},
			{MarketID: "m2", Outcome: "yes", Confidence: 0.9},
		},
	}

	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, env.manager.Status().TradesToday)
}

func TestIntervalThrottle(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour)}
	env.workforce.result = domain.TaskResult{Status: "completed"}

	_, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)

	// Within interval_hours of the last scan a scheduled cycle waits.
	report, err := env.manager.ProcessMarketBatch(ctx, procconfig.TriggerInterval)
	require.NoError(t, err)
	assert.Equal(t, BatchWaiting, report.Status)

	// Manual cycles are not throttled.
	env.feed.markets = []domain.Market{candidate("m2", 48*time.Hour)}
	report, err = env.manager.ProcessMarketBatch(ctx, procconfig.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, report.Status)
}

func TestScanTickRearmsOnIntervalChange(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	// Manual trigger type keeps the tick from launching a batch.
	manual := procconfig.TriggerManual
	_, err := env.cfg.Update(procconfig.Update{
		TriggerConfig: &procconfig.TriggerUpdate{TriggerType: &manual},
	})
	require.NoError(t, err)

	interval := time.Duration(env.cfg.Get().RSSFlux.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Unchanged config leaves the ticker alone.
	assert.Equal(t, interval, env.manager.onScanTick(ctx, ticker, interval))

	sixty := 60
	_, err = env.cfg.Update(procconfig.Update{
		RSSFlux: &procconfig.FluxUpdate{ScanIntervalSeconds: &sixty},
	})
	require.NoError(t, err)

	got := env.manager.onScanTick(ctx, ticker, interval)
	assert.Equal(t, 60*time.Second, got)
	assert.Equal(t, 0, env.feed.calls)
}

func TestRunFlowRecordsHistory(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()

	env.feed.markets = []domain.Market{candidate("m1", 48*time.Hour)}
	env.workforce.result = domain.TaskResult{Status: "completed"}

	res, err := env.manager.RunFlow(ctx, FlowMarketBatch, FlowRequest{Trigger: procconfig.TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.StartedAt.IsZero())

	history := env.manager.FlowHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, FlowMarketBatch, history[0].FlowID)

	_, err = env.manager.RunFlow(ctx, "nope", FlowRequest{})
	assert.Error(t, err)
}

func TestFilterMarketsBounds(t *testing.T) {
	now := time.Now().UTC()

	thin := candidate("thin", 48*time.Hour)
	thin.Volume24h = 50
	illiquid := candidate("illiquid", 48*time.Hour)
	illiquid.LiquidityScore = 10
	wide := candidate("wide", 48*time.Hour)
	wide.BidAskSpread = 8
	closingSoon := candidate("soon", 30*time.Minute)
	farOut := candidate("far", 300*24*time.Hour)
	noClose := candidate("noclose", 48*time.Hour)
	noClose.CloseTime = nil
	good := candidate("good", 48*time.Hour)

	out := filterMarkets([]domain.Market{thin, illiquid, wide, closingSoon, farOut, noClose, good}, now)
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].ID)
	assert.Greater(t, out[0].FilterScore, 0.0)
}

func TestFilterMarketsTopTwenty(t *testing.T) {
	now := time.Now().UTC()

	markets := make([]domain.Market, 30)
	for i := range markets {
		m := candidate(fmt.Sprintf("m%d", i), 48*time.Hour)
		m.Volume24h = float64(1000 * (i + 1))
		markets[i] = m
	}

	out := filterMarkets(markets, now)
	require.Len(t, out, maxBatchCandidates)
	// Highest volume first.
	assert.GreaterOrEqual(t, out[0].Volume24h, out[len(out)-1].Volume24h)
}
