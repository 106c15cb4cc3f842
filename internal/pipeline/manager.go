// Package pipeline contains the Polymarket scan/batch manager: it decides
// when to fetch markets, which candidates are worth analyzing, routes
// batches to the agent workforce, and admits the resulting decisions to the
// execution gate under pipeline-level limits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/procconfig"
	"github.com/quantleap/polyflux/internal/service"
)

// Batch status values reported by ProcessMarketBatch.
const (
	BatchCompleted    = "completed"
	BatchInProgress   = "in_progress"
	BatchWaiting      = "waiting"
	BatchAccumulating = "accumulating"
	BatchDisabled     = "disabled"
	BatchNoCandidates = "no_candidates"
)

// Opportunity filter bounds. Candidates outside these are never dispatched.
const (
	minCandidateVolume    = 100.0
	minCandidateLiquidity = 40.0
	maxCandidateSpread    = 5.0
	minTimeToClose        = time.Hour
	maxTimeToClose        = 240 * time.Hour
	maxBatchCandidates    = 20
)

// scanLockKey guards the batch cycle; TTL covers a slow workforce round.
const (
	scanLockKey = "polymarket:scan"
	scanLockTTL = 10 * time.Minute
)

// FlowMarketBatch is the id of the manager's batch flow.
const FlowMarketBatch = "market_batch"

// TaskFlowBatchOrchestration gates workforce dispatch.
const TaskFlowBatchOrchestration = "batch_orchestration"

// Config carries the manager's scan knobs, derived from the runtime config.
type Config struct {
	ScanInterval    time.Duration
	BatchSize       int
	ReviewThreshold int
	MaxCache        int
	TriggerType     string
	IntervalHours   int
	MaxTradesPerDay int
	MinConfidence   float64
	CachePath       string
}

// ConfigFromSnapshot derives the manager config from a runtime snapshot.
func ConfigFromSnapshot(snap procconfig.Snapshot, cachePath string) Config {
	return Config{
		ScanInterval:    time.Duration(snap.RSSFlux.ScanIntervalSeconds) * time.Second,
		BatchSize:       snap.RSSFlux.BatchSize,
		ReviewThreshold: snap.RSSFlux.ReviewThreshold,
		MaxCache:        snap.RSSFlux.MaxCache,
		TriggerType:     snap.TriggerConfig.TriggerType,
		IntervalHours:   snap.TriggerConfig.IntervalHours,
		MaxTradesPerDay: snap.TradingControls.MaxTradesPerDay,
		MinConfidence:   snap.RSSFlux.MinConfidence,
		CachePath:       cachePath,
	}
}

// BatchReport is the outcome of one ProcessMarketBatch call.
type BatchReport struct {
	Status     string `json:"status"`
	Trigger    string `json:"trigger"`
	Fetched    int    `json:"fetched"`
	CacheSize  int    `json:"cache_size"`
	Pending    int    `json:"pending"`
	Dispatched int    `json:"dispatched"`
	Executed   int    `json:"executed"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// Manager orchestrates the scan/batch cycle. The runtime config service is
// consulted on every cycle so trigger, flux, and task-flow changes take
// effect without a restart.
type Manager struct {
	cfg       *procconfig.Service
	feed      domain.MarketFeed
	workforce domain.Workforce
	gate      *service.TradeService
	decisions domain.DecisionStore
	locks     domain.LockManager
	cache     *FeedCache
	flows     *flowRunner
	logger    *slog.Logger

	// scan-cycle state; the scan lock serializes writers, stateMu covers
	// concurrent Status readers
	stateMu     sync.Mutex
	day         string
	tradesToday int
	lastScan    time.Time
	lastTrigger string
}

// NewManager wires the manager and registers its market_batch flow.
func NewManager(
	cfg *procconfig.Service,
	feed domain.MarketFeed,
	workforce domain.Workforce,
	gate *service.TradeService,
	decisions domain.DecisionStore,
	locks domain.LockManager,
	cachePath string,
	logger *slog.Logger,
) *Manager {
	snap := cfg.Get()
	m := &Manager{
		cfg:       cfg,
		feed:      feed,
		workforce: workforce,
		gate:      gate,
		decisions: decisions,
		locks:     locks,
		cache:     NewFeedCache(cachePath, snap.RSSFlux.MaxCache, logger),
		flows:     newFlowRunner(),
		logger:    logger,
	}
	m.flows.register(&marketBatchFlow{m: m})
	return m
}

// Run drives the scan loop until ctx is cancelled. Each tick runs the
// market_batch flow when the configured trigger type is interval; manual and
// rss triggers wait for external invocations instead.
func (m *Manager) Run(ctx context.Context) error {
	snap := m.cfg.Get()
	interval := time.Duration(snap.RSSFlux.ScanIntervalSeconds) * time.Second

	m.logger.Info("polymarket manager starting",
		slog.Duration("scan_interval", interval),
		slog.String("trigger_type", snap.TriggerConfig.TriggerType),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("polymarket manager stopped")
			return ctx.Err()
		case <-ticker.C:
			interval = m.onScanTick(ctx, ticker, interval)
		}
	}
}

// onScanTick handles one scan loop tick and returns the interval the ticker
// is armed with afterwards. The ticker is re-armed when scan_interval_seconds
// changed, so flux updates apply without a restart.
func (m *Manager) onScanTick(ctx context.Context, ticker *time.Ticker, interval time.Duration) time.Duration {
	snap := m.cfg.Get()
	if next := time.Duration(snap.RSSFlux.ScanIntervalSeconds) * time.Second; next != interval {
		interval = next
		ticker.Reset(interval)
		m.logger.Info("scan interval updated", slog.Duration("scan_interval", interval))
	}
	if snap.TriggerConfig.TriggerType != procconfig.TriggerInterval {
		return interval
	}
	if _, err := m.RunFlow(ctx, FlowMarketBatch, FlowRequest{Trigger: procconfig.TriggerInterval}); err != nil {
		m.logger.Error("scheduled batch failed", slog.String("error", err.Error()))
	}
	return interval
}

// RunFlow resolves a registered flow and records the run in the history.
func (m *Manager) RunFlow(ctx context.Context, flowID string, req FlowRequest) (FlowResult, error) {
	return m.flows.run(ctx, flowID, req)
}

// FlowHistory returns recent flow runs, newest first.
func (m *Manager) FlowHistory(limit int) []FlowResult {
	return m.flows.recent(limit)
}

// ProcessMarketBatch runs one scan cycle: fetch, cache, filter, dispatch,
// admit, execute. trigger names what initiated the cycle; a manual trigger
// bypasses the interval throttle and the accumulation threshold. A cycle
// already in progress yields status in_progress, not an error.
func (m *Manager) ProcessMarketBatch(ctx context.Context, trigger string) (BatchReport, error) {
	report := BatchReport{Trigger: trigger}

	unlock, err := m.locks.Acquire(ctx, scanLockKey, scanLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			report.Status = BatchInProgress
			return report, nil
		}
		return report, fmt.Errorf("pipeline: acquire scan lock: %w", err)
	}
	defer unlock()

	snap := m.cfg.Get()
	now := time.Now().UTC()
	manual := trigger == procconfig.TriggerManual

	// Day rollover resets the per-day trade counter.
	m.stateMu.Lock()
	today := now.Format("2006-01-02")
	if m.day != today {
		m.day = today
		m.tradesToday = 0
	}
	lastScan := m.lastScan
	m.stateMu.Unlock()

	// Interval throttle: scheduled cycles respect interval_hours between
	// batches even though the scan loop ticks much more often.
	throttle := time.Duration(snap.TriggerConfig.IntervalHours) * time.Hour
	if !manual && !lastScan.IsZero() && now.Sub(lastScan) < throttle {
		report.Status = BatchWaiting
		report.CacheSize = m.cache.Size()
		return report, nil
	}

	markets, err := m.feed.LatestMarkets(ctx, snap.RSSFlux.BatchSize)
	if err != nil {
		return report, fmt.Errorf("pipeline: fetch markets: %w", err)
	}
	report.Fetched = len(markets)

	m.cache.Add(markets)
	m.cache.Prune(now)
	report.CacheSize = m.cache.Size()

	if !manual && !m.cache.Ready(snap.RSSFlux.ReviewThreshold) {
		report.Status = BatchAccumulating
		report.Pending = len(m.cache.Pending())
		return report, nil
	}

	candidates := filterMarkets(m.cache.Pending(), now)
	report.Pending = len(candidates)
	if len(candidates) == 0 {
		report.Status = BatchNoCandidates
		m.noteScan(now, trigger)
		return report, nil
	}

	// Task-flow gate, checked at dispatch time so a toggle takes effect on
	// the very next cycle.
	if !snap.TaskFlows[TaskFlowBatchOrchestration] {
		report.Status = BatchDisabled
		return report, nil
	}

	task := domain.Task{
		TaskID:      uuid.New().String(),
		BatchID:     uuid.New().String(),
		Description: fmt.Sprintf("analyze %d polymarket candidates", len(candidates)),
		Markets:     candidates,
	}
	result, err := m.workforce.Process(ctx, task)
	if err != nil {
		return report, fmt.Errorf("pipeline: workforce dispatch: %w", err)
	}
	report.Dispatched = len(candidates)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	m.cache.MarkProcessed(ids)

	executed, skipped := m.admitDecisions(ctx, snap, result.Decisions)
	report.Executed = executed
	report.Skipped = skipped
	report.Status = BatchCompleted
	m.noteScan(now, trigger)

	m.logger.Info("market batch complete",
		slog.String("trigger", trigger),
		slog.Int("fetched", report.Fetched),
		slog.Int("dispatched", report.Dispatched),
		slog.Int("executed", executed),
		slog.Int("skipped", skipped),
	)
	return report, nil
}

// admitDecisions applies pipeline-level admission control and pushes
// surviving decisions through the execution gate. Low-confidence decisions
// are recorded as skips; once the daily trade count is exhausted the rest of
// the batch is skipped too. These gates hold for every trigger, manual
// included.
func (m *Manager) admitDecisions(ctx context.Context, snap procconfig.Snapshot, decisions []domain.TaskDecision) (executed, skipped int) {
	for _, d := range decisions {
		rec := domain.Decision{
			DecisionID: uuid.New().String(),
			MarketID:   d.MarketID,
			BetID:      d.BetID,
			Outcome:    d.Outcome,
			Confidence: d.Confidence,
			Reasoning:  d.Reasoning,
			CreatedAt:  time.Now().UTC(),
		}

		switch {
		case d.Confidence < snap.RSSFlux.MinConfidence:
			rec.Action = "skip"
			rec.Reasoning = fmt.Sprintf("confidence %.2f below minimum %.2f", d.Confidence, snap.RSSFlux.MinConfidence)
			skipped++
		case m.tradesTodayCount() >= snap.TradingControls.MaxTradesPerDay:
			rec.Action = "skip"
			rec.Reasoning = fmt.Sprintf("daily trade count %d exhausted", snap.TradingControls.MaxTradesPerDay)
			skipped++
		default:
			tradeID, err := m.executeDecision(ctx, d)
			if err != nil {
				rec.Action = "skip"
				rec.Reasoning = err.Error()
				skipped++
				m.logger.Warn("decision execution failed",
					slog.String("market_id", d.MarketID),
					slog.String("error", err.Error()),
				)
			} else {
				rec.Action = "execute"
				rec.TradeID = tradeID
				executed++
				m.noteTradeExecuted()
			}
		}

		if err := m.decisions.Insert(ctx, rec); err != nil {
			m.logger.Warn("record decision failed",
				slog.String("market_id", d.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return executed, skipped
}

// executeDecision turns a workforce decision into a sized proposal and
// executes it through the gate's locked quote path.
func (m *Manager) executeDecision(ctx context.Context, d domain.TaskDecision) (string, error) {
	p, err := m.gate.Propose(ctx, service.ProposeRequest{
		MarketID:   d.MarketID,
		BetID:      d.BetID,
		Outcome:    d.Outcome,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
	})
	if err != nil {
		return "", err
	}
	tr, err := m.gate.Execute(ctx, service.ExecuteRequest{ProposalID: p.ProposalID})
	if err != nil {
		return "", err
	}
	return tr.TradeID, nil
}

// filterMarkets keeps candidates worth analyzing: enough volume and
// liquidity, a tight spread, and a close time between one hour and ten days
// out. Survivors are scored and the top ones returned.
func filterMarkets(markets []domain.Market, now time.Time) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, mk := range markets {
		if mk.Closed || mk.Volume24h < minCandidateVolume ||
			mk.LiquidityScore < minCandidateLiquidity || mk.BidAskSpread > maxCandidateSpread {
			continue
		}
		if mk.CloseTime == nil {
			continue
		}
		ttc := mk.CloseTime.Sub(now)
		if ttc < minTimeToClose || ttc > maxTimeToClose {
			continue
		}

		mk.FilterScore = mk.Volume24h/1000 + mk.LiquidityScore + (maxCandidateSpread - mk.BidAskSpread)
		out = append(out, mk)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FilterScore > out[j].FilterScore })
	if len(out) > maxBatchCandidates {
		out = out[:maxBatchCandidates]
	}
	return out
}

// StatusReport is the structural snapshot served to monitoring endpoints.
type StatusReport struct {
	Pipeline    string           `json:"pipeline"`
	System      string           `json:"system"`
	TriggerType string           `json:"trigger_type"`
	TradesToday int              `json:"trades_today"`
	Limits      LimitsStatus     `json:"limits"`
	CacheSize   int              `json:"cache_size"`
	LastScan    time.Time        `json:"last_scan"`
	LastTrigger string           `json:"last_trigger,omitempty"`
	TaskFlows   map[string]bool  `json:"task_flows"`
	Flows       []map[string]any `json:"flows"`
	HistorySize int              `json:"history_size"`
}

// LimitsStatus reports the pipeline admission limits in effect.
type LimitsStatus struct {
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	MinConfidence   float64 `json:"min_confidence"`
	BatchSize       int     `json:"batch_size"`
	ReviewThreshold int     `json:"review_threshold"`
}

func (m *Manager) noteScan(at time.Time, trigger string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.lastScan = at
	m.lastTrigger = trigger
}

func (m *Manager) noteTradeExecuted() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.tradesToday++
}

func (m *Manager) tradesTodayCount() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.tradesToday
}

// Status returns the manager's structural snapshot.
func (m *Manager) Status() StatusReport {
	snap := m.cfg.Get()

	flowMeta := make([]map[string]any, 0)
	for _, f := range m.flows.list() {
		flowMeta = append(flowMeta, f.Metadata())
	}

	m.stateMu.Lock()
	tradesToday := m.tradesToday
	lastScan := m.lastScan
	lastTrigger := m.lastTrigger
	m.stateMu.Unlock()

	return StatusReport{
		Pipeline:    "polymarket",
		System:      snap.Process.ActiveFlux,
		TriggerType: snap.TriggerConfig.TriggerType,
		TradesToday: tradesToday,
		Limits: LimitsStatus{
			MaxTradesPerDay: snap.TradingControls.MaxTradesPerDay,
			MinConfidence:   snap.RSSFlux.MinConfidence,
			BatchSize:       snap.RSSFlux.BatchSize,
			ReviewThreshold: snap.RSSFlux.ReviewThreshold,
		},
		CacheSize:   m.cache.Size(),
		LastScan:    lastScan,
		LastTrigger: lastTrigger,
		TaskFlows:   snap.TaskFlows,
		Flows:       flowMeta,
		HistorySize: len(m.flows.recent(0)),
	}
}

// UpdateTaskFlows toggles task flows in the runtime config. The change is
// picked up at the next dispatch without a restart.
func (m *Manager) UpdateTaskFlows(flows map[string]bool) (map[string]bool, error) {
	snap, err := m.cfg.Update(procconfig.Update{TaskFlows: flows})
	if err != nil {
		return nil, fmt.Errorf("pipeline: update task flows: %w", err)
	}
	return snap.TaskFlows, nil
}

// marketBatchFlow adapts ProcessMarketBatch to the TriggerFlow interface.
type marketBatchFlow struct {
	m *Manager
}

func (f *marketBatchFlow) ID() string            { return FlowMarketBatch }
func (f *marketBatchFlow) SchedulerType() string { return SchedulerInterval }
func (f *marketBatchFlow) Description() string {
	return "fetch, filter and dispatch a polymarket candidate batch"
}

func (f *marketBatchFlow) Metadata() map[string]any {
	return map[string]any{
		"id":             f.ID(),
		"scheduler_type": f.SchedulerType(),
		"description":    f.Description(),
	}
}

func (f *marketBatchFlow) Resolve(ctx context.Context, req FlowRequest) (FlowResult, error) {
	report, err := f.m.ProcessMarketBatch(ctx, req.Trigger)
	if err != nil {
		return FlowResult{}, err
	}
	return FlowResult{
		Status: report.Status,
		Detail: map[string]any{
			"fetched":    report.Fetched,
			"cache_size": report.CacheSize,
			"pending":    report.Pending,
			"dispatched": report.Dispatched,
			"executed":   report.Executed,
			"skipped":    report.Skipped,
		},
	}, nil
}
