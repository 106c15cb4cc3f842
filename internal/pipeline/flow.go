package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler types a TriggerFlow can declare.
const (
	SchedulerInterval = "interval"
	SchedulerManual   = "manual"
	SchedulerEvent    = "event"
)

// maxFlowHistory bounds the retained flow run history.
const maxFlowHistory = 500

// FlowRequest carries the trigger name and free-form parameters of a flow
// invocation.
type FlowRequest struct {
	Trigger string         `json:"trigger"`
	Params  map[string]any `json:"params,omitempty"`
}

// FlowResult is the normalized outcome of one flow run.
type FlowResult struct {
	RunID       string         `json:"run_id"`
	FlowID      string         `json:"flow_id"`
	Trigger     string         `json:"trigger"`
	Status      string         `json:"status"`
	Detail      map[string]any `json:"detail,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// TriggerFlow is a runnable pipeline capability discoverable through the
// manager. Metadata is a pure projection of the flow's declared attributes,
// consumed by UI discovery endpoints.
type TriggerFlow interface {
	ID() string
	SchedulerType() string
	Description() string
	Metadata() map[string]any
	Resolve(ctx context.Context, req FlowRequest) (FlowResult, error)
}

// flowRunner holds the manager's flow registry and bounded run history.
type flowRunner struct {
	mu      sync.RWMutex
	flows   map[string]TriggerFlow
	history []FlowResult // newest first
}

func newFlowRunner() *flowRunner {
	return &flowRunner{flows: make(map[string]TriggerFlow)}
}

func (fr *flowRunner) register(f TriggerFlow) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.flows[f.ID()] = f
}

func (fr *flowRunner) get(id string) (TriggerFlow, bool) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	f, ok := fr.flows[id]
	return f, ok
}

func (fr *flowRunner) list() []TriggerFlow {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	out := make([]TriggerFlow, 0, len(fr.flows))
	for _, f := range fr.flows {
		out = append(out, f)
	}
	return out
}

func (fr *flowRunner) record(res FlowResult) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.history = append([]FlowResult{res}, fr.history...)
	if len(fr.history) > maxFlowHistory {
		fr.history = fr.history[:maxFlowHistory]
	}
}

func (fr *flowRunner) recent(limit int) []FlowResult {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	if limit <= 0 || limit > len(fr.history) {
		limit = len(fr.history)
	}
	out := make([]FlowResult, limit)
	copy(out, fr.history[:limit])
	return out
}

// run resolves a flow by id, stamping timestamps and recording the result
// (including failures) in the history ring.
func (fr *flowRunner) run(ctx context.Context, flowID string, req FlowRequest) (FlowResult, error) {
	f, ok := fr.get(flowID)
	if !ok {
		return FlowResult{}, fmt.Errorf("pipeline: unknown flow %q", flowID)
	}

	started := time.Now().UTC()
	res, err := f.Resolve(ctx, req)

	res.RunID = uuid.New().String()
	res.FlowID = flowID
	res.Trigger = req.Trigger
	res.StartedAt = started
	res.CompletedAt = time.Now().UTC()
	if err != nil {
		res.Status = "failed"
		res.Error = err.Error()
	}

	fr.record(res)
	return res, err
}
