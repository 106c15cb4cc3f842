package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantleap/polyflux/internal/pipeline"
)

// PipelineHandler serves the scan manager endpoints.
type PipelineHandler struct {
	manager *pipeline.Manager
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler over the scan manager.
func NewPipelineHandler(manager *pipeline.Manager, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		manager: manager,
		logger:  logHandler(logger, "pipeline"),
	}
}

// Status returns the manager's consolidated status report.
// GET /api/pipeline/status
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Scan runs one manual batch cycle. Manual scans bypass the interval
// throttle and the accumulation threshold but still pass admission control.
// POST /api/pipeline/scan
func (h *PipelineHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.ProcessMarketBatch(r.Context(), "manual")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// UpdateTaskFlows toggles named task flows on or off.
// PUT /api/pipeline/task-flows
func (h *PipelineHandler) UpdateTaskFlows(w http.ResponseWriter, r *http.Request) {
	var flows map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&flows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(flows) == 0 {
		writeError(w, http.StatusBadRequest, "no task flows provided")
		return
	}

	updated, err := h.manager.UpdateTaskFlows(flows)
	if err != nil {
		writeDomainError(w, err, "failed to update task flows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_flows": updated})
}

// RunFlow resolves a registered trigger flow by id.
// POST /api/pipeline/flows/{id}
func (h *PipelineHandler) RunFlow(w http.ResponseWriter, r *http.Request) {
	var req pipeline.FlowRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	result, err := h.manager.RunFlow(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, err, "flow execution failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FlowHistory returns recent flow runs, newest first.
// GET /api/pipeline/flows/history?limit=50
func (h *PipelineHandler) FlowHistory(w http.ResponseWriter, r *http.Request) {
	history := h.manager.FlowHistory(parseLimit(r, 50))
	if history == nil {
		history = []pipeline.FlowResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}
