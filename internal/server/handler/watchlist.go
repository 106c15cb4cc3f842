package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/watchlist"
)

// WatchlistHandler serves the position watchlist endpoints.
type WatchlistHandler struct {
	svc        *watchlist.Service
	roiDefault watchlist.GlobalROIOptions
	logger     *slog.Logger
}

// NewWatchlistHandler creates a WatchlistHandler. roiDefault supplies the
// global-ROI evaluation settings used when a request does not override them.
func NewWatchlistHandler(svc *watchlist.Service, roiDefault watchlist.GlobalROIOptions, logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		svc:        svc,
		roiDefault: roiDefault,
		logger:     logHandler(logger, "watchlist"),
	}
}

// AddPosition registers a position for trigger evaluation.
// POST /api/watchlist/positions
func (h *WatchlistHandler) AddPosition(w http.ResponseWriter, r *http.Request) {
	var in watchlist.AddPositionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pos, err := h.svc.AddPosition(r.Context(), in)
	if err != nil {
		writeDomainError(w, err, "failed to add position")
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// ListPositions returns watched positions, optionally filtered by status.
// GET /api/watchlist/positions?status=open
func (h *WatchlistHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	status := domain.PositionStatus(r.URL.Query().Get("status"))

	positions, err := h.svc.ListPositions(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.WatchlistPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPosition returns a single position.
// GET /api/watchlist/positions/{id}
func (h *WatchlistHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.svc.GetPosition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// UpdateExitPlan replaces a position's exit plan.
// PUT /api/watchlist/positions/{id}/exit-plan
func (h *WatchlistHandler) UpdateExitPlan(w http.ResponseWriter, r *http.Request) {
	var plan map[string]any
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pos, err := h.svc.UpdateExitPlan(r.Context(), r.PathValue("id"), plan)
	if err != nil {
		writeDomainError(w, err, "failed to update exit plan")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ClosePosition marks a position closed; the record is kept for audit.
// DELETE /api/watchlist/positions/{id}?reason=manual
func (h *WatchlistHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual"
	}

	pos, err := h.svc.ClosePosition(r.Context(), r.PathValue("id"), reason)
	if err != nil {
		writeDomainError(w, err, "failed to close position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// UpdatePrice stores the latest observed price for a symbol.
// PUT /api/watchlist/prices/{symbol}
func (h *WatchlistHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.UpdatePrice(r.Context(), r.PathValue("symbol"), body.Price); err != nil {
		writeDomainError(w, err, "failed to update price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// EvaluateTriggers runs one stop-loss/take-profit pass over open positions.
// POST /api/watchlist/evaluate
func (h *WatchlistHandler) EvaluateTriggers(w http.ResponseWriter, r *http.Request) {
	fired, err := h.svc.EvaluateTriggers(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trigger evaluation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "trigger evaluation failed")
		return
	}
	if fired == nil {
		fired = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fired": fired})
}

// EvaluateGlobalROI runs one portfolio-level ROI delta check. The body may
// override the configured thresholds.
// POST /api/watchlist/global-roi
func (h *WatchlistHandler) EvaluateGlobalROI(w http.ResponseWriter, r *http.Request) {
	opts := h.roiDefault
	if r.ContentLength > 0 {
		var body struct {
			Enabled          *bool    `json:"enabled"`
			ThresholdPct     *float64 `json:"threshold_pct"`
			FastThresholdPct *float64 `json:"fast_threshold_pct"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.Enabled != nil {
			opts.Enabled = *body.Enabled
		}
		if body.ThresholdPct != nil {
			opts.ThresholdPct = *body.ThresholdPct
		}
		if body.FastThresholdPct != nil {
			opts.FastThresholdPct = *body.FastThresholdPct
		}
	}

	result, err := h.svc.EvaluateGlobalROI(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: global ROI evaluation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "global ROI evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Notifications returns recent trigger notifications, newest first.
// GET /api/watchlist/notifications?limit=100
func (h *WatchlistHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.svc.Notifications(r.Context(), parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}
