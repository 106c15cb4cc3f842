package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/service"
)

// TradeHandler serves the proposal and execution gate endpoints.
type TradeHandler struct {
	gate   *service.TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler over the trade gate.
func NewTradeHandler(gate *service.TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		gate:   gate,
		logger: logHandler(logger, "trade"),
	}
}

// Propose sizes a trade within the AI-weighted caps and stores the quote.
// POST /api/trades/propose
func (h *TradeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req service.ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	proposal, err := h.gate.Propose(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: propose failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to create proposal")
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

// Execute runs a proposal (locked quote) or an ad hoc trade through the gate.
// POST /api/trades/execute
func (h *TradeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req service.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.gate.Execute(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: execute failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to execute trade")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// List returns resolved trades, newest first.
// GET /api/trades?limit=50&status=filled&asset=BITCOIN
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	status := domain.TradeStatus(r.URL.Query().Get("status"))
	asset := r.URL.Query().Get("asset")

	trades, err := h.gate.List(r.Context(), limit, status, asset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Get returns a single trade by id.
// GET /api/trades/{id}
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	trade, err := h.gate.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err, "failed to get trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// Cancel cancels a pending trade.
// DELETE /api/trades/{id}
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	trade, err := h.gate.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: cancel failed",
			slog.String("trade_id", r.PathValue("id")),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "failed to cancel trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// Pending returns unresolved trades.
// GET /api/trades/pending
func (h *TradeHandler) Pending(w http.ResponseWriter, r *http.Request) {
	trades, err := h.gate.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Summary returns aggregate trade statistics.
// GET /api/trades/summary
func (h *TradeHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.gate.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build trade summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Proposals returns stored proposals, newest first.
// GET /api/proposals?limit=50
func (h *TradeHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.gate.Proposals(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	if proposals == nil {
		proposals = []domain.Proposal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}
