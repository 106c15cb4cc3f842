package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/limits"
	"github.com/quantleap/polyflux/internal/procconfig"
	"github.com/quantleap/polyflux/internal/trigger"
)

// ConfigHandler serves the runtime configuration and trigger settings
// endpoints.
type ConfigHandler struct {
	cfg      *procconfig.Service
	registry *trigger.Registry
	exchange domain.ExchangeClient
	logger   *slog.Logger
}

// NewConfigHandler creates a ConfigHandler. exchange is used to compute the
// live daily spend for the limits endpoint and may be nil.
func NewConfigHandler(cfg *procconfig.Service, registry *trigger.Registry, exchange domain.ExchangeClient, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		cfg:      cfg,
		registry: registry,
		exchange: exchange,
		logger:   logHandler(logger, "config"),
	}
}

// Get returns the full runtime configuration snapshot.
// GET /api/config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Get())
}

// Update applies a partial runtime configuration update. Unknown fields are
// ignored; invalid merged results are rejected without mutation.
// PATCH /api/config
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u procconfig.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.cfg.Update(u)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: config update rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListTriggers returns every registered trigger spec.
// GET /api/triggers
func (h *ConfigHandler) ListTriggers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggers": h.registry.List()})
}

// GetTriggerSettings returns the named trigger's current settings, scoped to
// the fields that trigger owns.
// GET /api/triggers/{name}/settings
func (h *ConfigHandler) GetTriggerSettings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	settings, err := trigger.ExtractSettings(name, h.cfg.Get())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trigger":  name,
		"settings": settings,
	})
}

// UpdateTriggerSettings applies a settings payload for the named trigger.
// Fields belonging to other triggers or config sections are rejected.
// PUT /api/triggers/{name}/settings
func (h *ConfigHandler) UpdateTriggerSettings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	u, err := trigger.ApplySettings(name, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.cfg.Update(u)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	settings, err := trigger.ExtractSettings(name, snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-read settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trigger":  name,
		"settings": settings,
	})
}

// Limits reports the effective AI-weighted caps and, when the exchange is
// reachable, today's spend against the daily cap.
// GET /api/limits
func (h *ConfigHandler) Limits(w http.ResponseWriter, r *http.Request) {
	snap := h.cfg.Get()
	caps := limits.ComputeCaps(snap.TradingControls, snap.Process)

	resp := map[string]any{
		"per_trade_cap":             caps.PerTrade,
		"daily_cap":                 caps.Daily,
		"max_amount_per_trade":      snap.TradingControls.MaxAmountPerTrade,
		"max_exposure_total":        snap.TradingControls.MaxExposureTotal,
		"max_ai_weighted_per_trade": snap.Process.MaxAIWeightedPerTrade,
		"max_ai_weighted_daily":     snap.Process.MaxAIWeightedDaily,
	}

	if h.exchange != nil {
		trades, err := h.exchange.Trades(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: daily spend unavailable", slog.String("error", err.Error()))
			resp["spent_today"] = nil
		} else {
			spent := limits.DailyTotal(trades, time.Now().UTC())
			resp["spent_today"] = spent
			resp["daily_remaining"] = caps.Daily - spent
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
