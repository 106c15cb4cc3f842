// Package watchlist tracks exit conditions for held positions: per-position
// stop-loss/take-profit triggers and a portfolio-wide ROI trigger. Firings
// append advisory notifications; they never close a position by themselves.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantleap/polyflux/internal/domain"
)

// Default exit thresholds applied when a new position does not specify them.
const (
	DefaultStopLossPct   = -0.07
	DefaultTakeProfitPct = 0.12
)

// Channel is the signal bus channel notifications are published on.
const Channel = "watchlist"

// Service evaluates watchlist triggers over a shared key-value store. The
// store offers no cross-key transactions; concurrent evaluators may both
// observe a pre-update value and double-fire, which consumers must tolerate.
type Service struct {
	store  domain.WatchlistStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewService creates a watchlist Service. bus may be nil, in which case
// notifications are stored but not published.
func NewService(store domain.WatchlistStore, bus domain.SignalBus, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// AddPositionInput carries the caller-supplied fields for a new position.
// StopLossPct and TakeProfitPct fall back to the package defaults when zero.
type AddPositionInput struct {
	TokenSymbol   string
	TokenAddress  string
	Quantity      float64
	EntryPrice    float64
	WalletAddress string
	StopLossPct   float64
	TakeProfitPct float64
	Mode          string
	ExitToSymbol  string
	ExitPlan      map[string]any
}

// AddPosition validates and stores a new open position with a generated id.
func (s *Service) AddPosition(ctx context.Context, in AddPositionInput) (domain.WatchlistPosition, error) {
	if strings.TrimSpace(in.TokenSymbol) == "" {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: token symbol required: %w", domain.ErrValidation)
	}
	if in.Quantity <= 0 {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: quantity must be positive: %w", domain.ErrValidation)
	}
	if in.EntryPrice < 0 {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: entry price must not be negative: %w", domain.ErrValidation)
	}
	if in.StopLossPct > 0 {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: stop loss pct must be negative: %w", domain.ErrValidation)
	}
	if in.TakeProfitPct < 0 {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: take profit pct must be positive: %w", domain.ErrValidation)
	}

	stopLoss := in.StopLossPct
	if stopLoss == 0 {
		stopLoss = DefaultStopLossPct
	}
	takeProfit := in.TakeProfitPct
	if takeProfit == 0 {
		takeProfit = DefaultTakeProfitPct
	}

	now := time.Now().UTC()
	pos := domain.WatchlistPosition{
		PositionID:    uuid.New().String(),
		TokenSymbol:   strings.ToUpper(strings.TrimSpace(in.TokenSymbol)),
		TokenAddress:  in.TokenAddress,
		Quantity:      in.Quantity,
		EntryPrice:    in.EntryPrice,
		WalletAddress: in.WalletAddress,
		StopLossPct:   stopLoss,
		TakeProfitPct: takeProfit,
		Mode:          in.Mode,
		ExitToSymbol:  in.ExitToSymbol,
		ExitPlan:      in.ExitPlan,
		Status:        domain.PositionStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.SavePosition(ctx, pos); err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: add position: %w", err)
	}

	s.logger.InfoContext(ctx, "watchlist: position added",
		slog.String("position_id", pos.PositionID),
		slog.String("token_symbol", pos.TokenSymbol),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("stop_loss_pct", pos.StopLossPct),
		slog.Float64("take_profit_pct", pos.TakeProfitPct),
	)
	return pos, nil
}

// GetPosition returns a position by id.
func (s *Service) GetPosition(ctx context.Context, positionID string) (domain.WatchlistPosition, error) {
	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: get position %s: %w", positionID, err)
	}
	return pos, nil
}

// ListPositions returns positions, optionally filtered by status. An empty
// status returns every position, open and closed.
func (s *Service) ListPositions(ctx context.Context, status domain.PositionStatus) ([]domain.WatchlistPosition, error) {
	all, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("watchlist: list positions: %w", err)
	}
	if status == "" {
		return all, nil
	}

	out := make([]domain.WatchlistPosition, 0, len(all))
	for _, pos := range all {
		if pos.Status == status {
			out = append(out, pos)
		}
	}
	return out, nil
}

// UpdateExitPlan replaces the free-form exit plan of a position.
func (s *Service) UpdateExitPlan(ctx context.Context, positionID string, plan map[string]any) (domain.WatchlistPosition, error) {
	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: update exit plan %s: %w", positionID, err)
	}

	pos.ExitPlan = plan
	pos.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePosition(ctx, pos); err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: update exit plan %s: %w", positionID, err)
	}
	return pos, nil
}

// UpdatePrice records the latest observed price for a token symbol.
func (s *Service) UpdatePrice(ctx context.Context, symbol string, price float64) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("watchlist: symbol required: %w", domain.ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("watchlist: price must not be negative: %w", domain.ErrValidation)
	}
	if err := s.store.SetPrice(ctx, symbol, price); err != nil {
		return fmt.Errorf("watchlist: update price %s: %w", symbol, err)
	}
	return nil
}

// ClosePosition marks a position closed with a reason. Closed positions stay
// in the store for audit. Closing an already closed position is a no-op.
func (s *Service) ClosePosition(ctx context.Context, positionID, reason string) (domain.WatchlistPosition, error) {
	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: close position %s: %w", positionID, err)
	}
	if pos.Status == domain.PositionStatusClosed {
		return pos, nil
	}

	pos.Status = domain.PositionStatusClosed
	pos.CloseReason = reason
	pos.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePosition(ctx, pos); err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("watchlist: close position %s: %w", positionID, err)
	}

	s.logger.InfoContext(ctx, "watchlist: position closed",
		slog.String("position_id", pos.PositionID),
		slog.String("reason", reason),
	)
	return pos, nil
}

// EvaluateTriggers checks every open position with a known price against its
// exit thresholds. Stop-loss is checked before take-profit and at most one
// trigger fires per position per pass. Positions with a non-positive entry
// price or no recorded price are skipped.
func (s *Service) EvaluateTriggers(ctx context.Context) ([]domain.Notification, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("watchlist: evaluate triggers: %w", err)
	}
	prices, err := s.store.GetPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("watchlist: evaluate triggers: %w", err)
	}

	var fired []domain.Notification
	for _, pos := range positions {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		if pos.EntryPrice <= 0 {
			continue
		}
		current, ok := prices[strings.ToUpper(pos.TokenSymbol)]
		if !ok {
			continue
		}

		pctChange := (current - pos.EntryPrice) / pos.EntryPrice

		var triggerType string
		switch {
		case pctChange <= pos.StopLossPct:
			triggerType = domain.TriggerStopLoss
		case pctChange >= pos.TakeProfitPct:
			triggerType = domain.TriggerTakeProfit
		default:
			continue
		}

		n := domain.Notification{
			NotificationID: uuid.New().String(),
			PositionID:     pos.PositionID,
			TokenSymbol:    pos.TokenSymbol,
			WalletAddress:  pos.WalletAddress,
			TriggerType:    triggerType,
			PctChange:      pctChange,
			EntryPrice:     pos.EntryPrice,
			CurrentPrice:   current,
			Mode:           pos.Mode,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.PushNotification(ctx, n); err != nil {
			return fired, fmt.Errorf("watchlist: push notification: %w", err)
		}
		s.publish(ctx, n)
		fired = append(fired, n)

		s.logger.InfoContext(ctx, "watchlist: trigger fired",
			slog.String("position_id", pos.PositionID),
			slog.String("trigger_type", triggerType),
			slog.Float64("pct_change", pctChange),
		)
	}

	return fired, nil
}

// GlobalROIOptions configures a global ROI evaluation pass.
type GlobalROIOptions struct {
	Enabled          bool
	ThresholdPct     float64
	FastThresholdPct float64
}

// GlobalROIResult reports the outcome of a global ROI evaluation.
type GlobalROIResult struct {
	Enabled      bool
	Triggered    bool
	Mode         string
	GlobalROI    float64
	PreviousROI  float64
	Delta        float64
	Invested     float64
	CurrentValue float64
}

// Evaluation modes reported by EvaluateGlobalROI when triggered.
const (
	ModeFastDecision = "fast_decision"
	ModeLongStudy    = "long_study"
)

// EvaluateGlobalROI computes portfolio-wide ROI over open positions and
// compares it with the previously stored value. The new ROI is persisted
// unconditionally so the delta always measures change since the last pass,
// not since inception. Prices fall back to the entry price when missing.
// When opts.Enabled is false the call returns immediately without touching
// stored state.
func (s *Service) EvaluateGlobalROI(ctx context.Context, opts GlobalROIOptions) (GlobalROIResult, error) {
	if !opts.Enabled {
		return GlobalROIResult{}, nil
	}

	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return GlobalROIResult{}, fmt.Errorf("watchlist: evaluate global roi: %w", err)
	}
	prices, err := s.store.GetPrices(ctx)
	if err != nil {
		return GlobalROIResult{}, fmt.Errorf("watchlist: evaluate global roi: %w", err)
	}

	var invested, current float64
	for _, pos := range positions {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		price, ok := prices[strings.ToUpper(pos.TokenSymbol)]
		if !ok {
			price = pos.EntryPrice
		}
		invested += pos.Quantity * pos.EntryPrice
		current += pos.Quantity * price
	}

	var roi float64
	if invested > 0 {
		roi = (current - invested) / invested
	}

	prev, _, err := s.store.GetGlobalROI(ctx)
	if err != nil {
		return GlobalROIResult{}, fmt.Errorf("watchlist: evaluate global roi: %w", err)
	}
	delta := roi - prev

	if err := s.store.SetGlobalROI(ctx, roi); err != nil {
		return GlobalROIResult{}, fmt.Errorf("watchlist: evaluate global roi: %w", err)
	}

	res := GlobalROIResult{
		Enabled:      true,
		GlobalROI:    roi,
		PreviousROI:  prev,
		Delta:        delta,
		Invested:     invested,
		CurrentValue: current,
	}

	abs := delta
	if abs < 0 {
		abs = -abs
	}
	if abs < opts.ThresholdPct {
		return res, nil
	}

	res.Triggered = true
	if abs >= opts.FastThresholdPct {
		res.Mode = ModeFastDecision
	} else {
		res.Mode = ModeLongStudy
	}

	n := domain.Notification{
		NotificationID:    uuid.New().String(),
		TriggerType:       domain.TriggerGlobalROI,
		GlobalROI:         roi,
		PreviousGlobalROI: prev,
		ROIDelta:          delta,
		Mode:              res.Mode,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.PushNotification(ctx, n); err != nil {
		return res, fmt.Errorf("watchlist: push notification: %w", err)
	}
	s.publish(ctx, n)

	s.logger.InfoContext(ctx, "watchlist: global roi trigger fired",
		slog.Float64("global_roi", roi),
		slog.Float64("previous_roi", prev),
		slog.Float64("delta", delta),
		slog.String("mode", res.Mode),
	)
	return res, nil
}

// Notifications returns recent notifications, newest first.
func (s *Service) Notifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	out, err := s.store.ListNotifications(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("watchlist: list notifications: %w", err)
	}
	return out, nil
}

// publish sends a notification to the signal bus. Publish failures are
// logged, never surfaced; notifications are advisory.
func (s *Service) publish(ctx context.Context, n domain.Notification) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, Channel, data); err != nil {
		s.logger.WarnContext(ctx, "watchlist: publish notification failed",
			slog.String("notification_id", n.NotificationID),
			slog.String("error", err.Error()),
		)
	}
}
