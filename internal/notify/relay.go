package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/watchlist"
)

// Relay subscribes to the signal bus and turns trade and watchlist events
// into operator notifications. It runs until the context is cancelled.
type Relay struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a relay over the given bus and notifier.
func NewRelay(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// Run consumes both event channels until ctx is done. Subscribe failures
// are returned; per-event delivery failures are logged and skipped so a
// flaky sender never stalls the bus.
func (r *Relay) Run(ctx context.Context) error {
	trades, err := r.bus.Subscribe(ctx, "trades")
	if err != nil {
		return fmt.Errorf("notify: subscribe trades: %w", err)
	}
	alerts, err := r.bus.Subscribe(ctx, watchlist.Channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe watchlist: %w", err)
	}

	r.logger.InfoContext(ctx, "notify: relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			r.handleTradeEvent(ctx, payload)
		case payload, ok := <-alerts:
			if !ok {
				return nil
			}
			r.handleWatchlistEvent(ctx, payload)
		}
	}
}

func (r *Relay) handleTradeEvent(ctx context.Context, payload []byte) {
	var evt struct {
		Event    string  `json:"event"`
		TradeID  string  `json:"trade_id"`
		Market   string  `json:"market"`
		Side     string  `json:"side"`
		Status   string  `json:"status"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
		Value    float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.logger.WarnContext(ctx, "notify: bad trade event payload", slog.String("error", err.Error()))
		return
	}

	title := fmt.Sprintf("Trade %s", strings.ToLower(evt.Status))
	message := fmt.Sprintf("%s %d %s @ %.4f (value %.2f, status %s, id %s)",
		evt.Side, evt.Quantity, evt.Market, evt.Price, evt.Value, evt.Status, evt.TradeID)

	if err := r.notifier.Notify(ctx, evt.Event, title, message); err != nil {
		r.logger.WarnContext(ctx, "notify: trade notification failed", slog.String("error", err.Error()))
	}
}

func (r *Relay) handleWatchlistEvent(ctx context.Context, payload []byte) {
	var n domain.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		r.logger.WarnContext(ctx, "notify: bad watchlist payload", slog.String("error", err.Error()))
		return
	}

	var title, message string
	switch n.TriggerType {
	case domain.TriggerStopLoss, domain.TriggerTakeProfit:
		title = fmt.Sprintf("%s hit: %s", strings.ReplaceAll(n.TriggerType, "_", " "), n.TokenSymbol)
		message = fmt.Sprintf("%s moved %.2f%% (entry %.4f, now %.4f)",
			n.TokenSymbol, n.PctChange*100, n.EntryPrice, n.CurrentPrice)
	case domain.TriggerGlobalROI:
		title = fmt.Sprintf("Portfolio ROI shift (%s)", n.Mode)
		message = fmt.Sprintf("global ROI %.2f%% (was %.2f%%, delta %.2f%%)",
			n.GlobalROI*100, n.PreviousGlobalROI*100, n.ROIDelta*100)
	default:
		title = "Watchlist alert"
		message = string(payload)
	}

	if err := r.notifier.Notify(ctx, n.TriggerType, title, message); err != nil {
		r.logger.WarnContext(ctx, "notify: watchlist notification failed", slog.String("error", err.Error()))
	}
}
