package domain

import (
	"context"
	"time"
)

// PositionStatus tracks whether a watchlist position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// WatchlistPosition is a tracked holding with exit thresholds. Closed
// positions are never deleted; they remain in the store for audit.
type WatchlistPosition struct {
	PositionID    string         `json:"position_id"`
	TokenSymbol   string         `json:"token_symbol"`
	TokenAddress  string         `json:"token_address"`
	Quantity      float64        `json:"quantity"`
	EntryPrice    float64        `json:"entry_price"`
	WalletAddress string         `json:"wallet_address"`
	StopLossPct   float64        `json:"stop_loss_pct"`   // negative fraction
	TakeProfitPct float64        `json:"take_profit_pct"` // positive fraction
	Mode          string         `json:"mode"`
	ExitToSymbol  string         `json:"exit_to_symbol"`
	ExitPlan      map[string]any `json:"exit_plan"`
	Status        PositionStatus `json:"status"`
	CloseReason   string         `json:"close_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TriggerType identifies what fired a watchlist notification.
const (
	TriggerStopLoss   = "stop_loss"
	TriggerTakeProfit = "take_profit"
	TriggerGlobalROI  = "global_roi"
)

// Notification is an ephemeral record of a trigger firing. Notifications are
// advisory: consumers are expected to be idempotent, and a firing never
// closes the position by itself.
type Notification struct {
	NotificationID    string    `json:"notification_id"`
	PositionID        string    `json:"position_id,omitempty"`
	TokenSymbol       string    `json:"token_symbol,omitempty"`
	WalletAddress     string    `json:"wallet_address,omitempty"`
	TriggerType       string    `json:"trigger_type"`
	PctChange         float64   `json:"pct_change,omitempty"`
	EntryPrice        float64   `json:"entry_price,omitempty"`
	CurrentPrice      float64   `json:"current_price,omitempty"`
	GlobalROI         float64   `json:"global_roi,omitempty"`
	PreviousGlobalROI float64   `json:"previous_global_roi,omitempty"`
	ROIDelta          float64   `json:"roi_delta,omitempty"`
	Mode              string    `json:"mode"`
	CreatedAt         time.Time `json:"created_at"`
}

// MaxNotifications bounds the retained notification list; the oldest entries
// are trimmed after each push.
const MaxNotifications = 500

// WatchlistStore is the key-value persistence the watchlist relies on:
// a position hash, a price hash, a capped notification list, and a single
// global-ROI scalar. No cross-key transactions are assumed.
type WatchlistStore interface {
	SavePosition(ctx context.Context, pos WatchlistPosition) error
	GetPosition(ctx context.Context, positionID string) (WatchlistPosition, error)
	ListPositions(ctx context.Context) ([]WatchlistPosition, error)

	SetPrice(ctx context.Context, symbol string, price float64) error
	GetPrices(ctx context.Context) (map[string]float64, error)

	// PushNotification prepends a notification and trims the list to
	// MaxNotifications.
	PushNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, limit int) ([]Notification, error)

	// GetGlobalROI returns the previously stored portfolio ROI; ok is false
	// when no value has been stored yet.
	GetGlobalROI(ctx context.Context) (value float64, ok bool, err error)
	SetGlobalROI(ctx context.Context, value float64) error
}
