package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quantleap/polyflux/internal/domain"
)

// Watchlist key layout. Positions and prices are hashes, notifications a
// capped list, and the global ROI a single string key.
const (
	keyWatchlistPositions     = "watchlist:positions"
	keyWatchlistPrices        = "watchlist:prices"
	keyWatchlistNotifications = "watchlist:notifications"
	keyWatchlistGlobalROI     = "watchlist:global_roi"
)

// WatchlistStore implements domain.WatchlistStore on Redis. Positions are
// stored as JSON hash fields keyed by position id.
type WatchlistStore struct {
	rdb *redis.Client
}

// NewWatchlistStore creates a WatchlistStore backed by the given Client.
func NewWatchlistStore(c *Client) *WatchlistStore {
	return &WatchlistStore{rdb: c.Underlying()}
}

// SavePosition upserts a position under its id.
func (ws *WatchlistStore) SavePosition(ctx context.Context, pos domain.WatchlistPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: marshal position %s: %w", pos.PositionID, err)
	}
	if err := ws.rdb.HSet(ctx, keyWatchlistPositions, pos.PositionID, data).Err(); err != nil {
		return fmt.Errorf("redis: save position %s: %w", pos.PositionID, err)
	}
	return nil
}

// GetPosition retrieves a position by id. It returns domain.ErrNotFound when
// the field does not exist.
func (ws *WatchlistStore) GetPosition(ctx context.Context, positionID string) (domain.WatchlistPosition, error) {
	data, err := ws.rdb.HGet(ctx, keyWatchlistPositions, positionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WatchlistPosition{}, domain.ErrNotFound
		}
		return domain.WatchlistPosition{}, fmt.Errorf("redis: get position %s: %w", positionID, err)
	}

	var pos domain.WatchlistPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return domain.WatchlistPosition{}, fmt.Errorf("redis: unmarshal position %s: %w", positionID, err)
	}
	return pos, nil
}

// ListPositions returns every stored position. Hash fields that fail to
// decode are skipped rather than failing the whole listing.
func (ws *WatchlistStore) ListPositions(ctx context.Context) ([]domain.WatchlistPosition, error) {
	vals, err := ws.rdb.HGetAll(ctx, keyWatchlistPositions).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list positions: %w", err)
	}

	out := make([]domain.WatchlistPosition, 0, len(vals))
	for id, raw := range vals {
		var pos domain.WatchlistPosition
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			continue
		}
		if pos.PositionID == "" {
			pos.PositionID = id
		}
		out = append(out, pos)
	}
	return out, nil
}

// SetPrice records the latest price for a token symbol. Symbols are
// normalized to upper case.
func (ws *WatchlistStore) SetPrice(ctx context.Context, symbol string, price float64) error {
	field := strings.ToUpper(symbol)
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := ws.rdb.HSet(ctx, keyWatchlistPrices, field, val).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrices returns the full price map. Unparseable fields are skipped.
func (ws *WatchlistStore) GetPrices(ctx context.Context) (map[string]float64, error) {
	vals, err := ws.rdb.HGetAll(ctx, keyWatchlistPrices).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	out := make(map[string]float64, len(vals))
	for sym, raw := range vals {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[sym] = price
	}
	return out, nil
}

// PushNotification prepends a notification with LPUSH and trims the list to
// domain.MaxNotifications entries.
func (ws *WatchlistStore) PushNotification(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: marshal notification %s: %w", n.NotificationID, err)
	}

	pipe := ws.rdb.TxPipeline()
	pipe.LPush(ctx, keyWatchlistNotifications, data)
	pipe.LTrim(ctx, keyWatchlistNotifications, 0, int64(domain.MaxNotifications)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push notification %s: %w", n.NotificationID, err)
	}
	return nil
}

// ListNotifications returns the most recent notifications, newest first.
func (ws *WatchlistStore) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > domain.MaxNotifications {
		limit = domain.MaxNotifications
	}

	raws, err := ws.rdb.LRange(ctx, keyWatchlistNotifications, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list notifications: %w", err)
	}

	out := make([]domain.Notification, 0, len(raws))
	for _, raw := range raws {
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// GetGlobalROI returns the stored portfolio ROI scalar; ok is false when no
// value has been stored yet.
func (ws *WatchlistStore) GetGlobalROI(ctx context.Context) (float64, bool, error) {
	raw, err := ws.rdb.Get(ctx, keyWatchlistGlobalROI).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get global roi: %w", err)
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse global roi: %w", err)
	}
	return val, true, nil
}

// SetGlobalROI stores the portfolio ROI scalar.
func (ws *WatchlistStore) SetGlobalROI(ctx context.Context, value float64) error {
	val := strconv.FormatFloat(value, 'f', -1, 64)
	if err := ws.rdb.Set(ctx, keyWatchlistGlobalROI, val, 0).Err(); err != nil {
		return fmt.Errorf("redis: set global roi: %w", err)
	}
	return nil
}

var _ domain.WatchlistStore = (*WatchlistStore)(nil)
