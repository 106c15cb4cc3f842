// Package limits implements the AI-weighted exposure policy: per-trade and
// per-day dollar caps derived from the hard trading controls scaled by the
// fractions the automated path is permitted to use.
package limits

import (
	"fmt"
	"strconv"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/procconfig"
)

// Caps are the effective dollar limits for the automated path.
type Caps struct {
	PerTrade float64
	Daily    float64
}

// ComputeCaps derives the effective caps from the hard controls and the
// AI-weighted fractions.
func ComputeCaps(tc procconfig.TradingControls, ps procconfig.ProcessSettings) Caps {
	return Caps{
		PerTrade: tc.MaxAmountPerTrade * ps.MaxAIWeightedPerTrade,
		Daily:    tc.MaxExposureTotal * ps.MaxAIWeightedDaily,
	}
}

// DailyTotal sums the notional of trades executed on the same UTC date as
// day. Timestamps are wire-format strings, either unix epoch seconds or
// RFC3339; records that do not parse are skipped rather than counted.
func DailyTotal(trades []domain.ExchangeTrade, day time.Time) float64 {
	date := day.UTC().Format("2006-01-02")
	var total float64
	for _, t := range trades {
		ts, ok := parseWireTime(t.Timestamp)
		if !ok {
			continue
		}
		if ts.UTC().Format("2006-01-02") != date {
			continue
		}
		total += t.Notional()
	}
	return total
}

// parseWireTime decodes an exchange timestamp, which the wire delivers as
// epoch seconds or RFC3339 depending on the endpoint.
func parseWireTime(s string) (time.Time, bool) {
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0), true
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// Check validates a proposed trade value against the caps given what has
// already been spent today. It is pure and side-effect free; callers must
// run it before any exchange call and fail closed on error.
func Check(tradeValue, spentToday float64, caps Caps) error {
	if tradeValue > caps.PerTrade {
		return fmt.Errorf("%w: trade value %.2f exceeds AI-weighted per-trade limit %.2f",
			domain.ErrLimitExceeded, tradeValue, caps.PerTrade)
	}
	if spentToday+tradeValue > caps.Daily {
		return fmt.Errorf("%w: daily total %.2f exceeds AI-weighted daily limit %.2f",
			domain.ErrLimitExceeded, spentToday+tradeValue, caps.Daily)
	}
	return nil
}
