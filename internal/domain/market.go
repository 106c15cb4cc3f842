package domain

import "time"

// Market is a candidate prediction market as returned by the market feed.
type Market struct {
	ID             string     `json:"id"`
	BetID          string     `json:"bet_id,omitempty"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	Asset          string     `json:"asset"`
	Category       string     `json:"category"`
	Volume24h      float64    `json:"volume_24h"`
	LiquidityScore float64    `json:"liquidity_score"` // 0-100
	BidAskSpread   float64    `json:"bid_ask_spread"`  // percentage points
	Probability    float64    `json:"probability"`
	Active         bool       `json:"active"`
	Closed         bool       `json:"closed"`
	CreatedAt      time.Time  `json:"created_at"`
	CloseTime      *time.Time `json:"close_time,omitempty"`

	// FilterScore is assigned by the manager's opportunity filter.
	FilterScore float64 `json:"filter_score,omitempty"`
}
