package domain

import "time"

// TradeStatus tracks the trade execution lifecycle.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusFilled    TradeStatus = "filled"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusRejected  TradeStatus = "rejected"
	TradeStatusFailed    TradeStatus = "failed"
)

// Terminal reports whether the status is a final state. Pending trades stay
// in the pending set until resolved or explicitly cancelled.
func (s TradeStatus) Terminal() bool {
	return s != TradeStatusPending
}

// TradeSide indicates buy or sell.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// TradeResult is a single executed (or attempted) trade and its outcome.
type TradeResult struct {
	TradeID    string
	MarketID   string
	BetID      string
	Asset      string
	Side       TradeSide
	Outcome    string // "yes" or "no"
	TokenLabel string
	Quantity   int
	Price      float64
	TotalValue float64 // quantity * price
	Status     TradeStatus
	OrderID    string
	Error      string
	Timestamp  time.Time
}

// ExchangeTrade is a raw trade record as returned by the exchange API.
// Timestamps are kept as wire-format strings; consumers that bucket trades
// by day must skip records whose timestamp does not parse.
type ExchangeTrade struct {
	ID         string  `json:"id"`
	MarketID   string  `json:"market"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	TotalValue float64 `json:"total_value"`
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
}

// Notional returns the trade's dollar value, falling back to price*size when
// the API omitted total_value.
func (t ExchangeTrade) Notional() float64 {
	if t.TotalValue != 0 {
		return t.TotalValue
	}
	return t.Price * t.Size
}

// TradeSummary aggregates trade history statistics.
type TradeSummary struct {
	TotalTrades    int
	Filled         int
	Rejected       int
	Cancelled      int
	Failed         int
	Pending        int
	BuyTrades      int
	SellTrades     int
	TotalBuyValue  float64
	TotalSellValue float64
	NetValue       float64
	Assets         map[string]AssetBucket
	LatestTrades   []TradeResult
}

// AssetBucket is the per-asset slice of a TradeSummary.
type AssetBucket struct {
	Count int
	Value float64
}
