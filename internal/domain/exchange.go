package domain

import "context"

// OrderResult is the exchange's response to an order submission.
type OrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExchangeClient is the contract the trading core needs from the CLOB
// exchange client. Order-book matching and signing live behind it.
type ExchangeClient interface {
	// Buy places a buy order for the market's YES outcome token.
	Buy(ctx context.Context, marketID string, quantity int, price float64) (OrderResult, error)
	// Sell places the NO-side order for the market.
	Sell(ctx context.Context, marketID string, quantity int, price float64) (OrderResult, error)
	// MidPrice returns the midpoint between best bid and best ask.
	MidPrice(ctx context.Context, marketID string) (float64, error)
	// OutcomeTokenIDs maps "YES"/"NO" to outcome token ids.
	OutcomeTokenIDs(ctx context.Context, marketID string) (map[string]string, error)
	// Trades returns the wallet's historical trades as raw exchange records.
	Trades(ctx context.Context) ([]ExchangeTrade, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketFeed fetches candidate markets for scanning.
type MarketFeed interface {
	LatestMarkets(ctx context.Context, limit int) ([]Market, error)
}
