package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/quantleap/polyflux/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// jsonFloat unmarshals from JSON number or numeric string. CLOB and Gamma
// both send prices and volumes either way depending on the endpoint.
type jsonFloat float64

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = jsonFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = jsonFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// apiOrderRequest is the order placement payload for the CLOB API.
type apiOrderRequest struct {
	Market string  `json:"market"`
	Side   string  `json:"side"` // "BUY" or "SELL"
	Size   int     `json:"size"`
	Price  float64 `json:"price"`
	Type   string  `json:"type"` // "GTC", "GTD", "FOK", "FAK"
}

// apiOrderResult is the response from placing an order via the CLOB API.
type apiOrderResult struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	ErrorMsg string `json:"errorMsg"`
	Status   string `json:"status"`
}

func (r apiOrderResult) toDomain() domain.OrderResult {
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Error:   r.ErrorMsg,
	}
}

// apiToken is one outcome token inside a CLOB market response.
type apiToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// apiTrade is a historical trade record from the CLOB data API.
type apiTrade struct {
	ID         string    `json:"id"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	Price      jsonFloat `json:"price"`
	Size       jsonFloat `json:"size"`
	TotalValue jsonFloat `json:"total_value"`
	Status     string    `json:"status"`
	Timestamp  string    `json:"match_time"`
}

func (t apiTrade) toDomain() domain.ExchangeTrade {
	return domain.ExchangeTrade{
		ID:         t.ID,
		MarketID:   t.Market,
		Side:       t.Side,
		Price:      float64(t.Price),
		Size:       float64(t.Size),
		TotalValue: float64(t.TotalValue),
		Status:     t.Status,
		Timestamp:  t.Timestamp,
	}
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// apiMarket represents a market as returned by the Gamma API.
type apiMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Category      string    `json:"category"`
	Volume24hr    jsonFloat `json:"volume24hr"`
	LiquidityNum  jsonFloat `json:"liquidityNum"`
	BestBid       jsonFloat `json:"bestBid"`
	BestAsk       jsonFloat `json:"bestAsk"`
	LastTradeP    jsonFloat `json:"lastTradePrice"`
	Active        flexBool  `json:"active"`
	Closed        flexBool  `json:"closed"`
	CreatedAt     string    `json:"createdAt"`
	EndDateISO    string    `json:"endDateIso"`
	ConditionID   string    `json:"conditionId"`
}

// toDomain converts a Gamma market into the feed's domain shape. Liquidity
// is squashed onto a 0-100 score and the bid/ask spread is expressed in
// percentage points so the opportunity filter compares like with like.
func (m apiMarket) toDomain() domain.Market {
	spread := float64(m.BestAsk) - float64(m.BestBid)
	if spread < 0 {
		spread = 0
	}

	dm := domain.Market{
		ID:             m.ID,
		BetID:          m.ConditionID,
		Question:       m.Question,
		Slug:           m.Slug,
		Asset:          assetFromSlug(m.Slug),
		Category:       m.Category,
		Volume24h:      float64(m.Volume24hr),
		LiquidityScore: liquidityScore(float64(m.LiquidityNum)),
		BidAskSpread:   spread * 100,
		Probability:    float64(m.LastTradeP),
		Active:         bool(m.Active),
		Closed:         bool(m.Closed),
	}

	if ts, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		dm.CloseTime = &ts
	}
	return dm
}

// liquidityScore maps raw dollar liquidity onto 0-100. $10k or more of
// book depth scores 100.
func liquidityScore(liquidity float64) float64 {
	score := liquidity / 100
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// assetFromSlug extracts a coarse asset tag from the market slug, e.g.
// "bitcoin-above-100k-..." yields "BITCOIN".
func assetFromSlug(slug string) string {
	head, _, found := strings.Cut(slug, "-")
	if !found || head == "" {
		return strings.ToUpper(slug)
	}
	return strings.ToUpper(head)
}
