// Package polymarket implements the exchange collaborators: the CLOB order
// client and the Gamma market feed.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quantleap/polyflux/internal/crypto"
	"github.com/quantleap/polyflux/internal/domain"
)

// rateLimitBucket is the limiter key shared by all CLOB calls.
const rateLimitBucket = "polymarket:clob"

// ClobConfig holds connection parameters for the CLOB REST client.
type ClobConfig struct {
	BaseURL    string
	Address    string
	APIKey     string
	Secret     string
	Passphrase string
	Timeout    time.Duration
}

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. Requests are signed with the pre-derived HMAC API
// credentials; order signing happens server side behind the endpoint this
// client talks to.
type ClobClient struct {
	cfg        ClobConfig
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter
}

// NewClobClient creates a CLOB client. limiter may be nil, in which case
// requests are not throttled client side.
func NewClobClient(cfg ClobConfig, limiter domain.RateLimiter) *ClobClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClobClient{
		cfg: cfg,
		auth: &crypto.HMACAuth{
			Address:    cfg.Address,
			Key:        cfg.APIKey,
			Secret:     cfg.Secret,
			Passphrase: cfg.Passphrase,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Buy places a buy order for the market's YES outcome token.
func (c *ClobClient) Buy(ctx context.Context, marketID string, quantity int, price float64) (domain.OrderResult, error) {
	return c.placeOrder(ctx, marketID, "BUY", quantity, price)
}

// Sell places the NO-side order for the market.
func (c *ClobClient) Sell(ctx context.Context, marketID string, quantity int, price float64) (domain.OrderResult, error) {
	return c.placeOrder(ctx, marketID, "SELL", quantity, price)
}

func (c *ClobClient) placeOrder(ctx context.Context, marketID, side string, quantity int, price float64) (domain.OrderResult, error) {
	body := apiOrderRequest{
		Market:   marketID,
		Side:     side,
		Size:     quantity,
		Price:    price,
		Type:     "GTC",
	}

	respBody, err := c.do(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: place %s order %s: %w", strings.ToLower(side), marketID, err)
	}

	var apiRes apiOrderResult
	if err := json.Unmarshal(respBody, &apiRes); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return apiRes.toDomain(), nil
}

// MidPrice returns the midpoint between best bid and best ask.
func (c *ClobClient) MidPrice(ctx context.Context, marketID string) (float64, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/midpoint?market="+marketID, nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: midpoint %s: %w", marketID, err)
	}

	var res struct {
		Mid jsonFloat `json:"mid"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	return float64(res.Mid), nil
}

// OutcomeTokenIDs maps outcome labels ("YES"/"NO") to their token ids.
func (c *ClobClient) OutcomeTokenIDs(ctx context.Context, marketID string) (map[string]string, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/markets/"+marketID, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: market %s: %w", marketID, err)
	}

	var res struct {
		Tokens []apiToken `json:"tokens"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode market tokens: %w", err)
	}

	out := make(map[string]string, len(res.Tokens))
	for _, t := range res.Tokens {
		out[strings.ToUpper(t.Outcome)] = t.TokenID
	}
	return out, nil
}

// Trades returns the wallet's historical trades as raw exchange records.
// Timestamps stay wire-format strings; the limiter decides what parses.
func (c *ClobClient) Trades(ctx context.Context) ([]domain.ExchangeTrade, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/data/trades", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: trade history: %w", err)
	}

	var apiTrades []apiTrade
	if err := json.Unmarshal(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode trades: %w", err)
	}

	out := make([]domain.ExchangeTrade, 0, len(apiTrades))
	for _, t := range apiTrades {
		out = append(out, t.toDomain())
	}
	return out, nil
}

// CancelOrder cancels a single order by its id.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	respBody, err := c.do(ctx, http.MethodDelete, "/order", map[string]any{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var res struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", res.ErrorMsg)
	}
	return nil
}

// do builds, authenticates, sends, and reads one CLOB request.
func (c *ClobClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitBucket); err != nil {
			return nil, err
		}
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.auth.Headers(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.ExchangeClient = (*ClobClient)(nil)
