package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/limits"
	"github.com/quantleap/polyflux/internal/procconfig"
)

// defaultWalletBalance is assumed when a proposal request does not carry the
// caller's balance.
const defaultWalletBalance = 10000.0

// reconcileError marks trades abandoned by a crashed or hung execution.
const reconcileError = "execution timed out awaiting exchange confirmation"

// TradeService is the execution gate: it sizes proposals against the
// AI-weighted caps, runs the limiter before every exchange call, and records
// the full trade lifecycle.
type TradeService struct {
	trades    domain.TradeStore
	proposals domain.ProposalStore
	exchange  domain.ExchangeClient
	cfg       *procconfig.Service
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
// bus and audit may be nil.
func NewTradeService(
	trades domain.TradeStore,
	proposals domain.ProposalStore,
	exchange domain.ExchangeClient,
	cfg *procconfig.Service,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:    trades,
		proposals: proposals,
		exchange:  exchange,
		cfg:       cfg,
		bus:       bus,
		audit:     audit,
		logger:    logger,
	}
}

// ProposeRequest carries the inputs for sizing a trade proposal.
type ProposeRequest struct {
	MarketID      string
	BetID         string
	Outcome       string // "yes" or "no"
	Confidence    float64
	Reasoning     string
	WalletBalance float64 // 0 means use defaultWalletBalance
}

// marketRef returns the identifier used for exchange calls, preferring the
// market id over the bet id.
func marketRef(marketID, betID string) string {
	if marketID != "" {
		return marketID
	}
	return betID
}

func normalizeOutcome(outcome string) (string, error) {
	o := strings.ToLower(strings.TrimSpace(outcome))
	if o != "yes" && o != "no" {
		return "", fmt.Errorf("trade_service: outcome must be yes or no: %w", domain.ErrValidation)
	}
	return o, nil
}

// Propose sizes a trade at the current mid price and persists an immutable
// proposal in ready_to_execute state. The quantity is the largest whole
// number of units affordable within both the wallet balance and the
// per-trade cap, floored at 1.
func (s *TradeService) Propose(ctx context.Context, req ProposeRequest) (domain.Proposal, error) {
	if req.MarketID == "" && req.BetID == "" {
		return domain.Proposal{}, fmt.Errorf("trade_service: market_id or bet_id required: %w", domain.ErrValidation)
	}
	outcome, err := normalizeOutcome(req.Outcome)
	if err != nil {
		return domain.Proposal{}, err
	}

	snap := s.cfg.Get()
	caps := limits.ComputeCaps(snap.TradingControls, snap.Process)
	ref := marketRef(req.MarketID, req.BetID)

	mid, err := s.exchange.MidPrice(ctx, ref)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("trade_service: mid price %s: %w", ref, err)
	}
	if mid <= 0 {
		return domain.Proposal{}, fmt.Errorf("trade_service: non-positive mid price %.4f for %s", mid, ref)
	}

	wallet := req.WalletBalance
	if wallet <= 0 {
		wallet = defaultWalletBalance
	}

	budget := math.Min(wallet, caps.PerTrade)
	quantity := int(math.Floor(budget / mid))
	if quantity < 1 {
		quantity = 1
	}

	// Token label resolution is best effort; proposals stay valid without it.
	tokenLabel := ""
	if tokens, tokErr := s.exchange.OutcomeTokenIDs(ctx, ref); tokErr == nil {
		tokenLabel = tokens[strings.ToUpper(outcome)]
	} else {
		s.logger.WarnContext(ctx, "trade_service: outcome token lookup failed",
			slog.String("market", ref),
			slog.String("error", tokErr.Error()),
		)
	}

	p := domain.Proposal{
		ProposalID:          uuid.New().String(),
		MarketID:            req.MarketID,
		BetID:               req.BetID,
		Outcome:             outcome,
		TokenLabel:          tokenLabel,
		Confidence:          req.Confidence,
		Reasoning:           req.Reasoning,
		RecommendedQuantity: quantity,
		RecommendedPrice:    mid,
		EstimatedValue:      float64(quantity) * mid,
		Status:              domain.ProposalStatusReady,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.proposals.Create(ctx, p); err != nil {
		return domain.Proposal{}, fmt.Errorf("trade_service: create proposal: %w", err)
	}

	s.auditLog(ctx, "proposal_created", map[string]any{
		"proposal_id": p.ProposalID,
		"market":      ref,
		"outcome":     outcome,
		"quantity":    quantity,
		"price":       mid,
	})
	s.logger.InfoContext(ctx, "trade_service: proposal created",
		slog.String("proposal_id", p.ProposalID),
		slog.String("market", ref),
		slog.Int("quantity", quantity),
		slog.Float64("price", mid),
	)
	return p, nil
}

// ExecuteRequest identifies what to execute: a stored proposal by id, or an
// ad hoc trade described inline.
type ExecuteRequest struct {
	ProposalID string
	MarketID   string
	BetID      string
	Outcome    string
	Quantity   int
	Price      float64 // 0 means use the live mid price (ad hoc only)
}

// Execute runs the exposure limiter and then places the order. Execution by
// proposal id reuses the stored quantity and price verbatim and rejects a
// second execution of the same proposal with ErrAlreadyExecuted. Exchange
// failures are captured on the trade record (FAILED or REJECTED), not
// returned as errors; only validation, limit, and store problems surface.
func (s *TradeService) Execute(ctx context.Context, req ExecuteRequest) (domain.TradeResult, error) {
	var (
		marketID, betID, outcome, tokenLabel string
		quantity                             int
		price                                float64
		proposalID                           string
	)

	if req.ProposalID != "" {
		p, err := s.proposals.GetByID(ctx, req.ProposalID)
		if err != nil {
			return domain.TradeResult{}, fmt.Errorf("trade_service: proposal %s: %w", req.ProposalID, err)
		}
		if p.Status == domain.ProposalStatusExecuted {
			return domain.TradeResult{}, fmt.Errorf("trade_service: proposal %s: %w", p.ProposalID, domain.ErrAlreadyExecuted)
		}

		proposalID = p.ProposalID
		marketID, betID = p.MarketID, p.BetID
		outcome = p.Outcome
		tokenLabel = p.TokenLabel
		quantity = p.RecommendedQuantity
		price = p.RecommendedPrice
	} else {
		if req.MarketID == "" && req.BetID == "" {
			return domain.TradeResult{}, fmt.Errorf("trade_service: market_id or bet_id required: %w", domain.ErrValidation)
		}
		var err error
		outcome, err = normalizeOutcome(req.Outcome)
		if err != nil {
			return domain.TradeResult{}, err
		}
		if req.Quantity < 1 {
			return domain.TradeResult{}, fmt.Errorf("trade_service: quantity must be at least 1: %w", domain.ErrValidation)
		}

		marketID, betID = req.MarketID, req.BetID
		quantity = req.Quantity
		price = req.Price
		if price <= 0 {
			ref := marketRef(marketID, betID)
			mid, err := s.exchange.MidPrice(ctx, ref)
			if err != nil {
				return domain.TradeResult{}, fmt.Errorf("trade_service: mid price %s: %w", ref, err)
			}
			price = mid
		}
	}

	ref := marketRef(marketID, betID)
	tradeValue := float64(quantity) * price

	// Limiter runs before any order is placed; fail closed when today's
	// spend cannot be established.
	snap := s.cfg.Get()
	caps := limits.ComputeCaps(snap.TradingControls, snap.Process)

	history, err := s.exchange.Trades(ctx)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: fetch trade history: %w", err)
	}
	spentToday := limits.DailyTotal(history, time.Now())

	if err := limits.Check(tradeValue, spentToday, caps); err != nil {
		s.auditLog(ctx, "trade_limit_rejected", map[string]any{
			"market":      ref,
			"trade_value": tradeValue,
			"spent_today": spentToday,
			"error":       err.Error(),
		})
		return domain.TradeResult{}, fmt.Errorf("trade_service: %w", err)
	}

	// Claim the proposal only once the limiter has passed, so a limit
	// rejection or history-fetch failure leaves it retryable. The atomic
	// claim still runs before the exchange call: a concurrent duplicate
	// request cannot double-spend the locked quote.
	if proposalID != "" {
		if err := s.proposals.MarkExecuted(ctx, proposalID, time.Now().UTC()); err != nil {
			return domain.TradeResult{}, fmt.Errorf("trade_service: proposal %s: %w", proposalID, err)
		}
	}

	side := domain.TradeSideBuy
	if outcome == "no" {
		side = domain.TradeSideSell
	}

	tr := domain.TradeResult{
		TradeID:    uuid.New().String(),
		MarketID:   marketID,
		BetID:      betID,
		Asset:      ref,
		Side:       side,
		Outcome:    outcome,
		TokenLabel: tokenLabel,
		Quantity:   quantity,
		Price:      price,
		TotalValue: tradeValue,
		Status:     domain.TradeStatusPending,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.trades.Insert(ctx, tr); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: record trade: %w", err)
	}

	var result domain.OrderResult
	var execErr error
	if side == domain.TradeSideBuy {
		result, execErr = s.exchange.Buy(ctx, ref, quantity, price)
	} else {
		result, execErr = s.exchange.Sell(ctx, ref, quantity, price)
	}

	switch {
	case execErr != nil:
		tr.Status = domain.TradeStatusFailed
		tr.Error = execErr.Error()
		s.logger.ErrorContext(ctx, "trade_service: order dispatch failed",
			slog.String("trade_id", tr.TradeID),
			slog.String("market", ref),
			slog.String("error", execErr.Error()),
		)
	case !result.Success:
		tr.Status = domain.TradeStatusRejected
		tr.Error = result.Error
		s.logger.WarnContext(ctx, "trade_service: order rejected by exchange",
			slog.String("trade_id", tr.TradeID),
			slog.String("market", ref),
			slog.String("error", result.Error),
		)
	default:
		tr.Status = domain.TradeStatusFilled
		tr.OrderID = result.OrderID
		s.logger.InfoContext(ctx, "trade_service: order filled",
			slog.String("trade_id", tr.TradeID),
			slog.String("market", ref),
			slog.String("order_id", result.OrderID),
			slog.Float64("value", tradeValue),
		)
	}

	if err := s.trades.Update(ctx, tr); err != nil {
		return tr, fmt.Errorf("trade_service: update trade %s: %w", tr.TradeID, err)
	}

	s.publishTradeEvent(ctx, "trade_executed", tr)
	s.auditLog(ctx, "trade_executed", map[string]any{
		"trade_id": tr.TradeID,
		"market":   ref,
		"status":   string(tr.Status),
		"value":    tradeValue,
	})
	return tr, nil
}

// Cancel cancels a pending trade. Trades in any other state return
// ErrNotCancellable without mutation. The exchange-side cancel is best
// effort.
func (s *TradeService) Cancel(ctx context.Context, tradeID string) (domain.TradeResult, error) {
	tr, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: trade %s: %w", tradeID, err)
	}
	if tr.Status != domain.TradeStatusPending {
		return domain.TradeResult{}, fmt.Errorf("trade_service: trade %s is %s: %w",
			tradeID, tr.Status, domain.ErrNotCancellable)
	}

	if tr.OrderID != "" {
		if err := s.exchange.CancelOrder(ctx, tr.OrderID); err != nil {
			s.logger.WarnContext(ctx, "trade_service: exchange cancel failed",
				slog.String("trade_id", tradeID),
				slog.String("order_id", tr.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	tr.Status = domain.TradeStatusCancelled
	if err := s.trades.Update(ctx, tr); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: update trade %s: %w", tradeID, err)
	}

	s.publishTradeEvent(ctx, "trade_cancelled", tr)
	return tr, nil
}

// List returns resolved trades newest first, optionally filtered.
func (s *TradeService) List(ctx context.Context, limit int, status domain.TradeStatus, asset string) ([]domain.TradeResult, error) {
	out, err := s.trades.List(ctx, domain.TradeFilter{Limit: limit, Status: status, Asset: asset})
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades: %w", err)
	}
	return out, nil
}

// Get returns one trade by id.
func (s *TradeService) Get(ctx context.Context, tradeID string) (domain.TradeResult, error) {
	tr, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: trade %s: %w", tradeID, err)
	}
	return tr, nil
}

// Pending returns all unresolved trades.
func (s *TradeService) Pending(ctx context.Context) ([]domain.TradeResult, error) {
	out, err := s.trades.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list pending: %w", err)
	}
	return out, nil
}

// Proposals returns recent proposals newest first.
func (s *TradeService) Proposals(ctx context.Context, limit int) ([]domain.Proposal, error) {
	out, err := s.proposals.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list proposals: %w", err)
	}
	return out, nil
}

// Summary aggregates trade history: counts by status and side, buy/sell/net
// value over filled trades, per-asset buckets, and the five latest trades.
func (s *TradeService) Summary(ctx context.Context) (domain.TradeSummary, error) {
	resolved, err := s.trades.List(ctx, domain.TradeFilter{})
	if err != nil {
		return domain.TradeSummary{}, fmt.Errorf("trade_service: summary: %w", err)
	}
	pending, err := s.trades.ListPending(ctx)
	if err != nil {
		return domain.TradeSummary{}, fmt.Errorf("trade_service: summary: %w", err)
	}

	sum := domain.TradeSummary{
		TotalTrades: len(resolved) + len(pending),
		Pending:     len(pending),
		Assets:      make(map[string]domain.AssetBucket),
	}

	for _, tr := range resolved {
		switch tr.Status {
		case domain.TradeStatusFilled:
			sum.Filled++
		case domain.TradeStatusRejected:
			sum.Rejected++
		case domain.TradeStatusCancelled:
			sum.Cancelled++
		case domain.TradeStatusFailed:
			sum.Failed++
		}

		if tr.Status != domain.TradeStatusFilled {
			continue
		}
		if tr.Side == domain.TradeSideBuy {
			sum.BuyTrades++
			sum.TotalBuyValue += tr.TotalValue
		} else {
			sum.SellTrades++
			sum.TotalSellValue += tr.TotalValue
		}
		bucket := sum.Assets[tr.Asset]
		bucket.Count++
		bucket.Value += tr.TotalValue
		sum.Assets[tr.Asset] = bucket
	}
	sum.NetValue = sum.TotalBuyValue - sum.TotalSellValue

	latest := resolved
	if len(latest) > 5 {
		latest = latest[:5]
	}
	sum.LatestTrades = latest
	return sum, nil
}

// ReconcilePending marks pending trades older than olderThan as FAILED. It
// covers executions that crashed between dispatch and confirmation; without
// it such trades would stay pending forever.
func (s *TradeService) ReconcilePending(ctx context.Context, olderThan time.Duration) ([]domain.TradeResult, error) {
	pending, err := s.trades.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: reconcile pending: %w", err)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var reconciled []domain.TradeResult
	for _, tr := range pending {
		if !tr.Timestamp.Before(cutoff) {
			continue
		}
		tr.Status = domain.TradeStatusFailed
		tr.Error = reconcileError
		if err := s.trades.Update(ctx, tr); err != nil {
			return reconciled, fmt.Errorf("trade_service: reconcile trade %s: %w", tr.TradeID, err)
		}
		reconciled = append(reconciled, tr)
		s.logger.WarnContext(ctx, "trade_service: pending trade reconciled",
			slog.String("trade_id", tr.TradeID),
			slog.Time("created", tr.Timestamp),
		)
	}

	if len(reconciled) > 0 {
		s.auditLog(ctx, "pending_trades_reconciled", map[string]any{
			"count": len(reconciled),
		})
	}
	return reconciled, nil
}

func (s *TradeService) publishTradeEvent(ctx context.Context, event string, tr domain.TradeResult) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     event,
		"trade_id":  tr.TradeID,
		"market":    tr.Asset,
		"side":      string(tr.Side),
		"status":    string(tr.Status),
		"quantity":  tr.Quantity,
		"price":     tr.Price,
		"value":     tr.TotalValue,
		"timestamp": tr.Timestamp.Format(time.RFC3339),
	})
	if err := s.bus.Publish(ctx, "trades", evt); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("trade_id", tr.TradeID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
