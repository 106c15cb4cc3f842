package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/polyflux/internal/domain"
	"github.com/quantleap/polyflux/internal/procconfig"
	"github.com/quantleap/polyflux/internal/store/memory"
)

// fakeExchange is a scriptable domain.ExchangeClient for gate tests.
type fakeExchange struct {
	mid        float64
	midErr     error
	history    []domain.ExchangeTrade
	historyErr error
	orderRes   domain.OrderResult
	orderErr   error
	tokens     map[string]string

	buyCalls     int
	sellCalls    int
	lastQuantity int
	lastPrice    float64
	cancelled    []string
}

func (f *fakeExchange) Buy(_ context.Context, _ string, quantity int, price float64) (domain.OrderResult, error) {
	f.buyCalls++
	f.lastQuantity = quantity
	f.lastPrice = price
	return f.orderRes, f.orderErr
}

func (f *fakeExchange) Sell(_ context.Context, _ string, quantity int, price float64) (domain.OrderResult, error) {
	f.sellCalls++
	f.lastQuantity = quantity
	f.lastPrice = price
	return f.orderRes, f.orderErr
}

func (f *fakeExchange) MidPrice(_ context.Context, _ string) (float64, error) {
	return f.mid, f.midErr
}

func (f *fakeExchange) OutcomeTokenIDs(_ context.Context, _ string) (map[string]string, error) {
	if f.tokens == nil {
		return map[string]string{}, nil
	}
	return f.tokens, nil
}

func (f *fakeExchange) Trades(_ context.Context) ([]domain.ExchangeTrade, error) {
	return f.history, f.historyErr
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

var _ domain.ExchangeClient = (*fakeExchange)(nil)

func newGate(t *testing.T, ex *fakeExchange) (*TradeService, *memory.TradeStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := procconfig.NewService(filepath.Join(t.TempDir(), "config.json"), logger)
	trades := memory.NewTradeStore()
	svc := NewTradeService(trades, memory.NewProposalStore(), ex, cfg, memory.NewSignalBus(), memory.NewAuditStore(), logger)
	return svc, trades
}

// Default controls give per_trade_cap=500 and daily_cap=5000.

func TestProposeSizesWithinCapAndWallet(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true}}
	svc, _ := newGate(t, ex)
	ctx := context.Background()

	p, err := svc.Propose(ctx, ProposeRequest{MarketID: "mkt-1", Outcome: "yes", Confidence: 0.8})
	require.NoError(t, err)

	assert.Equal(t, 1000, p.RecommendedQuantity)
	assert.Equal(t, 0.5, p.RecommendedPrice)
	assert.LessOrEqual(t, float64(p.RecommendedQuantity)*p.RecommendedPrice, 500.0)
	assert.Equal(t, domain.ProposalStatusReady, p.Status)
}

func TestProposeQuantityFlooredAtOne(t *testing.T) {
	// Price above the per-trade cap still yields one unit.
	ex := &fakeExchange{mid: 600}
	svc, _ := newGate(t, ex)

	p, err := svc.Propose(context.Background(), ProposeRequest{BetID: "bet-1", Outcome: "no"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.RecommendedQuantity)
}

func TestProposeRequiresMarketOrBet(t *testing.T) {
	svc, _ := newGate(t, &fakeExchange{mid: 0.5})

	_, err := svc.Propose(context.Background(), ProposeRequest{Outcome: "yes"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExecuteByProposalUsesLockedQuote(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true, OrderID: "ord-1"}}
	svc, _ := newGate(t, ex)
	ctx := context.Background()

	p, err := svc.Propose(ctx, ProposeRequest{MarketID: "mkt-1", Outcome: "yes", WalletBalance: 100})
	require.NoError(t, err)
	require.Equal(t, 200, p.RecommendedQuantity)

	// The live mid moves after the proposal; execution must not see it.
	ex.mid = 0.9

	tr, err := svc.Execute(ctx, ExecuteRequest{ProposalID: p.ProposalID})
	require.NoError(t, err)

	assert.Equal(t, domain.TradeStatusFilled, tr.Status)
	assert.Equal(t, "ord-1", tr.OrderID)
	assert.Equal(t, p.RecommendedQuantity, tr.Quantity)
	assert.Equal(t, 0.5, tr.Price)
	assert.Equal(t, 0.5, ex.lastPrice)
}

func TestExecuteDuplicateProposalRejected(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true, OrderID: "ord-1"}}
	svc, _ := newGate(t, ex)
	ctx := context.Background()

	p, err := svc.Propose(ctx, ProposeRequest{MarketID: "mkt-1", Outcome: "yes", WalletBalance: 100})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, ExecuteRequest{ProposalID: p.ProposalID})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, ExecuteRequest{ProposalID: p.ProposalID})
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
	assert.Equal(t, 1, ex.buyCalls)
}

func TestExecuteUnknownProposal(t *testing.T) {
	svc, _ := newGate(t, &fakeExchange{mid: 0.5})

	_, err := svc.Execute(context.Background(), ExecuteRequest{ProposalID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutePerTradeLimitFailsClosed(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true}}
	svc, trades := newGate(t, ex)
	ctx := context.Background()

	// 600 > per_trade_cap of 500; no order and no trade record.
	_, err := svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 1200, Price: 0.5})
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, 0, ex.buyCalls)

	pending, err := trades.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExecuteDailyCapCountsExchangeHistory(t *testing.T) {
	today := time.Now().UTC().Format(time.RFC3339)
	ex := &fakeExchange{
		mid:      0.5,
		orderRes: domain.OrderResult{Success: true, OrderID: "ord-1"},
		history: []domain.ExchangeTrade{
			{ID: "h1", TotalValue: 4800, Timestamp: today},
			{ID: "h2", TotalValue: 100, Timestamp: "garbage"}, // skipped
		},
	}
	svc, _ := newGate(t, ex)
	ctx := context.Background()

	// 4800 + 300 > 5000 daily cap.
	_, err := svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 600, Price: 0.5})
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	// 4800 + 100 fits.
	tr, err := svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 200, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, tr.Status)
}

func TestExecuteProposalSurvivesLimitRejection(t *testing.T) {
	today := time.Now().UTC().Format(time.RFC3339)
	ex := &fakeExchange{
		mid:      0.5,
		orderRes: domain.OrderResult{Success: true, OrderID: "ord-1"},
		history: []domain.ExchangeTrade{
			{ID: "h1", TotalValue: 5000, Timestamp: today},
		},
	}
	svc, _ := newGate(t, ex)
	ctx := context.Background()

	p, err := svc.Propose(ctx, ProposeRequest{MarketID: "mkt-1", Outcome: "yes", WalletBalance: 100})
	require.NoError(t, err)

	// Daily cap is already consumed; the proposal must stay claimable.
	_, err = svc.Execute(ctx, ExecuteRequest{ProposalID: p.ProposalID})
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, 0, ex.buyCalls)

	// Headroom returns the next day; the same proposal executes.
	ex.history = nil
	tr, err := svc.Execute(ctx, ExecuteRequest{ProposalID: p.ProposalID})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, tr.Status)
	assert.Equal(t, 1, ex.buyCalls)
}

func TestExecuteFailsClosedWhenHistoryUnavailable(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, historyErr: errors.New("api down")}
	svc, _ := newGate(t, ex)

	_, err := svc.Execute(context.Background(), ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 10, Price: 0.5})
	require.Error(t, err)
	assert.Equal(t, 0, ex.buyCalls)
}

func TestExecuteExchangeErrorRecordedAsFailed(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderErr: errors.New("connection reset")}
	svc, _ := newGate(t, ex)

	tr, err := svc.Execute(context.Background(), ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 10, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFailed, tr.Status)
	assert.Equal(t, "connection reset", tr.Error)
}

func TestExecuteExchangeRefusalRecordedAsRejected(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: false, Error: "insufficient balance"}}
	svc, _ := newGate(t, ex)

	tr, err := svc.Execute(context.Background(), ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 10, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusRejected, tr.Status)
	assert.Equal(t, "insufficient balance", tr.Error)
}

func TestExecuteRoutesNoOutcomeToSell(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true, OrderID: "ord-9"}}
	svc, _ := newGate(t, ex)

	tr, err := svc.Execute(context.Background(), ExecuteRequest{MarketID: "mkt-1", Outcome: "no", Quantity: 10, Price: 0.5})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSideSell, tr.Side)
	assert.Equal(t, 1, ex.sellCalls)
	assert.Equal(t, 0, ex.buyCalls)
}

func TestCancelOnlyPendingTrades(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true, OrderID: "ord-1"}}
	svc, trades := newGate(t, ex)
	ctx := context.Background()

	filled, err := svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 10, Price: 0.5})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, filled.TradeID)
	assert.ErrorIs(t, err, domain.ErrNotCancellable)

	got, err := svc.Get(ctx, filled.TradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, got.Status)

	// A stuck pending trade can be cancelled, with a best-effort exchange cancel.
	stuck := domain.TradeResult{
		TradeID:   "stuck-1",
		Asset:     "mkt-2",
		Side:      domain.TradeSideBuy,
		Quantity:  5,
		Price:     0.4,
		Status:    domain.TradeStatusPending,
		OrderID:   "ord-stuck",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, trades.Insert(ctx, stuck))

	cancelled, err := svc.Cancel(ctx, "stuck-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"ord-stuck"}, ex.cancelled)
}

func TestReconcilePendingMarksStaleTradesFailed(t *testing.T) {
	svc, trades := newGate(t, &fakeExchange{mid: 0.5})
	ctx := context.Background()

	stale := domain.TradeResult{
		TradeID:   "old-1",
		Asset:     "mkt-1",
		Status:    domain.TradeStatusPending,
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := domain.TradeResult{
		TradeID:   "new-1",
		Asset:     "mkt-2",
		Status:    domain.TradeStatusPending,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, trades.Insert(ctx, stale))
	require.NoError(t, trades.Insert(ctx, fresh))

	reconciled, err := svc.ReconcilePending(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, reconciled, 1)
	assert.Equal(t, "old-1", reconciled[0].TradeID)
	assert.Equal(t, domain.TradeStatusFailed, reconciled[0].Status)
	assert.Equal(t, reconcileError, reconciled[0].Error)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "new-1", pending[0].TradeID)
}

func TestSummaryAggregates(t *testing.T) {
	ex := &fakeExchange{mid: 0.5, orderRes: domain.OrderResult{Success: true, OrderID: "ord"}}
	svc, trades := newGate(t, ex)
	ctx := context.Background()

	_, err := svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "yes", Quantity: 100, Price: 0.5})
	require.NoError(t, err)
	_, err = svc.Execute(ctx, ExecuteRequest{MarketID: "mkt-1", Outcome: "no", Quantity: 40, Price: 0.5})
	require.NoError(t, err)

	require.NoError(t, trades.Insert(ctx, domain.TradeResult{
		TradeID:   "p1",
		Asset:     "mkt-2",
		Status:    domain.TradeStatusPending,
		Timestamp: time.Now().UTC(),
	}))

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalTrades)
	assert.Equal(t, 2, sum.Filled)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.BuyTrades)
	assert.Equal(t, 1, sum.SellTrades)
	assert.InDelta(t, 50.0, sum.TotalBuyValue, 1e-9)
	assert.InDelta(t, 20.0, sum.TotalSellValue, 1e-9)
	assert.InDelta(t, 30.0, sum.NetValue, 1e-9)
	assert.Equal(t, 2, sum.Assets["mkt-1"].Count)
	assert.Len(t, sum.LatestTrades, 2)
}
