package resolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
)

type fakeFeed struct {
	markets map[string]domain.MarketSnapshot
	errs    map[string]error
}

func (f *fakeFeed) ListMarkets(context.Context) ([]domain.MarketSnapshot, error) { return nil, nil }

func (f *fakeFeed) FetchMarket(_ context.Context, id string) (domain.MarketSnapshot, error) {
	if err := f.errs[id]; err != nil {
		return domain.MarketSnapshot{}, err
	}
	m, ok := f.markets[id]
	if !ok {
		return domain.MarketSnapshot{}, errors.New("not found")
	}
	return m, nil
}

func (f *fakeFeed) Orderbook(context.Context, string) (map[string]domain.OutcomeQuote, error) {
	return nil, nil
}

type fakeClock struct {
	lastSeen map[string]time.Time
}

func (c *fakeClock) LastSeen(id string) (time.Time, bool) {
	t, ok := c.lastSeen[id]
	return t, ok
}

func newTestEngine(l *ledger.Ledger, feed *fakeFeed, clock *fakeClock) *Engine {
	return New(l, feed, clock, nil, Config{
		Interval:   5 * time.Second,
		StaleAfter: 30 * time.Minute,
	})
}

func openTrade(t *testing.T, l *ledger.Ledger, marketID, outcome string, price, shares float64) domain.Trade {
	t.Helper()
	trade, err := l.Reserve(context.Background(), domain.Opportunity{
		Strategy: domain.StrategyBond,
		Legs: []domain.OpportunityLeg{{
			MarketID: marketID,
			Outcome:  outcome,
			Price:    price,
			Shares:   shares,
		}},
		EstimatedCost: price * shares,
	})
	require.NoError(t, err)
	return trade
}

func TestEngineSettlesResolvedMarket(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	trade := openTrade(t, l, "m1", "YES", 0.96, 100) // $96 in

	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"m1": {ID: "m1", Status: domain.MarketResolved, WinningOutcome: "YES"},
	}}
	e := newTestEngine(l, feed, &fakeClock{lastSeen: map[string]time.Time{"m1": time.Now()}})

	e.Tick(context.Background())

	assert.Empty(t, l.OpenTrades())
	state := l.State()
	assert.Equal(t, 1, state.TradesResolved)
	// $1000 - $96 + $100 payout.
	assert.InDelta(t, 1004.0, state.TotalBalance, 1e-9)
	assert.InDelta(t, 4.0, state.RealizedPnL, 1e-9)

	all := l.Trades()
	require.Len(t, all, 1)
	assert.Equal(t, trade.ID, all[0].ID)
	assert.Equal(t, domain.TradeResolved, all[0].Status)
}

func TestEngineSettlesLosingSide(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "NO", 0.40, 100)

	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"m1": {ID: "m1", Status: domain.MarketResolved, WinningOutcome: "YES"},
	}}
	e := newTestEngine(l, feed, &fakeClock{lastSeen: map[string]time.Time{"m1": time.Now()}})

	e.Tick(context.Background())

	state := l.State()
	assert.Equal(t, 1, state.TradesResolved)
	assert.InDelta(t, -40.0, state.RealizedPnL, 1e-9)
	assert.InDelta(t, 960.0, state.TotalBalance, 1e-9)
}

func TestEngineLeavesUnresolvedMarketsOpen(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "YES", 0.50, 10)

	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"m1": {ID: "m1", Status: domain.MarketOpen},
	}}
	e := newTestEngine(l, feed, &fakeClock{lastSeen: map[string]time.Time{"m1": time.Now()}})

	e.Tick(context.Background())

	assert.Len(t, l.OpenTrades(), 1)
	assert.Equal(t, 0, l.State().TradesResolved)
}

func TestEngineFailsStaleMarket(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "YES", 0.50, 10) // $5 in

	feed := &fakeFeed{errs: map[string]error{"m1": errors.New("gone")}}
	clock := &fakeClock{lastSeen: map[string]time.Time{
		"m1": time.Now().Add(-time.Hour), // unseen for twice the horizon
	}}
	e := newTestEngine(l, feed, clock)

	e.Tick(context.Background())

	assert.Empty(t, l.OpenTrades())
	state := l.State()
	assert.Equal(t, 1, state.TradesFailed)
	assert.InDelta(t, -5.0, state.RealizedPnL, 1e-9)
	assert.InDelta(t, 995.0, state.TotalBalance, 1e-9)
	assert.Equal(t, 0.0, state.ReservedCapital)
}

func TestEngineToleratesTransientFetchErrors(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "YES", 0.50, 10)

	feed := &fakeFeed{errs: map[string]error{"m1": errors.New("HTTP 500")}}
	clock := &fakeClock{lastSeen: map[string]time.Time{"m1": time.Now()}} // still on the feed
	e := newTestEngine(l, feed, clock)

	e.Tick(context.Background())

	assert.Len(t, l.OpenTrades(), 1)
	assert.Equal(t, 0, l.State().TradesFailed)
}

func TestEngineFailsResolvedMarketWithNoWinnerPastHorizon(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "YES", 0.50, 10) // $5 in

	// Cerrado en el venue pero sin outcome fijado en >= 0.99; nunca entra en
	// winners y FetchMarket sigue respondiendo.
	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"m1": {ID: "m1", Status: domain.MarketResolved, WinningOutcome: ""},
	}}
	clock := &fakeClock{lastSeen: map[string]time.Time{
		"m1": time.Now().Add(-time.Hour),
	}}
	e := newTestEngine(l, feed, clock)

	e.Tick(context.Background())

	assert.Empty(t, l.OpenTrades())
	state := l.State()
	assert.Equal(t, 1, state.TradesFailed)
	assert.InDelta(t, -5.0, state.RealizedPnL, 1e-9)
}

func TestEngineLeavesResolvedMarketWithNoWinnerOpenWhileFresh(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000}, nil, nil)
	openTrade(t, l, "m1", "YES", 0.50, 10)

	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"m1": {ID: "m1", Status: domain.MarketResolved, WinningOutcome: ""},
	}}
	clock := &fakeClock{lastSeen: map[string]time.Time{"m1": time.Now()}}
	e := newTestEngine(l, feed, clock)

	e.Tick(context.Background())

	// El feed aún lo lleva fresco; el ganador puede aparecer en un tick
	// posterior.
	assert.Len(t, l.OpenTrades(), 1)
	assert.Equal(t, 0, l.State().TradesFailed)
}

func TestEngineSettlesArbitragePayingOneLeg(t *testing.T) {
	l := ledger.New(ledger.Config{InitialBalance: 1000, ArbBuffer: 0.02}, nil, nil)
	trade, err := l.Reserve(context.Background(), domain.Opportunity{
		Strategy: domain.StrategyNegRisk,
		Legs: []domain.OpportunityLeg{
			{MarketID: "ev1", Outcome: "Alice", Price: 0.40, Shares: 10},
			{MarketID: "ev1", Outcome: "Bob", Price: 0.35, Shares: 10},
			{MarketID: "ev1", Outcome: "Carol", Price: 0.20, Shares: 10},
		},
		Arbitrage: true,
		PriceSum:  0.95,
	})
	require.NoError(t, err)

	feed := &fakeFeed{markets: map[string]domain.MarketSnapshot{
		"ev1": {ID: "ev1", Status: domain.MarketResolved, WinningOutcome: "Bob"},
	}}
	e := newTestEngine(l, feed, &fakeClock{lastSeen: map[string]time.Time{"ev1": time.Now()}})

	e.Tick(context.Background())

	all := l.Trades()
	require.Len(t, all, 1)
	resolved := all[0]
	assert.Equal(t, trade.ID, resolved.ID)
	assert.Equal(t, domain.TradeResolved, resolved.Status)
	assert.Equal(t, "Bob", resolved.ResolutionOutcome)
	// 10 sets at $0.95 cost $9.50; the Bob leg pays 10 × $1.00.
	assert.InDelta(t, 10.0, resolved.Payout, 1e-9)
	assert.InDelta(t, 0.50, resolved.RealizedPnL, 1e-9)
}
