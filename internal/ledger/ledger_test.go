package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysim/engine/internal/domain"
)

type fakeSnapshots struct {
	byID map[string]domain.MarketSnapshot
}

func (f fakeSnapshots) Snapshot(id string) (domain.MarketSnapshot, bool) {
	s, ok := f.byID[id]
	return s, ok
}

func newTestLedger(balance float64) *Ledger {
	return New(Config{
		InitialBalance: balance,
		ArbBuffer:      0.02,
		Fees:           FeeCalculator{Rate: 0.25, Exponent: 2},
	}, nil, nil)
}

func singleLegOpp(strategy domain.StrategyID, marketID string, price, shares float64) domain.Opportunity {
	return domain.Opportunity{
		Strategy: strategy,
		Legs: []domain.OpportunityLeg{
			{MarketID: marketID, Outcome: "YES", Price: price, Shares: shares},
		},
		DetectedAt: time.Now(),
	}
}

// Scenario A: NegRisk market priced {0.40, 0.35, 0.20} with buffer 0.02 is
// accepted at cost $0.95 and pays $1.00 on resolution of any outcome.
func TestLedger_NegRiskArbitrageLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(1000)

	opp := domain.Opportunity{
		Strategy:  domain.StrategyNegRisk,
		Arbitrage: true,
		PriceSum:  0.95,
		Legs: []domain.OpportunityLeg{
			{MarketID: "m-a", Outcome: "YES", Price: 0.40, Shares: 1},
			{MarketID: "m-b", Outcome: "YES", Price: 0.35, Shares: 1},
			{MarketID: "m-c", Outcome: "YES", Price: 0.20, Shares: 1},
		},
	}

	trade, err := l.Reserve(ctx, opp)
	require.NoError(t, err)
	require.Len(t, trade.Legs, 3)
	assert.NotEmpty(t, trade.ArbGroupID)
	assert.InDelta(t, 0.95, trade.TotalCost, 1e-9)

	state := l.State()
	assert.InDelta(t, 1000-0.95, state.TotalBalance, 1e-9)
	assert.InDelta(t, 0.95, state.ReservedCapital, 1e-9)

	// Market B resolves YES; the other legs lose.
	res, err := l.Settle(ctx, trade.ID, map[string]string{
		"m-a": "NO", "m-b": "YES", "m-c": "NO",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.00, res.Payout, 1e-9)
	assert.InDelta(t, 0.05, res.RealizedPnL, 1e-9)

	state = l.State()
	assert.InDelta(t, 1000.05, state.TotalBalance, 1e-9)
	assert.InDelta(t, 0.0, state.ReservedCapital, 1e-9)
	assert.InDelta(t, 0.05, state.PerStrategyRealized[domain.StrategyNegRisk], 1e-9)
}

func TestLedger_ArbitrageRevalidatedAgainstFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	snaps := fakeSnapshots{byID: map[string]domain.MarketSnapshot{
		// Prices moved since detection: sum is now 1.01.
		"m-a": {ID: "m-a", Outcomes: map[string]domain.OutcomeQuote{"YES": {Price: 0.55}}},
		"m-b": {ID: "m-b", Outcomes: map[string]domain.OutcomeQuote{"YES": {Price: 0.46}}},
	}}
	l := New(Config{InitialBalance: 1000, ArbBuffer: 0.02}, snaps, nil)

	opp := domain.Opportunity{
		Strategy:  domain.StrategyNegRisk,
		Arbitrage: true,
		PriceSum:  0.95, // stale detection-time sum
		Legs: []domain.OpportunityLeg{
			{MarketID: "m-a", Outcome: "YES", Price: 0.50, Shares: 1},
			{MarketID: "m-b", Outcome: "YES", Price: 0.45, Shares: 1},
		},
	}

	_, err := l.Reserve(ctx, opp)
	require.ErrorIs(t, err, ErrStaleArbitrage)

	// Nothing was committed: no partial legs, untouched balance.
	assert.Empty(t, l.OpenTrades())
	assert.InDelta(t, 1000.0, l.State().TotalBalance, 1e-9)
}

func TestLedger_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(10)

	_, err := l.Reserve(ctx, singleLegOpp(domain.StrategyBond, "m-1", 0.95, 20))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.InDelta(t, 10.0, l.State().TotalBalance, 1e-9)
}

// Scenario C: two concurrent $600 reserves against a $1000 balance; exactly
// one succeeds.
func TestLedger_ConcurrentReserves(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, singleLegOpp(domain.StrategyBond, "m-1", 0.60, 1000))
		}(i)
	}
	wg.Wait()

	okCount, rejCount := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case assert.ErrorIs(t, err, ErrInsufficientFunds):
			rejCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, rejCount)

	state := l.State()
	assert.GreaterOrEqual(t, state.TotalBalance, 0.0)
	assert.InDelta(t, 400.0, state.TotalBalance, 1e-9)
}

func TestLedger_SettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(100)

	trade, err := l.Reserve(ctx, singleLegOpp(domain.StrategyBond, "m-1", 0.97, 2))
	require.NoError(t, err)

	winners := map[string]string{"m-1": "YES"}
	first, err := l.Settle(ctx, trade.ID, winners)
	require.NoError(t, err)
	balanceAfter := l.State().TotalBalance

	second, err := l.Settle(ctx, trade.ID, winners)
	require.ErrorIs(t, err, ErrAlreadySettled)
	assert.Equal(t, first.Trade.Status, second.Trade.Status)
	assert.InDelta(t, balanceAfter, l.State().TotalBalance, 1e-9)

	// Failing a resolved trade is equally a no-op.
	_, err = l.Fail(ctx, trade.ID)
	require.ErrorIs(t, err, ErrAlreadySettled)
	assert.InDelta(t, balanceAfter, l.State().TotalBalance, 1e-9)
}

func TestLedger_UnknownTrade(t *testing.T) {
	l := newTestLedger(100)
	_, err := l.Settle(context.Background(), "nope", map[string]string{"m": "YES"})
	assert.ErrorIs(t, err, ErrUnknownTrade)
}

// Scenario D: a vanished market fails its trade with a full loss, once.
func TestLedger_FailRecordsFullLoss(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(100)

	trade, err := l.Reserve(ctx, singleLegOpp(domain.StrategyTemporal, "m-gone", 0.50, 4))
	require.NoError(t, err)

	res, err := l.Fail(ctx, trade.ID)
	require.NoError(t, err)
	assert.InDelta(t, -trade.TotalCost, res.RealizedPnL, 1e-9)
	assert.Equal(t, domain.TradeFailed, res.Trade.Status)

	state := l.State()
	assert.InDelta(t, 100-trade.TotalCost, state.TotalBalance, 1e-9)
	assert.InDelta(t, 0.0, state.ReservedCapital, 1e-9)
	assert.Equal(t, 1, state.TradesFailed)
}

// Property: per-strategy realized P&L sums to the total after any sequence of
// settlements, and available capital never goes negative.
func TestLedger_PnLConsistencyAcrossStrategies(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(500)

	bond, err := l.Reserve(ctx, singleLegOpp(domain.StrategyBond, "m-1", 0.95, 10))
	require.NoError(t, err)
	whale, err := l.Reserve(ctx, singleLegOpp(domain.StrategyWhale, "m-2", 0.60, 10))
	require.NoError(t, err)
	temporal, err := l.Reserve(ctx, singleLegOpp(domain.StrategyTemporal, "m-3", 0.40, 5))
	require.NoError(t, err)

	_, err = l.Settle(ctx, bond.ID, map[string]string{"m-1": "YES"})
	require.NoError(t, err)
	_, err = l.Settle(ctx, whale.ID, map[string]string{"m-2": "NO"})
	require.NoError(t, err)
	_, err = l.Fail(ctx, temporal.ID)
	require.NoError(t, err)

	state := l.State()
	sum := 0.0
	for _, v := range state.PerStrategyRealized {
		sum += v
	}
	assert.InDelta(t, state.RealizedPnL, sum, 1e-9)
	assert.GreaterOrEqual(t, state.TotalBalance, 0.0)
	assert.InDelta(t, 0.0, state.ReservedCapital, 1e-9)
}

func TestLedger_FeesChargedOn15MinCryptoMarkets(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(100)

	opp := domain.Opportunity{
		Strategy: domain.StrategyBond,
		Legs: []domain.OpportunityLeg{
			{MarketID: "m-1", Outcome: "YES", Price: 0.95, Shares: 10, Crypto15Min: true},
		},
	}
	trade, err := l.Reserve(ctx, opp)
	require.NoError(t, err)

	fee := FeeCalculator{Rate: 0.25, Exponent: 2}.Fee(10, 0.95, true)
	assert.Greater(t, fee, 0.0)
	assert.InDelta(t, 0.95*10+fee, trade.TotalCost, 1e-9)
	assert.InDelta(t, fee, l.State().TotalFeesPaid, 1e-9)
}

func TestLedger_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(250)

	trade, err := l.Reserve(ctx, singleLegOpp(domain.StrategyBond, "m-1", 0.95, 10))
	require.NoError(t, err)

	state := l.State()
	restored := newTestLedger(0)
	restored.Restore(state, l.OpenTrades())

	assert.InDelta(t, state.TotalBalance, restored.State().TotalBalance, 1e-9)
	require.Len(t, restored.OpenTrades(), 1)

	// The restored ledger can settle the carried-over trade.
	res, err := restored.Settle(ctx, trade.ID, map[string]string{"m-1": "YES"})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.Payout, 1e-9)
}
