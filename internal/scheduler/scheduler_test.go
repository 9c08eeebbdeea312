package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
	"github.com/polysim/engine/internal/snapshot"
)

type fakeReserver struct {
	mu       sync.Mutex
	accepted []domain.Opportunity
	err      error
}

func (r *fakeReserver) Reserve(_ context.Context, opp domain.Opportunity) (domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.Trade{}, r.err
	}
	r.accepted = append(r.accepted, opp)
	return domain.Trade{ID: "t1", Strategy: opp.Strategy, Legs: make([]domain.TradeLeg, len(opp.Legs))}, nil
}

func (r *fakeReserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accepted)
}

type fakeDetector struct {
	mu    sync.Mutex
	ticks int
	opps  []domain.Opportunity
}

func (d *fakeDetector) Strategy() domain.StrategyID { return domain.StrategyBond }

func (d *fakeDetector) Detect(context.Context) []domain.Opportunity {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks++
	return d.opps
}

func (d *fakeDetector) tickCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

type fakeMarketFeed struct {
	mu      sync.Mutex
	markets []domain.MarketSnapshot
	calls   int
}

func (f *fakeMarketFeed) ListMarkets(context.Context) ([]domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.markets, nil
}

func (f *fakeMarketFeed) FetchMarket(context.Context, string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{}, errors.New("not implemented")
}

func (f *fakeMarketFeed) Orderbook(context.Context, string) (map[string]domain.OutcomeQuote, error) {
	return nil, errors.New("not implemented")
}

type fakePrices struct {
	mu     sync.Mutex
	price  float64
	assets []string
}

func (f *fakePrices) CurrentPrice(_ context.Context, asset string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, asset)
	return f.price, nil
}

func (f *fakePrices) Candles(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, errors.New("not implemented")
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		Strategy: domain.StrategyBond,
		Legs: []domain.OpportunityLeg{{
			MarketID: "m1", Outcome: "YES", Price: 0.96, Shares: 10,
		}},
		EstimatedCost: 9.6,
	}
}

func TestRunDetectorForwardsAcceptedProposals(t *testing.T) {
	reserver := &fakeReserver{}
	s := New(reserver, nil, &fakeMarketFeed{}, &fakePrices{}, snapshot.NewCache(), nil, nil, nil, nil, Config{})

	s.runDetector(context.Background(), &fakeDetector{opps: []domain.Opportunity{testOpportunity()}})

	assert.Equal(t, 1, reserver.count())
}

func TestRunDetectorDropsRejections(t *testing.T) {
	// A rejected proposal is logged and dropped; no retry within the tick.
	reserver := &fakeReserver{err: ledger.ErrInsufficientFunds}
	s := New(reserver, nil, &fakeMarketFeed{}, &fakePrices{}, snapshot.NewCache(), nil, nil, nil, nil, Config{})

	det := &fakeDetector{opps: []domain.Opportunity{testOpportunity(), testOpportunity()}}
	s.runDetector(context.Background(), det)

	assert.Equal(t, 0, reserver.count())
	assert.Equal(t, 1, det.tickCount(), "the detector is polled once per tick regardless of rejections")
}

func TestRefreshMarketsPublishesToCache(t *testing.T) {
	cache := snapshot.NewCache()
	feed := &fakeMarketFeed{markets: []domain.MarketSnapshot{
		{ID: "m1", Status: domain.MarketOpen},
	}}
	s := New(&fakeReserver{}, nil, feed, &fakePrices{}, cache, nil, nil, nil, nil, Config{})

	s.refreshMarkets(context.Background())

	_, ok := cache.Snapshot("m1")
	assert.True(t, ok)
}

func TestSampleRefPricesCoversCachedAssets(t *testing.T) {
	cache := snapshot.NewCache()
	cache.Publish([]domain.MarketSnapshot{
		{ID: "m1", ReferenceAsset: "BTC", Status: domain.MarketOpen},
		{ID: "m2", ReferenceAsset: "BTC", Status: domain.MarketOpen},
		{ID: "m3", Status: domain.MarketOpen}, // no reference asset
	})
	prices := &fakePrices{price: 65000}
	s := New(&fakeReserver{}, nil, &fakeMarketFeed{}, prices, cache, nil, nil, nil, nil, Config{})

	s.sampleRefPrices(context.Background())

	require.Len(t, prices.assets, 1, "one poll per distinct asset")
	assert.Equal(t, "BTC", prices.assets[0])
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	det := &fakeDetector{}
	s := New(&fakeReserver{}, nil, &fakeMarketFeed{}, &fakePrices{}, snapshot.NewCache(),
		[]Strategy{{Detector: det, Interval: 5 * time.Millisecond}}, nil, nil, nil,
		Config{MarketRefresh: 5 * time.Millisecond, RefPriceInterval: 5 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Greater(t, det.tickCount(), 0, "the strategy loop ticked while running")
}
