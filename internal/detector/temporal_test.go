package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysim/engine/internal/domain"
)

func temporalConfig() TemporalConfig {
	return TemporalConfig{
		Window:             time.Minute,
		MinMovePct:         0.02,
		MinMispricingPct:   0.10,
		MaxTimeRemaining:   10 * time.Minute,
		MaxLaggingPrice:    0.70,
		DefaultPositionPct: 0.01,
		MaxPositionPct:     0.03,
	}
}

func cryptoMarket(id string, yes, no float64, expiresIn time.Duration) domain.MarketSnapshot {
	m := binaryMarket(id, yes, no)
	m.Crypto15Min = true
	m.ReferenceAsset = "BTC"
	m.ExpiryTime = time.Now().Add(expiresIn)
	return m
}

func newTestTemporal(cache *fakeSnapshots, history *fakeHistory, available float64) *Temporal {
	return NewTemporal(cache, history, newFakeBankroll(available), temporalConfig())
}

func TestTemporalBuysLaggingWinner(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.50, 0.50, 5*time.Minute),
	}}
	history := &fakeHistory{refMoves: map[string]float64{"BTC": 0.03}}
	d := newTestTemporal(cache, history, 1000)

	opps := d.Detect(context.Background())

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, domain.StrategyTemporal, opp.Strategy)
	require.Len(t, opp.Legs, 1)
	assert.Equal(t, "YES", opp.Legs[0].Outcome, "an up move means YES should win")
	assert.InDelta(t, 10.0, opp.EstimatedCost, 1e-9) // 1% of $1000
	assert.InDelta(t, 20.0, opp.Legs[0].Shares, 1e-9)
	assert.InDelta(t, 0.75, opp.Confidence, 1e-9)
}

func TestTemporalDownMoveBuysNo(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.55, 0.45, 5*time.Minute),
	}}
	history := &fakeHistory{refMoves: map[string]float64{"BTC": -0.04}}
	d := newTestTemporal(cache, history, 1000)

	opps := d.Detect(context.Background())

	require.Len(t, opps, 1)
	assert.Equal(t, "NO", opps[0].Legs[0].Outcome)
	assert.Equal(t, 0.45, opps[0].Legs[0].Price)
}

func TestTemporalSkipsAdjustedMarkets(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.50, 0.50, 5*time.Minute),
	}}
	history := &fakeHistory{
		refMoves:    map[string]float64{"BTC": 0.03},
		marketMoves: map[string]float64{"m1": 0.02}, // the market already followed
	}
	d := newTestTemporal(cache, history, 1000)

	assert.Empty(t, d.Detect(context.Background()))
}

func TestTemporalIgnoresSmallMoves(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.50, 0.50, 5*time.Minute),
	}}
	history := &fakeHistory{refMoves: map[string]float64{"BTC": 0.01}}
	d := newTestTemporal(cache, history, 1000)

	assert.Empty(t, d.Detect(context.Background()))
}

func TestTemporalRequiresLaggingPrice(t *testing.T) {
	// The winning side already trades at 0.75: no lag left to exploit.
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.75, 0.25, 5*time.Minute),
	}}
	history := &fakeHistory{refMoves: map[string]float64{"BTC": 0.03}}
	d := newTestTemporal(cache, history, 1000)

	assert.Empty(t, d.Detect(context.Background()))
}

func TestTemporalOnlyNearExpiry(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("far", 0.50, 0.50, 2*time.Hour),
		cryptoMarket("gone", 0.50, 0.50, -time.Minute),
	}}
	history := &fakeHistory{refMoves: map[string]float64{"BTC": 0.03}}
	d := newTestTemporal(cache, history, 1000)

	assert.Empty(t, d.Detect(context.Background()))
}

func TestTemporalNeedsReferenceHistory(t *testing.T) {
	cache := &fakeSnapshots{markets: []domain.MarketSnapshot{
		cryptoMarket("m1", 0.50, 0.50, 5*time.Minute),
	}}
	d := newTestTemporal(cache, &fakeHistory{}, 1000)

	assert.Empty(t, d.Detect(context.Background()))
}
