package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysim/engine/internal/domain"
)

func TestMapNegRiskEventCollapsesChildMarkets(t *testing.T) {
	ev := gammaEvent{
		ID:         "12345",
		Title:      "Who wins the nomination?",
		NegRisk:    true,
		Active:     true,
		EndDateISO: "2026-11-03T12:00:00Z",
		Markets: []gammaMarket{
			{
				ConditionID:    "0xaaa",
				GroupItemTitle: "Alice",
				Outcomes:       `["Yes","No"]`,
				OutcomePrices:  `["0.40","0.60"]`,
				CLOBTokenIDs:   `["tok-a-yes","tok-a-no"]`,
				Liquidity:      "5000",
			},
			{
				ConditionID:    "0xbbb",
				GroupItemTitle: "Bob",
				Outcomes:       `["Yes","No"]`,
				OutcomePrices:  `["0.35","0.65"]`,
				CLOBTokenIDs:   `["tok-b-yes","tok-b-no"]`,
				Liquidity:      "4000",
			},
			{
				ConditionID:    "0xccc",
				GroupItemTitle: "Carol",
				Outcomes:       `["Yes","No"]`,
				OutcomePrices:  `["0.20","0.80"]`,
				CLOBTokenIDs:   `["tok-c-yes","tok-c-no"]`,
				Liquidity:      "3000",
			},
		},
	}

	snaps := mapEvent(ev)

	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, "12345", snap.ID)
	assert.True(t, snap.NegRisk)
	assert.Equal(t, domain.MarketOpen, snap.Status)
	require.Len(t, snap.Outcomes, 3)
	assert.InDelta(t, 0.40, snap.Outcomes["Alice"].Price, 1e-9)
	assert.InDelta(t, 0.35, snap.Outcomes["Bob"].Price, 1e-9)
	assert.InDelta(t, 0.95, snap.PriceSum(), 1e-9)
	assert.Equal(t, "tok-a-yes", snap.Outcomes["Alice"].TokenID, "the outcome quote carries the YES token")
	assert.Equal(t, 2026, snap.ExpiryTime.Year())
}

func TestMapNegRiskEventPicksWinnerWhenClosed(t *testing.T) {
	ev := gammaEvent{
		ID:      "777",
		Title:   "Closed event",
		NegRisk: true,
		Closed:  true,
		Markets: []gammaMarket{
			{GroupItemTitle: "Alice", Outcomes: `["Yes","No"]`, OutcomePrices: `["1","0"]`, Closed: true},
			{GroupItemTitle: "Bob", Outcomes: `["Yes","No"]`, OutcomePrices: `["0","1"]`, Closed: true},
		},
	}

	snaps := mapEvent(ev)

	require.Len(t, snaps, 1)
	assert.Equal(t, domain.MarketResolved, snaps[0].Status)
	assert.Equal(t, "Alice", snaps[0].WinningOutcome)
}

func TestMapBinaryMarketNormalizesOutcomes(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0xdef",
		Question:      "Bitcoin Up or Down - 3pm ET?",
		Slug:          "bitcoin-up-or-down-15m-3pm",
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: `["0.55","0.45"]`,
		CLOBTokenIDs:  `["tok-yes","tok-no"]`,
		EndDateISO:    "2026-08-30T19:15:00Z",
		Liquidity:     "1200",
	}

	snap := mapBinaryMarket(gm, "ev9")

	assert.Equal(t, "0xdef", snap.ID)
	assert.Equal(t, "ev9", snap.EventID)
	assert.InDelta(t, 0.55, snap.Outcomes["YES"].Price, 1e-9)
	assert.InDelta(t, 0.45, snap.Outcomes["NO"].Price, 1e-9)
	assert.Equal(t, 1200.0, snap.Outcomes["YES"].Depth)
	assert.True(t, snap.Crypto15Min)
	assert.Equal(t, "BTC", snap.ReferenceAsset)
	assert.Equal(t, domain.MarketOpen, snap.Status)
}

func TestMapBinaryMarketResolved(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0xdef",
		Question:      "Will it happen?",
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: `["0","1"]`,
		Closed:        true,
	}

	snap := mapBinaryMarket(gm, "")

	assert.Equal(t, domain.MarketResolved, snap.Status)
	assert.Equal(t, "NO", snap.WinningOutcome)
}

func TestParseGammaTimeLayouts(t *testing.T) {
	assert.Equal(t, time.Date(2026, 8, 30, 19, 0, 0, 0, time.UTC),
		parseGammaTime("2026-08-30T19:00:00Z"))
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		parseGammaTime("2026-08-30"))
	assert.True(t, parseGammaTime("not a date").IsZero())
	assert.True(t, parseGammaTime("").IsZero())
}

func TestParseFloatArrayRejectsMalformedInput(t *testing.T) {
	assert.Equal(t, []float64{0.4, 0.6}, parseFloatArray(`["0.4","0.6"]`))
	assert.Nil(t, parseFloatArray(`["0.4","oops"]`))
	assert.Nil(t, parseFloatArray(""))
}

type captureSink struct {
	marketID string
	outcome  string
	price    float64
	calls    int
}

func (c *captureSink) UpdatePrice(marketID, outcome string, price float64) {
	c.marketID, c.outcome, c.price = marketID, outcome, price
	c.calls++
}

func TestStreamHandleMessageAppliesTicks(t *testing.T) {
	sink := &captureSink{}
	s := &Stream{sink: sink}
	tokens := map[string]assetRef{
		"tok-yes": {marketID: "0xdef", outcome: "YES"},
	}

	s.handleMessage([]byte(`[{"event_type":"price_change","asset_id":"tok-yes","price":"0.57"}]`), tokens)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "0xdef", sink.marketID)
	assert.Equal(t, "YES", sink.outcome)
	assert.InDelta(t, 0.57, sink.price, 1e-9)
}

func TestStreamHandleMessageIgnoresUnknownAssets(t *testing.T) {
	sink := &captureSink{}
	s := &Stream{sink: sink}

	s.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"other","price":"0.50"}`), map[string]assetRef{})
	s.handleMessage([]byte(`{"event_type":"book","asset_id":"tok-yes"}`), map[string]assetRef{"tok-yes": {}})
	s.handleMessage([]byte(`not json`), map[string]assetRef{})

	assert.Equal(t, 0, sink.calls)
}
