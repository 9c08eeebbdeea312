package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polysim/engine/internal/domain"
)

func TestTradeOpenedSingleLeg(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.TradeOpened(context.Background(), domain.Trade{
		ID:       "t1",
		Strategy: domain.StrategyBond,
		Legs: []domain.TradeLeg{{
			MarketID: "0xabc", MarketName: "Will it rain tomorrow?",
			Outcome: "YES", EntryPrice: 0.96, Shares: 20.8, Cost: 19.97,
		}},
		TotalCost: 19.97,
		OpenedAt:  time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, "OPEN")
	assert.Contains(t, out, "HIGH_PROB_BOND")
	assert.Contains(t, out, "Will it rain tomorrow?")
	assert.Contains(t, out, "$0.960")
}

func TestTradeSettledShowsOutcomeAndPnL(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.TradeSettled(context.Background(), domain.Trade{
		ID:       "t1",
		Strategy: domain.StrategyNegRisk,
		Legs: []domain.TradeLeg{{
			MarketID: "ev1", MarketName: "Who wins?", Outcome: "Bob",
		}},
		Status:            domain.TradeResolved,
		ResolutionOutcome: "Bob",
		Payout:            10,
		RealizedPnL:       0.5,
	})

	out := buf.String()
	assert.Contains(t, out, "SETTLE")
	assert.Contains(t, out, "Bob won")
	assert.Contains(t, out, "+$0.50")
}

func TestTradeSettledStaleLoss(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.TradeSettled(context.Background(), domain.Trade{
		ID:          "t1",
		Strategy:    domain.StrategyWhale,
		Legs:        []domain.TradeLeg{{MarketID: "0xdead", Outcome: "YES"}},
		Status:      domain.TradeFailed,
		RealizedPnL: -5,
	})

	out := buf.String()
	assert.Contains(t, out, "STALE")
	assert.Contains(t, out, "lost $5.00")
}

func TestStatusRendersTables(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	state := domain.LedgerState{
		TotalBalance:    940,
		ReservedCapital: 60,
		RealizedPnL:     12.5,
	}
	open := []domain.Trade{{
		Strategy: domain.StrategyBond,
		Legs: []domain.TradeLeg{{
			MarketID: "0xabc", MarketName: "Test market", Outcome: "YES",
			EntryPrice: 0.96, Shares: 10, Cost: 9.6,
		}},
		OpenedAt: time.Now().Add(-2 * time.Minute),
	}}
	report := domain.PnLReport{
		Strategies: []domain.StrategyPnL{
			{Strategy: domain.StrategyBond, Trades: 3, Wins: 2, Losses: 1, WinRate: 0.667, RealizedPnL: 12.5},
		},
	}

	c.Status(context.Background(), state, open, report)

	out := buf.String()
	assert.Contains(t, out, "balance $940.00")
	assert.Contains(t, out, "Open positions (1)")
	assert.Contains(t, out, "Strategy P&L")
	assert.Contains(t, out, "67%")
}
