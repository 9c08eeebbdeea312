package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/polysim/engine/internal/domain"
)

const (
	dataLeaderboardPath = "/leaderboard"
	dataTradesPath      = "/trades"

	leaderboardWindow = "7d"
	leaderboardLimit  = 50
	tradesLimit       = 50
)

// TopTraders devuelve el leaderboard de profit a 7 días del venue, el mejor primero.
func (c *Client) TopTraders(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	url := fmt.Sprintf("%s%s?window=%s&rankType=profit&limit=%d",
		c.dataBase, dataLeaderboardPath, leaderboardWindow, leaderboardLimit)

	var resp []dataLeaderboardEntry
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("data.TopTraders: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(resp))
	for i, r := range resp {
		pnl, _ := r.Amount.Float64()
		vol, _ := r.Volume.Float64()
		rank := i + 1
		if v, err := r.Rank.Int64(); err == nil && v > 0 {
			rank = int(v)
		}
		entries = append(entries, domain.LeaderboardEntry{
			Address: r.ProxyWallet,
			PnL:     pnl,
			Volume:  vol,
			Rank:    rank,
		})
	}
	return entries, nil
}

// RecentTrades devuelve las últimas compras de un trader, la más nueva
// primero. Las ventas se filtran; la estrategia de copia solo sigue dinero
// entrando a un lado.
func (c *Client) RecentTrades(ctx context.Context, address string) ([]domain.WhaleTrade, error) {
	url := fmt.Sprintf("%s%s?user=%s&limit=%d&takerOnly=true",
		c.dataBase, dataTradesPath, address, tradesLimit)

	var resp []dataTrade
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("data.RecentTrades %s: %w", address, err)
	}

	trades := make([]domain.WhaleTrade, 0, len(resp))
	for _, r := range resp {
		if r.Side != "BUY" {
			continue
		}
		price, _ := r.Price.Float64()
		size, _ := r.Size.Float64()
		ts, _ := r.Timestamp.Int64()
		observed := time.Now()
		if ts > 0 {
			observed = time.Unix(ts, 0)
		}
		trades = append(trades, domain.WhaleTrade{
			Address:    r.ProxyWallet,
			MarketID:   r.ConditionID,
			Outcome:    normalizeOutcome(r.Outcome),
			Price:      price,
			Shares:     size,
			ObservedAt: observed,
			TxHash:     r.TransactionHash,
		})
	}
	return trades, nil
}
