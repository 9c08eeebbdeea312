package ports

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// WhaleFeed recupera el leaderboard y la actividad por trader.
type WhaleFeed interface {
	// TopTraders devuelve el leaderboard actual, el mejor rankeado primero.
	TopTraders(ctx context.Context) ([]domain.LeaderboardEntry, error)

	// RecentTrades devuelve los últimos trades observados de una dirección,
	// el más nuevo primero. El feed repite historia reciente en cada llamada;
	// los callers dedupean por TxHash.
	RecentTrades(ctx context.Context, address string) ([]domain.WhaleTrade, error)
}
