package ports

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// MarketFeed recupera datos de mercados del venue.
type MarketFeed interface {
	// ListMarkets devuelve un snapshot de cada mercado activo que importa a
	// los detectores (eventos NegRisk y mercados crypto). Pagina internamente.
	ListMarkets(ctx context.Context) ([]domain.MarketSnapshot, error)

	// FetchMarket devuelve el snapshot actual de un solo mercado, incluido
	// su estado de resolución. Lo usa el motor de resolución.
	FetchMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error)

	// Orderbook devuelve la profundidad del libro por outcome de un mercado.
	Orderbook(ctx context.Context, marketID string) (map[string]domain.OutcomeQuote, error)
}
