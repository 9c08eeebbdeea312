package ports

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// PriceFeed recupera precios de activos de referencia de un exchange. Las
// implementaciones caen a un proveedor secundario cuando el primario no está.
type PriceFeed interface {
	// CurrentPrice devuelve el último precio spot de un activo ("BTC", ...).
	CurrentPrice(ctx context.Context, asset string) (float64, error)

	// Candles devuelve las velas OHLCV más recientes de un activo, la más
	// vieja primero. interval es un string de intervalo del exchange como "1h".
	Candles(ctx context.Context, asset, interval string, limit int) ([]domain.Candle, error)
}
