package ports

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// Store persiste el estado del ledger, los trades y el registro de ballenas.
// El núcleo lo trata como un sink: los fallos de escritura se loguean, nunca
// bloquean el trading.
type Store interface {
	// InitFund crea una fila de fondo fresca con el balance inicial dado,
	// reemplazando cualquier ejecución previa.
	InitFund(ctx context.Context, balance float64) error

	// LoadFund devuelve el estado del ledger persistido de la última
	// ejecución. Devuelve ok=false cuando aún no se inicializó ningún fondo.
	LoadFund(ctx context.Context) (state domain.LedgerState, ok bool, err error)

	// SaveFund sobrescribe el estado del ledger persistido.
	SaveFund(ctx context.Context, state domain.LedgerState) error

	// SaveTrade inserta o actualiza un trade por id.
	SaveTrade(ctx context.Context, trade domain.Trade) error

	// OpenTrades devuelve cada trade no terminal, para recuperación tras crash.
	OpenTrades(ctx context.Context) ([]domain.Trade, error)

	// UpsertWhale inserta o refresca una ballena seguida.
	UpsertWhale(ctx context.Context, whale domain.Whale) error

	// Whales devuelve cada ballena seguida.
	Whales(ctx context.Context) ([]domain.Whale, error)

	// DeleteWhale borra una ballena expulsada por inactividad.
	DeleteWhale(ctx context.Context, address string) error

	// RecordDailyPnL acumula P&L realizado de una estrategia en el día UTC
	// actual.
	RecordDailyPnL(ctx context.Context, strategy domain.StrategyID, pnl float64) error

	// Close apaga el store de forma limpia.
	Close() error
}
