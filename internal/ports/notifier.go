package ports

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// Notifier presenta el estado del ledger y del P&L al operador.
type Notifier interface {
	// TradeOpened anuncia un trade recién aceptado.
	TradeOpened(ctx context.Context, trade domain.Trade)

	// TradeSettled anuncia un trade resuelto o fallido.
	TradeSettled(ctx context.Context, trade domain.Trade)

	// Status renderiza el estado actual del ledger, las posiciones abiertas
	// y el reporte de P&L por estrategia.
	Status(ctx context.Context, state domain.LedgerState, open []domain.Trade, report domain.PnLReport)
}
