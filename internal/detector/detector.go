// Package detector implementa los cuatro detectores de oportunidades. Cada
// uno lee la cache de snapshots compartida más su propio estado auxiliar y
// propone oportunidades; solo el ledger decide la aceptación.
package detector

import (
	"context"

	"github.com/polysim/engine/internal/domain"
)

// Bankroll es la porción de solo lectura del ledger que necesitan los
// detectores: un prefiltro barato de capital disponible y consultas de
// posiciones abiertas. El check autoritativo de fondos sigue dentro de Reserve.
type Bankroll interface {
	AvailableCapital() float64
	OpenPositionsFor(strategy domain.StrategyID) int
	HasOpenPosition(strategy domain.StrategyID, marketID string) bool
}

// Snapshots es la vista de la cache de snapshots que ven los detectores.
type Snapshots interface {
	All() []domain.MarketSnapshot
	Snapshot(marketID string) (domain.MarketSnapshot, bool)
}

// Detector produce cero o más oportunidades por tick. Detect debe ser lo
// bastante barato para correr en el intervalo de su estrategia y nunca debe
// bloquear el tick de otra; los errores del feed se contienen en el tick.
type Detector interface {
	Strategy() domain.StrategyID
	Detect(ctx context.Context) []domain.Opportunity
}

// prefilter descarta oportunidades cuyo coste supera el capital disponible
// cacheado, para reducir contención innecesaria sobre el ledger.
func prefilter(opps []domain.Opportunity, available float64) []domain.Opportunity {
	out := opps[:0]
	for _, o := range opps {
		if o.EstimatedCost <= available {
			out = append(out, o)
		}
	}
	return out
}
