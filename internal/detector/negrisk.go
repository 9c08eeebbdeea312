package detector

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/polysim/engine/internal/domain"
)

// NegRiskConfig contiene los umbrales del detector de arbitraje.
type NegRiskConfig struct {
	Buffer         float64 // dispara solo cuando suma de precios < 1.0 - buffer
	MaxPositionPct float64 // del balance disponible, por oportunidad
}

// NegRisk escanea eventos NegRisk buscando sumas de precios bajo $1.00.
// Comprar una share de cada outcome garantiza entonces un payout de $1.00
// gane quien gane. Los mercados NegRisk son fee-free por construcción, así
// que acá no hay aritmética de fees.
type NegRisk struct {
	cache    Snapshots
	bankroll Bankroll
	cfg      NegRiskConfig
}

// NewNegRisk crea el detector de arbitraje NegRisk.
func NewNegRisk(cache Snapshots, bankroll Bankroll, cfg NegRiskConfig) *NegRisk {
	return &NegRisk{cache: cache, bankroll: bankroll, cfg: cfg}
}

// Strategy implementa Detector.
func (d *NegRisk) Strategy() domain.StrategyID { return domain.StrategyNegRisk }

// Detect implementa Detector.
func (d *NegRisk) Detect(_ context.Context) []domain.Opportunity {
	available := d.bankroll.AvailableCapital()
	var opps []domain.Opportunity

	for _, m := range d.cache.All() {
		if !m.NegRisk || m.Status != domain.MarketOpen || len(m.Outcomes) < 2 {
			continue
		}
		if d.bankroll.HasOpenPosition(domain.StrategyNegRisk, m.ID) {
			continue
		}

		sum := m.PriceSum()
		if sum <= 0 || sum >= 1.0-d.cfg.Buffer {
			continue
		}

		// Solo sets enteros: una share de cada outcome por set.
		maxSpend := available * d.cfg.MaxPositionPct
		sets := math.Floor(maxSpend / sum)
		if sets < 1 {
			continue
		}

		legs := make([]domain.OpportunityLeg, 0, len(m.Outcomes))
		for outcome, q := range m.Outcomes {
			if q.Price <= 0 {
				legs = nil
				break
			}
			legs = append(legs, domain.OpportunityLeg{
				MarketID:   m.ID,
				MarketName: m.Question,
				Outcome:    outcome,
				Price:      q.Price,
				Shares:     sets,
			})
		}
		if legs == nil {
			continue
		}

		opp := domain.Opportunity{
			Strategy:      domain.StrategyNegRisk,
			Legs:          legs,
			EstimatedCost: sum * sets,
			EstimatedEdge: (1.0 - sum) * sets,
			Confidence:    1.0, // el edge es estructural, no probabilístico
			Arbitrage:     true,
			PriceSum:      sum,
			ArbEventID:    m.EventID,
			DetectedAt:    time.Now(),
		}
		slog.Debug("negrisk: arbitrage candidate",
			"market", domain.TruncateQuestion(m.Question, m.ID, 40),
			"price_sum", sum, "sets", sets, "edge", opp.EstimatedEdge)
		opps = append(opps, opp)
	}

	return prefilter(opps, available)
}
