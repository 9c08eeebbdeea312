package detector

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/polysim/engine/internal/domain"
)

// PriceHistory expone las ventanas móviles de precio que compara el detector
// temporal: movimiento del activo de referencia vs movimiento del mercado.
type PriceHistory interface {
	RefMove(asset string, window time.Duration) (float64, bool)
	MarketMove(marketID string, window time.Duration) (float64, bool)
}

// TemporalConfig contiene los umbrales de detección de lag.
type TemporalConfig struct {
	Window             time.Duration // ventana de comparación de movimiento
	MinMovePct         float64       // movimiento de referencia que amerita actuar
	MinMispricingPct   float64       // edge implícito para disparar
	MaxTimeRemaining   time.Duration // solo mercados cerca de expirar
	MaxLaggingPrice    float64       // el lado de entrada aún debe cotizar por debajo
	DefaultPositionPct float64
	MaxPositionPct     float64
}

// Temporal explota el lag entre el movimiento spot de un activo de referencia
// y el ajuste de precio de un mercado cerca de expirar. Cuando el activo se
// movió claramente pero el lado ganador del mercado sigue barato, el mercado
// va tarde.
type Temporal struct {
	cache    Snapshots
	history  PriceHistory
	bankroll Bankroll
	cfg      TemporalConfig
	now      func() time.Time
}

// NewTemporal crea el detector de arbitraje temporal.
func NewTemporal(cache Snapshots, history PriceHistory, bankroll Bankroll, cfg TemporalConfig) *Temporal {
	return &Temporal{cache: cache, history: history, bankroll: bankroll, cfg: cfg, now: time.Now}
}

// Strategy implementa Detector.
func (d *Temporal) Strategy() domain.StrategyID { return domain.StrategyTemporal }

// Detect implementa Detector.
func (d *Temporal) Detect(_ context.Context) []domain.Opportunity {
	available := d.bankroll.AvailableCapital()
	now := d.now()
	var opps []domain.Opportunity

	for _, m := range d.cache.All() {
		if m.Status != domain.MarketOpen || m.NegRisk || m.ReferenceAsset == "" {
			continue
		}
		remaining := m.TimeToExpiry(now)
		if remaining <= 0 || remaining > d.cfg.MaxTimeRemaining {
			continue
		}
		if d.bankroll.HasOpenPosition(domain.StrategyTemporal, m.ID) {
			continue
		}

		opp, ok := d.check(m, available)
		if ok {
			opps = append(opps, opp)
		}
	}

	return prefilter(opps, available)
}

func (d *Temporal) check(m domain.MarketSnapshot, available float64) (domain.Opportunity, bool) {
	refMove, ok := d.history.RefMove(m.ReferenceAsset, d.cfg.Window)
	if !ok || math.Abs(refMove) < d.cfg.MinMovePct {
		return domain.Opportunity{}, false
	}

	// El mercado no debe haber seguido todavía: su propio movimiento en la
	// misma ventana queda bajo la mitad del umbral de referencia. Sin
	// historial cuenta como sin ajuste.
	if mktMove, ok := d.history.MarketMove(m.ID, d.cfg.Window); ok {
		if math.Abs(mktMove) >= d.cfg.MinMovePct/2 {
			return domain.Opportunity{}, false
		}
	}

	// Movimiento al alza → debería ganar YES; a la baja → NO.
	outcome := "YES"
	if refMove < 0 {
		outcome = "NO"
	}
	price := m.OutcomePrice(outcome)
	if price <= 0 || price >= d.cfg.MaxLaggingPrice {
		return domain.Opportunity{}, false
	}

	// Mispricing implícito contra dónde debería cotizar el lado ganador tan
	// cerca de la expiración.
	mispricing := (0.90 - price) / price
	if mispricing < d.cfg.MinMispricingPct {
		return domain.Opportunity{}, false
	}

	size := available * d.cfg.DefaultPositionPct
	if maxSize := available * d.cfg.MaxPositionPct; size > maxSize {
		size = maxSize
	}
	if size <= 0 {
		return domain.Opportunity{}, false
	}
	shares := size / price

	slog.Info("temporal: lag opportunity",
		"market", domain.TruncateQuestion(m.Question, m.ID, 40),
		"asset", m.ReferenceAsset, "ref_move", refMove,
		"outcome", outcome, "price", price, "mispricing", mispricing)

	return domain.Opportunity{
		Strategy: domain.StrategyTemporal,
		Legs: []domain.OpportunityLeg{{
			MarketID:    m.ID,
			MarketName:  m.Question,
			Outcome:     outcome,
			Price:       price,
			Shares:      shares,
			Crypto15Min: m.Crypto15Min,
		}},
		EstimatedCost: size,
		EstimatedEdge: shares * (0.90 - price),
		Confidence:    math.Min(1.0, math.Abs(refMove)/(2*d.cfg.MinMovePct)),
		DetectedAt:    d.now(),
	}, true
}
