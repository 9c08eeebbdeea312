package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
)

// BookSource consulta el orderbook real del venue. El detector de bonds lo usa
// para confirmar la profundidad exacta antes de proponer capital; la cache
// solo lleva la estimación de liquidez de Gamma.
type BookSource interface {
	Orderbook(ctx context.Context, marketID string) (map[string]domain.OutcomeQuote, error)
}

// BondConfig contiene los umbrales del detector de bonds.
type BondConfig struct {
	MinPrice           float64 // 0.95 en adelante es territorio "bond"
	DefaultPositionPct float64
	MaxPositionPct     float64
	MinLiquidity       float64
}

// Bond compra outcomes que ya cotizan a precios casi seguros, por ganancias
// pequeñas y frecuentes. El edge viene del venue infravalorando los últimos
// céntimos; el detector solo dispara cuando el profit esperado sobrevive a los
// taker fees y el libro real absorbe la posición.
type Bond struct {
	cache    Snapshots
	books    BookSource // nil = confiar en la profundidad cacheada
	bankroll Bankroll
	fees     ledger.FeeCalculator
	cfg      BondConfig
}

// NewBond crea el detector de bonds. books puede ser nil.
func NewBond(cache Snapshots, books BookSource, bankroll Bankroll, fees ledger.FeeCalculator, cfg BondConfig) *Bond {
	return &Bond{cache: cache, books: books, bankroll: bankroll, fees: fees, cfg: cfg}
}

// Strategy implementa Detector.
func (d *Bond) Strategy() domain.StrategyID { return domain.StrategyBond }

// Detect implementa Detector.
func (d *Bond) Detect(ctx context.Context) []domain.Opportunity {
	available := d.bankroll.AvailableCapital()
	var opps []domain.Opportunity

	for _, m := range d.cache.All() {
		if m.Status != domain.MarketOpen || m.NegRisk {
			continue
		}
		if d.bankroll.HasOpenPosition(domain.StrategyBond, m.ID) {
			continue
		}

		for outcome, q := range m.Outcomes {
			opp, ok := d.check(ctx, m, outcome, q, available)
			if ok {
				opps = append(opps, opp)
				break // como mucho un lado por mercado
			}
		}
	}

	return prefilter(opps, available)
}

func (d *Bond) check(ctx context.Context, m domain.MarketSnapshot, outcome string, q domain.OutcomeQuote, available float64) (domain.Opportunity, bool) {
	if q.Price < d.cfg.MinPrice || q.Price >= 1.0 {
		return domain.Opportunity{}, false
	}

	size := available * d.cfg.DefaultPositionPct
	if maxSize := available * d.cfg.MaxPositionPct; size > maxSize {
		size = maxSize
	}
	if size <= 0 {
		return domain.Opportunity{}, false
	}

	// Prefiltro barato contra la estimación cacheada antes de tocar el CLOB.
	if q.Depth < d.cfg.MinLiquidity || q.Depth < size {
		return domain.Opportunity{}, false
	}

	// Confirmación contra el libro real: ask notional y mejor ask exactos.
	if d.books != nil {
		confirmed, ok := d.confirmDepth(ctx, m, outcome, size)
		if !ok {
			return domain.Opportunity{}, false
		}
		q = confirmed
		if q.Price < d.cfg.MinPrice || q.Price >= 1.0 {
			return domain.Opportunity{}, false
		}
	}

	shares := size / q.Price
	fee := d.fees.Fee(shares, q.Price, m.Crypto15Min)
	profit := shares*(1.0-q.Price) - fee
	if profit <= 0 {
		return domain.Opportunity{}, false
	}

	slog.Debug("bond: candidate",
		"market", domain.TruncateQuestion(m.Question, m.ID, 40),
		"outcome", outcome, "price", q.Price, "profit_after_fee", profit)

	return domain.Opportunity{
		Strategy: domain.StrategyBond,
		Legs: []domain.OpportunityLeg{{
			MarketID:    m.ID,
			MarketName:  m.Question,
			Outcome:     outcome,
			Price:       q.Price,
			Shares:      shares,
			Crypto15Min: m.Crypto15Min,
		}},
		EstimatedCost: size + fee,
		EstimatedEdge: profit,
		Confidence:    q.Price, // la probabilidad estimada por el propio mercado
		DetectedAt:    time.Now(),
	}, true
}

// confirmDepth pide el orderbook y valida que el ask notional del lado elegido
// cubre la posición. Un libro inaccesible descarta el candidato en este tick;
// volverá a evaluarse en el siguiente.
func (d *Bond) confirmDepth(ctx context.Context, m domain.MarketSnapshot, outcome string, size float64) (domain.OutcomeQuote, bool) {
	book, err := d.books.Orderbook(ctx, m.ID)
	if err != nil {
		slog.Debug("bond: orderbook unavailable, candidate dropped",
			"market", m.ID, "err", err)
		return domain.OutcomeQuote{}, false
	}
	q, ok := book[outcome]
	if !ok {
		return domain.OutcomeQuote{}, false
	}
	if q.Depth < d.cfg.MinLiquidity || q.Depth < size {
		slog.Debug("bond: book too thin",
			"market", m.ID, "outcome", outcome, "depth", q.Depth, "size", size)
		return domain.OutcomeQuote{}, false
	}
	return q, true
}
