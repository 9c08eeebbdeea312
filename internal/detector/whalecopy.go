package detector

import (
	"context"
	"log/slog"
	"math"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/indicators"
	"github.com/polysim/engine/internal/ports"
)

// Periodos de indicadores para el filtro de ballenas.
const (
	rsiPeriod      = 14
	emaShortSpan   = 9
	emaLongSpan    = 21
	atrPeriod      = 14
	volumePeriod   = 20
	candleInterval = "1h"
	candleLimit    = 40
)

// WhaleCopyConfig contiene umbrales de vetting, señal y tamaño.
type WhaleCopyConfig struct {
	MinProfit7d      float64
	MinTrades        int
	MinWinRate       float64
	SignalMinWhales  int
	MaxSlippage      float64
	MinPositionPct   float64
	MaxPositionPct   float64
	MaxOpenPositions int

	RSIOverbought      float64
	RSIOversold        float64
	LowVolumeRatio     float64
	HighVolatilityMult float64
}

// WhaleCopy sigue a traders de alto rendimiento. Un loop de descubrimiento
// aparte vetea entradas del leaderboard hacia el registro; el tick de
// monitoreo trae los trades recientes de cada ballena, espera una
// convergencia multi-ballena en un lado de un mercado y pasa la copia por
// los indicadores técnicos.
type WhaleCopy struct {
	registry       *Registry
	feed           ports.WhaleFeed
	prices         ports.PriceFeed
	cache          Snapshots
	bankroll       Bankroll
	store          ports.Store // opcional, persiste el registro entre reinicios
	cfg            WhaleCopyConfig
	defaultWinRate float64
}

// NewWhaleCopy crea el detector de whale-copy. store puede ser nil.
func NewWhaleCopy(
	registry *Registry,
	feed ports.WhaleFeed,
	prices ports.PriceFeed,
	cache Snapshots,
	bankroll Bankroll,
	store ports.Store,
	cfg WhaleCopyConfig,
) *WhaleCopy {
	return &WhaleCopy{
		registry:       registry,
		feed:           feed,
		prices:         prices,
		cache:          cache,
		bankroll:       bankroll,
		store:          store,
		cfg:            cfg,
		defaultWinRate: 0.60, // el leaderboard no trae win rate; se asume el de una ballena veteada
	}
}

// Strategy implementa Detector.
func (d *WhaleCopy) Strategy() domain.StrategyID { return domain.StrategyWhale }

// Discover refresca el registro desde el leaderboard y expulsa ballenas
// inactivas. Corre en su propio ticker lento, independiente de Detect.
func (d *WhaleCopy) Discover(ctx context.Context) {
	entries, err := d.feed.TopTraders(ctx)
	if err != nil {
		slog.Warn("whale: leaderboard fetch failed", "err", err)
		return
	}

	added := 0
	for _, e := range entries {
		if e.Address == "" || d.registry.Tracked(e.Address) {
			continue
		}
		// El leaderboard reporta volumen, no conteo de trades; se estima
		// un trade por cada $100 operados.
		estTrades := int(e.Volume / 100)
		if estTrades < 1 {
			estTrades = 1
		}
		w := domain.Whale{
			Address:     e.Address,
			Profit7d:    e.PnL,
			TotalTrades: estTrades,
			WinRate:     d.defaultWinRate,
		}
		if !d.vet(w) {
			continue
		}
		d.registry.Upsert(w)
		d.persistWhale(ctx, w)
		added++
		slog.Info("whale: tracking new whale", "address", shortAddr(w.Address), "profit_7d", w.Profit7d)
	}

	for _, addr := range d.registry.Evict() {
		slog.Info("whale: evicted inactive whale", "address", shortAddr(addr))
		if d.store != nil {
			if err := d.store.DeleteWhale(ctx, addr); err != nil {
				slog.Warn("whale: delete persisted whale failed", "address", shortAddr(addr), "err", err)
			}
		}
	}

	if added > 0 {
		slog.Info("whale: discovery cycle done", "new", added, "tracked", len(d.registry.Whales()))
	}
}

// Detect implementa Detector: pollea las ballenas seguidas, busca
// convergencia, filtra con indicadores y dimensiona por confianza.
func (d *WhaleCopy) Detect(ctx context.Context) []domain.Opportunity {
	d.observeWhaleTrades(ctx)

	available := d.bankroll.AvailableCapital()
	var opps []domain.Opportunity

	for _, sig := range d.registry.Signals(d.cfg.SignalMinWhales) {
		opp, ok := d.evaluate(ctx, sig, available)
		if ok {
			opps = append(opps, opp)
		}
	}

	return prefilter(opps, available)
}

func (d *WhaleCopy) observeWhaleTrades(ctx context.Context) {
	for _, w := range d.registry.Whales() {
		trades, err := d.feed.RecentTrades(ctx, w.Address)
		if err != nil {
			slog.Warn("whale: trade fetch failed", "address", shortAddr(w.Address), "err", err)
			continue
		}
		for _, t := range trades {
			if d.registry.Observe(t) {
				slog.Debug("whale: observed trade",
					"address", shortAddr(t.Address), "market", t.MarketID,
					"outcome", t.Outcome, "price", t.Price)
			}
		}
	}
}

func (d *WhaleCopy) evaluate(ctx context.Context, sig domain.WhaleSignal, available float64) (domain.Opportunity, bool) {
	if d.bankroll.OpenPositionsFor(domain.StrategyWhale) >= d.cfg.MaxOpenPositions {
		return domain.Opportunity{}, false
	}
	if d.bankroll.HasOpenPosition(domain.StrategyWhale, sig.MarketID) {
		return domain.Opportunity{}, false
	}

	m, ok := d.cache.Snapshot(sig.MarketID)
	if !ok || m.Status != domain.MarketOpen {
		return domain.Opportunity{}, false
	}
	price := m.OutcomePrice(sig.Outcome)
	if price <= 0 || price >= 1 {
		return domain.Opportunity{}, false
	}

	// Guarda de slippage: descarta la señal si el precio se escapó desde
	// la primera ballena confirmante.
	if sig.FirstPrice > 0 {
		drift := math.Abs(price-sig.FirstPrice) / sig.FirstPrice
		if drift > d.cfg.MaxSlippage {
			slog.Debug("whale: price drifted past slippage cap",
				"market", sig.MarketID, "drift", drift)
			return domain.Opportunity{}, false
		}
	}

	multiplier, warnings := d.indicatorMultiplier(ctx, m, sig.Outcome)
	if multiplier == 0 {
		slog.Debug("whale: skipped on indicator warnings",
			"market", sig.MarketID, "warnings", warnings)
		return domain.Opportunity{}, false
	}

	confidence := d.confidence(sig.WhaleCount)
	pct := d.cfg.MinPositionPct + (d.cfg.MaxPositionPct-d.cfg.MinPositionPct)*confidence
	size := available * pct * multiplier
	if size <= 0 {
		return domain.Opportunity{}, false
	}
	shares := size / price

	slog.Info("whale: copy signal",
		"market", domain.TruncateQuestion(m.Question, m.ID, 40),
		"outcome", sig.Outcome, "whales", sig.WhaleCount,
		"warnings", warnings, "size", size)

	return domain.Opportunity{
		Strategy: domain.StrategyWhale,
		Legs: []domain.OpportunityLeg{{
			MarketID:    m.ID,
			MarketName:  m.Question,
			Outcome:     sig.Outcome,
			Price:       price,
			Shares:      shares,
			Crypto15Min: m.Crypto15Min,
		}},
		EstimatedCost: size,
		EstimatedEdge: shares*(1.0-price)*confidence - size*(1-confidence),
		Confidence:    confidence,
		DetectedAt:    sig.DetectedAt,
	}, true
}

// indicatorMultiplier puntúa los técnicos del activo de referencia contra la
// dirección de las ballenas. Cada desacuerdo es un warning; los warnings
// reducen la posición y tres o más la saltan. Sin velas no se bloquea nada;
// la convergencia de las ballenas se sostiene sola.
func (d *WhaleCopy) indicatorMultiplier(ctx context.Context, m domain.MarketSnapshot, outcome string) (float64, int) {
	if m.ReferenceAsset == "" {
		return 1.0, 0
	}
	candles, err := d.prices.Candles(ctx, m.ReferenceAsset, candleInterval, candleLimit)
	if err != nil || len(candles) == 0 {
		slog.Debug("whale: candles unavailable, indicators skipped",
			"asset", m.ReferenceAsset, "err", err)
		return 1.0, 0
	}

	warnings := 0

	rsi := indicators.RSI(candles, rsiPeriod)
	if !math.IsNaN(rsi) {
		if outcome == "YES" && rsi > d.cfg.RSIOverbought {
			warnings++
		}
		if outcome == "NO" && rsi < d.cfg.RSIOversold {
			warnings++
		}
	}

	emaShort := indicators.EMA(candles, emaShortSpan)
	emaLong := indicators.EMA(candles, emaLongSpan)
	if !math.IsNaN(emaShort) && !math.IsNaN(emaLong) {
		trendUp := emaShort > emaLong
		if outcome == "YES" && !trendUp {
			warnings++
		}
		if outcome == "NO" && trendUp {
			warnings++
		}
	}

	if vd := indicators.VolumeDelta(candles, volumePeriod); !math.IsNaN(vd) && vd < d.cfg.LowVolumeRatio {
		warnings++
	}

	if ar := indicators.ATRRatio(candles, atrPeriod); !math.IsNaN(ar) && ar > d.cfg.HighVolatilityMult {
		warnings++
	}

	switch warnings {
	case 0:
		return 1.0, warnings
	case 1:
		return 0.5, warnings
	case 2:
		return 0.25, warnings
	default:
		return 0, warnings
	}
}

// confidence mapea el conteo de ballenas confirmantes a [0,1]: dos ballenas
// es sólido, tres o más es lo más fuerte que llega la señal.
func (d *WhaleCopy) confidence(whaleCount int) float64 {
	switch {
	case whaleCount >= 3:
		return 1.0
	case whaleCount == 2:
		return 0.6
	default:
		return 0.3
	}
}

func (d *WhaleCopy) vet(w domain.Whale) bool {
	return w.Profit7d >= d.cfg.MinProfit7d &&
		w.TotalTrades >= d.cfg.MinTrades &&
		w.WinRate >= d.cfg.MinWinRate
}

func (d *WhaleCopy) persistWhale(ctx context.Context, w domain.Whale) {
	if d.store == nil {
		return
	}
	if err := d.store.UpsertWhale(ctx, w); err != nil {
		slog.Warn("whale: persist failed", "address", shortAddr(w.Address), "err", err)
	}
}

func shortAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10] + "..."
	}
	return addr
}
