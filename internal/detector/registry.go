package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/polysim/engine/internal/domain"
)

// Registry es el estado auxiliar del detector whale-copy: el set de ballenas
// seguidas y una ventana móvil de sus compras observadas por mercado y lado.
// Lo manejan los loops de whale-copy; seguro de compartir entre los tickers
// de descubrimiento y monitoreo.
type Registry struct {
	mu     sync.Mutex
	whales map[string]domain.Whale
	trades []domain.WhaleTrade
	seenTx map[string]time.Time

	window     time.Duration // ventana de convergencia de señal
	evictAfter time.Duration // horizonte de inactividad de ballenas
	now        func() time.Time
}

// NewRegistry crea un registro de ballenas vacío.
func NewRegistry(window, evictAfter time.Duration) *Registry {
	return &Registry{
		whales:     make(map[string]domain.Whale),
		seenTx:     make(map[string]time.Time),
		window:     window,
		evictAfter: evictAfter,
		now:        time.Now,
	}
}

// Upsert agrega o refresca una ballena seguida, preservando su hora de
// descubrimiento y su último trade observado.
func (r *Registry) Upsert(w domain.Whale) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.whales[w.Address]; ok {
		if w.DiscoveredAt.IsZero() {
			w.DiscoveredAt = prev.DiscoveredAt
		}
		if w.LastSeenAt.Before(prev.LastSeenAt) {
			w.LastSeenAt = prev.LastSeenAt
		}
	} else if w.DiscoveredAt.IsZero() {
		w.DiscoveredAt = r.now()
	}
	r.whales[w.Address] = w
}

// Tracked indica si la dirección ya está en el registro.
func (r *Registry) Tracked(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.whales[address]
	return ok
}

// Whales devuelve cada ballena seguida, en orden estable por dirección.
func (r *Registry) Whales() []domain.Whale {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Whale, 0, len(r.whales))
	for _, w := range r.whales {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Observe registra un trade de ballena. Devuelve false cuando el trade ya se
// vio (el feed repite historia reciente en cada poll).
func (r *Registry) Observe(t domain.WhaleTrade) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.TxHash != "" {
		if _, dup := r.seenTx[t.TxHash]; dup {
			return false
		}
		r.seenTx[t.TxHash] = t.ObservedAt
	}

	r.trades = append(r.trades, t)
	if w, ok := r.whales[t.Address]; ok && t.ObservedAt.After(w.LastSeenAt) {
		w.LastSeenAt = t.ObservedAt
		r.whales[t.Address] = w
	}

	r.pruneLocked()
	return true
}

// Signals devuelve cada mercado/lado donde al menos minWhales ballenas
// distintas compraron dentro de la ventana, con el primer precio confirmante.
func (r *Registry) Signals(minWhales int) []domain.WhaleSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()

	type key struct{ market, outcome string }
	byKey := make(map[key]map[string]domain.WhaleTrade) // key → dirección → primer trade
	for _, t := range r.trades {
		k := key{t.MarketID, t.Outcome}
		if byKey[k] == nil {
			byKey[k] = make(map[string]domain.WhaleTrade)
		}
		if prev, ok := byKey[k][t.Address]; !ok || t.ObservedAt.Before(prev.ObservedAt) {
			byKey[k][t.Address] = t
		}
	}

	var signals []domain.WhaleSignal
	for k, whales := range byKey {
		if len(whales) < minWhales {
			continue
		}
		var first domain.WhaleTrade
		for _, t := range whales {
			if first.ObservedAt.IsZero() || t.ObservedAt.Before(first.ObservedAt) {
				first = t
			}
		}
		signals = append(signals, domain.WhaleSignal{
			MarketID:   k.market,
			Outcome:    k.outcome,
			WhaleCount: len(whales),
			FirstPrice: first.Price,
			DetectedAt: r.now(),
		})
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].MarketID < signals[j].MarketID })
	return signals
}

// Evict saca las ballenas sin trades observados pasado el horizonte de
// inactividad y devuelve sus direcciones.
func (r *Registry) Evict() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.evictAfter)
	var evicted []string
	for addr, w := range r.whales {
		last := w.LastSeenAt
		if last.IsZero() {
			last = w.DiscoveredAt
		}
		if last.Before(cutoff) {
			delete(r.whales, addr)
			evicted = append(evicted, addr)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// pruneLocked descarta trades y tx hashes más viejos que la ventana de señal.
func (r *Registry) pruneLocked() {
	cutoff := r.now().Add(-r.window)
	i := 0
	for i < len(r.trades) && r.trades[i].ObservedAt.Before(cutoff) {
		i++
	}
	r.trades = r.trades[i:]

	txCutoff := r.now().Add(-2 * r.window)
	for tx, at := range r.seenTx {
		if at.Before(txCutoff) {
			delete(r.seenTx, tx)
		}
	}
}
