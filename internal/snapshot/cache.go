// Package snapshot cachea la vista normalizada de los mercados del venue más
// los historiales cortos de precio que necesitan los detectores. Los snapshots
// publicados son valores inmutables: un refresh intercambia el mapa completo,
// así los lectores ven el ciclo viejo o el nuevo, nunca una escritura parcial.
package snapshot

import (
	"sync"
	"time"

	"github.com/polysim/engine/internal/domain"
)

const defaultHistoryAge = 15 * time.Minute

type pricePoint struct {
	at    time.Time
	price float64
}

// Cache es la vista compartida de mercados, mayormente de lectura. Un escritor
// (el loop de refresh del feed, más el stream websocket para ticks sueltos),
// muchos lectores.
type Cache struct {
	mu       sync.RWMutex
	markets  map[string]domain.MarketSnapshot
	lastSeen map[string]time.Time // marketID → última vez que el feed lo incluyó

	histMu     sync.Mutex
	marketHist map[string][]pricePoint // marketID → precios recientes del lado YES
	refHist    map[string][]pricePoint // asset → precios de referencia recientes
	maxAge     time.Duration

	now func() time.Time
}

// NewCache crea una cache vacía.
func NewCache() *Cache {
	return &Cache{
		markets:    make(map[string]domain.MarketSnapshot),
		lastSeen:   make(map[string]time.Time),
		marketHist: make(map[string][]pricePoint),
		refHist:    make(map[string][]pricePoint),
		maxAge:     defaultHistoryAge,
		now:        time.Now,
	}
}

// Publish reemplaza el set de mercados cacheado con un ciclo fresco del feed.
// Los mercados ausentes del slice conservan su último snapshot pero dejan de
// refrescar su lastSeen, que es lo que mide el horizonte de staleness.
func (c *Cache) Publish(markets []domain.MarketSnapshot) {
	now := c.now()
	next := make(map[string]domain.MarketSnapshot, len(markets))
	for _, m := range markets {
		next[m.ID] = m
	}

	c.mu.Lock()
	// Arrastra los mercados que desaparecieron del feed para que el motor
	// de resolución pueda consultarlos mientras decide staleness.
	for id, old := range c.markets {
		if _, ok := next[id]; !ok {
			next[id] = old
		}
	}
	c.markets = next
	for _, m := range markets {
		c.lastSeen[m.ID] = now
	}
	c.mu.Unlock()

	c.histMu.Lock()
	for _, m := range markets {
		if p := m.OutcomePrice("YES"); p > 0 {
			c.marketHist[m.ID] = appendPruned(c.marketHist[m.ID], pricePoint{now, p}, now, c.maxAge)
		}
	}
	c.histMu.Unlock()
}

// UpdatePrice aplica un tick de precio de un outcome desde el stream sin
// esperar al próximo refresh completo.
func (c *Cache) UpdatePrice(marketID, outcome string, price float64) {
	now := c.now()

	c.mu.Lock()
	m, ok := c.markets[marketID]
	if ok {
		outcomes := make(map[string]domain.OutcomeQuote, len(m.Outcomes))
		for k, v := range m.Outcomes {
			outcomes[k] = v
		}
		q := outcomes[outcome]
		q.Price = price
		outcomes[outcome] = q
		m.Outcomes = outcomes
		m.FetchedAt = now
		c.markets[marketID] = m
	}
	c.mu.Unlock()

	if ok && outcome == "YES" {
		c.histMu.Lock()
		c.marketHist[marketID] = appendPruned(c.marketHist[marketID], pricePoint{now, price}, now, c.maxAge)
		c.histMu.Unlock()
	}
}

// Snapshot devuelve la vista cacheada de un mercado.
func (c *Cache) Snapshot(marketID string) (domain.MarketSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[marketID]
	return m, ok
}

// All devuelve todos los snapshots de mercado cacheados.
func (c *Cache) All() []domain.MarketSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.MarketSnapshot, 0, len(c.markets))
	for _, m := range c.markets {
		out = append(out, m)
	}
	return out
}

// LastSeen devuelve cuándo el feed incluyó el mercado por última vez.
func (c *Cache) LastSeen(marketID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastSeen[marketID]
	return t, ok
}

// RecordRefPrice agrega una muestra de precio del activo de referencia.
func (c *Cache) RecordRefPrice(asset string, price float64) {
	now := c.now()
	c.histMu.Lock()
	c.refHist[asset] = appendPruned(c.refHist[asset], pricePoint{now, price}, now, c.maxAge)
	c.histMu.Unlock()
}

// RefMove devuelve el movimiento fraccional del activo de referencia en la
// ventana. ok es false cuando el historial no cubre la ventana.
func (c *Cache) RefMove(asset string, window time.Duration) (float64, bool) {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	return move(c.refHist[asset], c.now(), window)
}

// MarketMove devuelve el movimiento fraccional del precio YES en la ventana.
func (c *Cache) MarketMove(marketID string, window time.Duration) (float64, bool) {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	return move(c.marketHist[marketID], c.now(), window)
}

func move(points []pricePoint, now time.Time, window time.Duration) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	cutoff := now.Add(-window)

	// Muestra más vieja dentro de la ventana; se exige que el historial
	// cubra al menos media ventana para que una sola muestra fresca no
	// pueda fingir un movimiento.
	start := -1
	for i, p := range points {
		if !p.at.Before(cutoff) {
			start = i
			break
		}
	}
	if start < 0 || start == len(points)-1 {
		return 0, false
	}
	first, last := points[start], points[len(points)-1]
	if last.at.Sub(first.at) < window/2 || first.price == 0 {
		return 0, false
	}
	return (last.price - first.price) / first.price, true
}

func appendPruned(points []pricePoint, p pricePoint, now time.Time, maxAge time.Duration) []pricePoint {
	points = append(points, p)
	cutoff := now.Add(-maxAge)
	i := 0
	for i < len(points) && points[i].at.Before(cutoff) {
		i++
	}
	return points[i:]
}
