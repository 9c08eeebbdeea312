// Package resolution liquida los trades abiertos. El motor pollea el venue
// por los mercados donde el ledger todavía tiene dinero, paga los trades
// resueltos y falla los trades cuyos mercados llevan demasiado fuera del feed.
package resolution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
	"github.com/polysim/engine/internal/ports"
)

// Settler es la porción del ledger que el motor maneja.
type Settler interface {
	OpenTrades() []domain.Trade
	Settle(ctx context.Context, tradeID string, winners map[string]string) (ledger.SettlementResult, error)
	Fail(ctx context.Context, tradeID string) (ledger.SettlementResult, error)
}

// FeedClock reporta cuándo el feed de mercados incluyó un mercado por última
// vez, que es como el motor mide staleness.
type FeedClock interface {
	LastSeen(marketID string) (time.Time, bool)
}

// Config contiene la política de polling del motor.
type Config struct {
	Interval   time.Duration // cadencia de polling al venue
	StaleAfter time.Duration // falla trades sin ver en el feed por este tiempo
}

// Engine vigila los mercados detrás de los trades abiertos y los liquida.
type Engine struct {
	settler  Settler
	feed     ports.MarketFeed
	clock    FeedClock
	notifier ports.Notifier // optional
	cfg      Config
	now      func() time.Time
}

// New crea un motor de resolución. notifier puede ser nil.
func New(settler Settler, feed ports.MarketFeed, clock FeedClock, notifier ports.Notifier, cfg Config) *Engine {
	return &Engine{
		settler:  settler,
		feed:     feed,
		clock:    clock,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run pollea hasta que el contexto se cancela. El tick en vuelo termina antes
// de que Run retorne, así el shutdown no parte una liquidación por la mitad.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick corre una pasada de resolución: trae cada mercado con trade abierto y
// liquida o falla lo que se pueda decidir.
func (e *Engine) Tick(ctx context.Context) {
	open := e.settler.OpenTrades()
	if len(open) == 0 {
		return
	}

	winners, stale := e.pollMarkets(ctx, open)

	for _, t := range open {
		switch {
		case e.allResolved(t, winners):
			e.settle(ctx, t, winners)
		case e.anyStale(t, stale):
			e.fail(ctx, t)
		}
	}
}

// pollMarkets trae una sola vez cada mercado distinto detrás de los trades
// abiertos. Devuelve el outcome ganador por mercado resuelto y el set de
// mercados pasados del horizonte de staleness.
func (e *Engine) pollMarkets(ctx context.Context, open []domain.Trade) (winners map[string]string, stale map[string]bool) {
	winners = make(map[string]string)
	stale = make(map[string]bool)

	seen := make(map[string]bool)
	for _, t := range open {
		for _, id := range t.MarketIDs() {
			if seen[id] {
				continue
			}
			seen[id] = true

			m, err := e.feed.FetchMarket(ctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return winners, stale
				}
				slog.Warn("resolution: market fetch failed", "market", id, "err", err)
				if e.isStale(id) {
					stale[id] = true
				}
				continue
			}
			if m.Status == domain.MarketResolved {
				if m.WinningOutcome != "" {
					winners[id] = m.WinningOutcome
				} else if e.isStale(id) {
					// Cerrado en el venue pero sin outcome fijado, y el
					// feed dejó de llevarlo; el trade nunca va a poder
					// liquidarse normalmente.
					stale[id] = true
				}
			}
		}
	}
	return winners, stale
}

func (e *Engine) isStale(marketID string) bool {
	last, ok := e.clock.LastSeen(marketID)
	if !ok {
		// Nunca visto en el feed; solo trades restaurados llegan acá.
		return true
	}
	return e.now().Sub(last) > e.cfg.StaleAfter
}

func (e *Engine) allResolved(t domain.Trade, winners map[string]string) bool {
	for _, id := range t.MarketIDs() {
		if _, ok := winners[id]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) anyStale(t domain.Trade, stale map[string]bool) bool {
	for _, id := range t.MarketIDs() {
		if stale[id] {
			return true
		}
	}
	return false
}

func (e *Engine) settle(ctx context.Context, t domain.Trade, winners map[string]string) {
	res, err := e.settler.Settle(ctx, t.ID, winners)
	if err != nil {
		if !errors.Is(err, ledger.ErrAlreadySettled) {
			slog.Error("resolution: settle failed", "trade_id", t.ID, "err", err)
		}
		return
	}
	slog.Info("resolution: trade settled",
		"trade_id", t.ID, "strategy", t.Strategy,
		"payout", res.Payout, "pnl", res.RealizedPnL)
	if e.notifier != nil {
		e.notifier.TradeSettled(ctx, res.Trade)
	}
}

func (e *Engine) fail(ctx context.Context, t domain.Trade) {
	res, err := e.settler.Fail(ctx, t.ID)
	if err != nil {
		if !errors.Is(err, ledger.ErrAlreadySettled) {
			slog.Error("resolution: fail failed", "trade_id", t.ID, "err", err)
		}
		return
	}
	slog.Warn("resolution: trade failed as stale",
		"trade_id", t.ID, "strategy", t.Strategy, "loss", res.RealizedPnL)
	if e.notifier != nil {
		e.notifier.TradeSettled(ctx, res.Trade)
	}
}
