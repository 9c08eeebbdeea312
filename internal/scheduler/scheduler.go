// Package scheduler corre los loops concurrentes del simulador: el refresh
// del feed de mercados, el muestreo de precios de referencia, un loop de
// detección por estrategia, el descubrimiento de ballenas y el motor de
// resolución. Todos comparten un errgroup, así un error fatal en cualquiera
// tumba la ejecución completa de forma limpia.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polysim/engine/internal/detector"
	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
	"github.com/polysim/engine/internal/ports"
	"github.com/polysim/engine/internal/snapshot"
)

// Reserver es la superficie de aceptación del ledger.
type Reserver interface {
	Reserve(ctx context.Context, opp domain.Opportunity) (domain.Trade, error)
}

// Runner es un loop de larga vida que maneja el scheduler (motor de
// resolución, stream websocket).
type Runner interface {
	Run(ctx context.Context) error
}

// Strategy empareja un detector con su intervalo de tick.
type Strategy struct {
	Detector detector.Detector
	Interval time.Duration
}

// Config contiene las cadencias propias del scheduler.
type Config struct {
	MarketRefresh    time.Duration // refresh completo del feed hacia la cache
	RefPriceInterval time.Duration // muestreo spot de los activos de referencia
	StatusInterval   time.Duration // reporte de estado al operador, 0 desactiva
	WhaleDiscovery   time.Duration // refresh del leaderboard, 0 desactiva
}

// Scheduler es el dueño de cada goroutine de una ejecución.
type Scheduler struct {
	reserver   Reserver
	notifier   ports.Notifier // opcional
	feed       ports.MarketFeed
	prices     ports.PriceFeed
	cache      *snapshot.Cache
	strategies []Strategy
	whale      *detector.WhaleCopy // opcional, maneja el loop de descubrimiento
	runners    []Runner
	status     func(ctx context.Context) // reporte periódico opcional
	cfg        Config
}

// New arma un scheduler. notifier, whale y status pueden ser nil.
func New(
	reserver Reserver,
	notifier ports.Notifier,
	feed ports.MarketFeed,
	prices ports.PriceFeed,
	cache *snapshot.Cache,
	strategies []Strategy,
	whale *detector.WhaleCopy,
	runners []Runner,
	status func(ctx context.Context),
	cfg Config,
) *Scheduler {
	return &Scheduler{
		reserver:   reserver,
		notifier:   notifier,
		feed:       feed,
		prices:     prices,
		cache:      cache,
		strategies: strategies,
		whale:      whale,
		runners:    runners,
		status:     status,
		cfg:        cfg,
	}
}

// Run bloquea hasta que el contexto se cancela o un loop falla. Los ticks en
// vuelo terminan antes de que Run retorne; el ledger nunca queda a medio
// mutar.
func (s *Scheduler) Run(ctx context.Context) error {
	// Ceba la cache antes de que dispare cualquier detector.
	s.refreshMarkets(ctx)
	if s.whale != nil {
		s.whale.Discover(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.tickLoop(ctx, s.cfg.MarketRefresh, s.refreshMarkets) })
	g.Go(func() error { return s.tickLoop(ctx, s.cfg.RefPriceInterval, s.sampleRefPrices) })

	for _, st := range s.strategies {
		st := st
		g.Go(func() error {
			return s.tickLoop(ctx, st.Interval, func(ctx context.Context) {
				s.runDetector(ctx, st.Detector)
			})
		})
	}

	if s.whale != nil && s.cfg.WhaleDiscovery > 0 {
		g.Go(func() error { return s.tickLoop(ctx, s.cfg.WhaleDiscovery, s.whale.Discover) })
	}
	if s.status != nil && s.cfg.StatusInterval > 0 {
		g.Go(func() error { return s.tickLoop(ctx, s.cfg.StatusInterval, s.status) })
	}

	for _, r := range s.runners {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}

	return g.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runDetector ejecuta un tick de detección y entrega cada propuesta al
// ledger. Los rechazos se loguean y descartan; el detector vuelve a proponer
// en un tick posterior si la oportunidad sobrevive.
func (s *Scheduler) runDetector(ctx context.Context, d detector.Detector) {
	for _, opp := range d.Detect(ctx) {
		trade, err := s.reserver.Reserve(ctx, opp)
		switch {
		case err == nil:
			slog.Info("trade opened",
				"strategy", trade.Strategy, "trade_id", trade.ID,
				"legs", len(trade.Legs), "cost", trade.TotalCost)
			if s.notifier != nil {
				s.notifier.TradeOpened(ctx, trade)
			}
		case errors.Is(err, ledger.ErrInsufficientFunds),
			errors.Is(err, ledger.ErrStaleArbitrage):
			slog.Debug("reserve rejected", "strategy", opp.Strategy, "err", err)
		case errors.Is(err, ledger.ErrHalted):
			slog.Error("ledger halted, dropping proposal", "strategy", opp.Strategy)
		default:
			slog.Warn("reserve failed", "strategy", opp.Strategy, "err", err)
		}
	}
}

func (s *Scheduler) refreshMarkets(ctx context.Context) {
	markets, err := s.feed.ListMarkets(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("market refresh failed", "err", err)
		}
		return
	}
	s.cache.Publish(markets)
	slog.Debug("market cache refreshed", "markets", len(markets))
}

// sampleRefPrices pollea el precio spot de cada activo de referencia que
// mencione algún mercado cacheado.
func (s *Scheduler) sampleRefPrices(ctx context.Context) {
	assets := make(map[string]bool)
	for _, m := range s.cache.All() {
		if m.ReferenceAsset != "" {
			assets[m.ReferenceAsset] = true
		}
	}

	for asset := range assets {
		price, err := s.prices.CurrentPrice(ctx, asset)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("ref price fetch failed", "asset", asset, "err", err)
			}
			continue
		}
		if price > 0 {
			s.cache.RecordRefPrice(asset, price)
		}
	}
}
