package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/polysim/engine/config"
	"github.com/polysim/engine/internal/adapters/notify"
	"github.com/polysim/engine/internal/adapters/polymarket"
	"github.com/polysim/engine/internal/adapters/pricefeed"
	"github.com/polysim/engine/internal/adapters/storage"
	"github.com/polysim/engine/internal/detector"
	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ledger"
	"github.com/polysim/engine/internal/pnl"
	"github.com/polysim/engine/internal/resolution"
	"github.com/polysim/engine/internal/scheduler"
	"github.com/polysim/engine/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	initBalance := flag.Float64("init-balance", 0, "reset the fund to this balance and start fresh")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	noStream := flag.Bool("no-stream", false, "disable the websocket price stream")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *initBalance != 0 &&
		(*initBalance < cfg.Fund.MinBalance || *initBalance > cfg.Fund.MaxBalance) {
		slog.Error("init balance out of range",
			"balance", *initBalance, "min", cfg.Fund.MinBalance, "max", cfg.Fund.MaxBalance)
		os.Exit(1)
	}

	slog.Info("polysim starting",
		"config", *configPath,
		"negrisk_interval", cfg.NegRiskInterval(),
		"bond_interval", cfg.BondInterval(),
		"whale_interval", cfg.WhaleMonitorInterval(),
		"temporal_interval", cfg.TemporalInterval(),
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	venue := polymarket.NewClient(cfg.API.GammaBase, cfg.API.CLOBBase, cfg.API.DataBase)
	prices := pricefeed.New(cfg.API.BinanceBase, cfg.API.CoinbaseBase)
	cache := snapshot.NewCache()
	notifier := notify.NewConsole()

	book := ledger.New(ledger.Config{
		InitialBalance: cfg.Fund.InitialBalance,
		ArbBuffer:      cfg.NegRisk.Buffer,
		Fees:           ledger.FeeCalculator{Rate: cfg.Fees.Rate, Exponent: cfg.Fees.Exponent},
	}, cache, store)

	initialBalance, err := restoreOrInitFund(ctx, book, store, cfg, *initBalance)
	if err != nil {
		slog.Error("fund setup failed", "err", err)
		os.Exit(1)
	}

	registry := detector.NewRegistry(cfg.WhaleSignalWindow(), cfg.WhaleEvictAfter())
	if err := restoreWhales(ctx, registry, store); err != nil {
		slog.Warn("whale registry restore failed", "err", err)
	}

	fees := ledger.FeeCalculator{Rate: cfg.Fees.Rate, Exponent: cfg.Fees.Exponent}
	whaleCopy := detector.NewWhaleCopy(registry, venue, prices, cache, book, store, detector.WhaleCopyConfig{
		MinProfit7d:        cfg.Whales.MinProfit7d,
		MinTrades:          cfg.Whales.MinTrades,
		MinWinRate:         cfg.Whales.MinWinRate,
		SignalMinWhales:    cfg.Whales.SignalMinWhales,
		MaxSlippage:        cfg.Whales.MaxSlippage,
		MinPositionPct:     cfg.Whales.MinPositionPct,
		MaxPositionPct:     cfg.Whales.MaxPositionPct,
		MaxOpenPositions:   cfg.Whales.MaxOpenPositions,
		RSIOverbought:      cfg.Whales.RSIOverbought,
		RSIOversold:        cfg.Whales.RSIOversold,
		LowVolumeRatio:     cfg.Whales.LowVolumeRatio,
		HighVolatilityMult: cfg.Whales.HighVolatilityMult,
	})

	strategies := []scheduler.Strategy{
		{
			Detector: detector.NewNegRisk(cache, book, detector.NegRiskConfig{
				Buffer:         cfg.NegRisk.Buffer,
				MaxPositionPct: cfg.NegRisk.MaxPositionPct,
			}),
			Interval: cfg.NegRiskInterval(),
		},
		{
			Detector: detector.NewBond(cache, venue, book, fees, detector.BondConfig{
				MinPrice:           cfg.Bonds.MinPrice,
				DefaultPositionPct: cfg.Bonds.DefaultPositionPct,
				MaxPositionPct:     cfg.Bonds.MaxPositionPct,
				MinLiquidity:       cfg.Bonds.MinLiquidity,
			}),
			Interval: cfg.BondInterval(),
		},
		{
			Detector: whaleCopy,
			Interval: cfg.WhaleMonitorInterval(),
		},
		{
			Detector: detector.NewTemporal(cache, cache, book, detector.TemporalConfig{
				Window:             cfg.TemporalMoveWindow(),
				MinMovePct:         cfg.Temporal.MinMovePct,
				MinMispricingPct:   cfg.Temporal.MinMispricingPct,
				MaxTimeRemaining:   cfg.TemporalMaxRemaining(),
				MaxLaggingPrice:    cfg.Temporal.MaxLaggingPrice,
				DefaultPositionPct: cfg.Temporal.DefaultPositionPct,
				MaxPositionPct:     cfg.Temporal.MaxPositionPct,
			}),
			Interval: cfg.TemporalInterval(),
		},
	}

	engine := resolution.New(book, venue, cache, notifier, resolution.Config{
		Interval:   cfg.ResolutionInterval(),
		StaleAfter: cfg.StaleAfter(),
	})

	runners := []scheduler.Runner{engine}
	if !*noStream {
		runners = append(runners, polymarket.NewStream(cfg.API.StreamURL, cache, cache))
	}

	aggregator := pnl.New(book, initialBalance)
	status := func(ctx context.Context) {
		notifier.Status(ctx, book.State(), book.OpenTrades(), aggregator.Report())
	}

	sched := scheduler.New(book, notifier, venue, prices, cache, strategies, whaleCopy, runners, status,
		scheduler.Config{
			MarketRefresh:    cfg.BondInterval(),
			RefPriceInterval: cfg.TemporalInterval(),
			StatusInterval:   cfg.ResolutionInterval() * 12,
			WhaleDiscovery:   cfg.WhaleDiscoveryInterval(),
		})

	err = sched.Run(ctx)
	status(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulator exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("polysim stopped cleanly")
}

// restoreOrInitFund recupera el fondo persistido y sus trades abiertos, o
// inicializa uno fresco. Devuelve el balance contra el que se mide el P&L.
func restoreOrInitFund(ctx context.Context, book *ledger.Ledger, store *storage.SQLiteStore, cfg *config.Config, initBalance float64) (float64, error) {
	if initBalance != 0 {
		if err := store.InitFund(ctx, initBalance); err != nil {
			return 0, err
		}
		book.Restore(domain.LedgerState{TotalBalance: initBalance}, nil)
		slog.Info("fund initialized", "balance", initBalance)
		return initBalance, nil
	}

	state, ok, err := store.LoadFund(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := store.InitFund(ctx, cfg.Fund.InitialBalance); err != nil {
			return 0, err
		}
		slog.Info("fund initialized", "balance", cfg.Fund.InitialBalance)
		return cfg.Fund.InitialBalance, nil
	}

	open, err := store.OpenTrades(ctx)
	if err != nil {
		return 0, err
	}
	book.Restore(state, open)
	slog.Info("fund restored",
		"balance", state.TotalBalance, "reserved", state.ReservedCapital,
		"open_trades", len(open), "realized", state.RealizedPnL)
	return state.TotalBalance + state.ReservedCapital - state.RealizedPnL, nil
}

func restoreWhales(ctx context.Context, registry *detector.Registry, store *storage.SQLiteStore) error {
	whales, err := store.Whales(ctx)
	if err != nil {
		return err
	}
	for _, w := range whales {
		registry.Upsert(w)
	}
	if len(whales) > 0 {
		slog.Info("whale registry restored", "whales", len(whales))
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
