// Package pnl arma el reporte de ganancias y pérdidas por estrategia. El
// reporte es una proyección pura sobre los trades del ledger; no tiene estado
// propio y puede recomputarse en cualquier momento.
package pnl

import (
	"time"

	"github.com/polysim/engine/internal/domain"
)

// TradeSource es la porción del ledger que lee el agregador.
type TradeSource interface {
	Trades() []domain.Trade
	State() domain.LedgerState
}

// Aggregator recomputa el reporte de P&L bajo demanda.
type Aggregator struct {
	source         TradeSource
	initialBalance float64
	now            func() time.Time
}

// New crea un agregador sobre el ledger dado.
func New(source TradeSource, initialBalance float64) *Aggregator {
	return &Aggregator{source: source, initialBalance: initialBalance, now: time.Now}
}

// Report recorre cada trade que vio el ledger y lo pliega en filas por
// estrategia. Cada estrategia tiene fila incluso antes de su primera
// liquidación, así la tabla de estado siempre tiene la misma forma.
func (a *Aggregator) Report() domain.PnLReport {
	byStrategy := make(map[domain.StrategyID]*domain.StrategyPnL)
	for _, s := range domain.AllStrategies() {
		byStrategy[s] = &domain.StrategyPnL{Strategy: s}
	}

	report := domain.PnLReport{
		GeneratedAt:    a.now(),
		InitialBalance: a.initialBalance,
	}

	for _, t := range a.source.Trades() {
		row, ok := byStrategy[t.Strategy]
		if !ok {
			row = &domain.StrategyPnL{Strategy: t.Strategy}
			byStrategy[t.Strategy] = row
		}

		for _, leg := range t.Legs {
			row.FeesPaid += leg.Fee
			report.TotalFees += leg.Fee
		}

		if !t.Status.Terminal() {
			report.OpenTrades++
			continue
		}

		row.Trades++
		row.RealizedPnL += t.RealizedPnL
		report.TotalRealized += t.RealizedPnL
		if t.RealizedPnL > 0 {
			row.Wins++
		} else if t.RealizedPnL < 0 {
			row.Losses++
		}
	}

	for _, s := range domain.AllStrategies() {
		row := byStrategy[s]
		if row.Trades > 0 {
			row.WinRate = float64(row.Wins) / float64(row.Trades)
			row.AvgPnLPerTrade = row.RealizedPnL / float64(row.Trades)
		}
		report.Strategies = append(report.Strategies, *row)
	}

	return report
}
