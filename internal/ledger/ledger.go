// Package ledger es el dueño del fondo virtual compartido. Reserve y Settle
// son los únicos caminos de mutación y corren bajo un solo mutex, así dos
// callers concurrentes nunca gastan el mismo dólar.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polysim/engine/internal/domain"
	"github.com/polysim/engine/internal/ports"
)

// SnapshotSource provee el snapshot más fresco del mercado para re-validar
// las reservas de arbitraje contra precios actuales dentro de la sección
// serializada.
type SnapshotSource interface {
	Snapshot(marketID string) (domain.MarketSnapshot, bool)
}

// Config contiene la política de aceptación del ledger.
type Config struct {
	InitialBalance float64
	ArbBuffer      float64 // el arbitraje dispara solo si suma < 1.0 - buffer
	Fees           FeeCalculator
}

// Ledger es el único dueño del fondo y del ciclo de vida de cada trade.
type Ledger struct {
	mu sync.Mutex

	balance  float64 // cash libre
	reserved float64 // bloqueado en trades abiertos
	feesPaid float64

	perStrategy    map[domain.StrategyID]float64
	opened         int
	resolved       int
	failed         int
	wins           int
	losses         int
	lastSettlement time.Time
	halted         bool

	trades map[string]*domain.Trade

	cfg       Config
	snapshots SnapshotSource
	store     ports.Store // opcional; fallos de escritura se loguean, no son fatales
	now       func() time.Time
}

// New crea un ledger con el balance inicial dado. snapshots y store pueden
// ser nil (tests, runs de init).
func New(cfg Config, snapshots SnapshotSource, store ports.Store) *Ledger {
	return &Ledger{
		balance:     cfg.InitialBalance,
		perStrategy: make(map[domain.StrategyID]float64),
		trades:      make(map[string]*domain.Trade),
		cfg:         cfg,
		snapshots:   snapshots,
		store:       store,
		now:         time.Now,
	}
}

// Restore reemplaza el estado del ledger con un fondo persistido y sus trades
// abiertos, para recuperación tras un crash al arrancar.
func (l *Ledger) Restore(state domain.LedgerState, open []domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = state.TotalBalance
	l.reserved = state.ReservedCapital
	l.feesPaid = state.TotalFeesPaid
	l.opened = state.TradesOpened
	l.resolved = state.TradesResolved
	l.failed = state.TradesFailed
	l.wins = state.WinningTrades
	l.losses = state.LosingTrades
	l.lastSettlement = state.LastSettlementAt
	l.halted = state.Halted
	for k, v := range state.PerStrategyRealized {
		l.perStrategy[k] = v
	}
	for _, t := range open {
		cp := t
		l.trades[t.ID] = &cp
	}
}

// SettlementResult reporta lo que hizo Settle o Fail.
type SettlementResult struct {
	Trade       domain.Trade
	Payout      float64
	RealizedPnL float64
}

// Reserve valida atómicamente el coste combinado de la oportunidad contra el
// balance libre y, si alcanza, crea un trade Open con todas las patas a la
// vez. Un arbitraje se re-valida primero contra los snapshots más frescos;
// nunca se materializan patas parciales.
func (l *Ledger) Reserve(ctx context.Context, opp domain.Opportunity) (domain.Trade, error) {
	l.mu.Lock()

	if l.halted {
		l.mu.Unlock()
		return domain.Trade{}, ErrHalted
	}

	if opp.Arbitrage {
		if err := l.revalidateArbitrage(opp); err != nil {
			l.mu.Unlock()
			return domain.Trade{}, err
		}
	}

	legs := make([]domain.TradeLeg, 0, len(opp.Legs))
	totalCost := 0.0
	totalFees := 0.0
	for _, pl := range opp.Legs {
		fee := l.cfg.Fees.Fee(pl.Shares, pl.Price, pl.Crypto15Min)
		cost := pl.Price * pl.Shares
		legs = append(legs, domain.TradeLeg{
			MarketID:   pl.MarketID,
			MarketName: pl.MarketName,
			Outcome:    pl.Outcome,
			EntryPrice: pl.Price,
			Shares:     pl.Shares,
			Cost:       cost,
			Fee:        fee,
		})
		totalCost += cost + fee
		totalFees += fee
	}

	if totalCost > l.balance {
		l.mu.Unlock()
		return domain.Trade{}, fmt.Errorf("%w: need $%.2f, have $%.2f",
			ErrInsufficientFunds, totalCost, l.balance)
	}

	trade := domain.Trade{
		ID:        uuid.NewString(),
		Strategy:  opp.Strategy,
		Legs:      legs,
		TotalCost: totalCost,
		Status:    domain.TradeOpen,
		OpenedAt:  l.now(),
	}
	if opp.Arbitrage {
		trade.ArbGroupID = uuid.NewString()
	}

	l.balance -= totalCost
	l.reserved += totalCost
	l.feesPaid += totalFees
	l.opened++
	l.trades[trade.ID] = &trade
	l.checkInvariants()

	cp := trade
	l.mu.Unlock()

	l.persistTrade(ctx, cp)
	l.persistFund(ctx)
	return cp, nil
}

// Settle acredita el payout de un trade resuelto y libera su coste reservado.
// winners mapea cada market id referenciado a su outcome ganador; una pata
// paga shares × $1.00 cuando su outcome ganó, 0 si no. Liquidar un trade
// terminal devuelve ErrAlreadySettled y no cambia nada.
func (l *Ledger) Settle(ctx context.Context, tradeID string, winners map[string]string) (SettlementResult, error) {
	l.mu.Lock()

	t, ok := l.trades[tradeID]
	if !ok {
		l.mu.Unlock()
		return SettlementResult{}, fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	if t.Status.Terminal() {
		res := SettlementResult{Trade: *t, Payout: t.Payout, RealizedPnL: t.RealizedPnL}
		l.mu.Unlock()
		return res, ErrAlreadySettled
	}

	payout := 0.0
	won := ""
	for _, leg := range t.Legs {
		if winners[leg.MarketID] == leg.Outcome {
			payout += leg.Shares // cada share ganadora paga $1.00
			won = leg.Outcome
		}
	}

	t.Status = domain.TradeResolved
	t.ResolutionOutcome = won
	t.Payout = payout
	t.RealizedPnL = payout - t.TotalCost
	t.ResolvedAt = l.now()

	l.balance += payout
	l.reserved -= t.TotalCost
	l.resolved++
	l.settleBookkeeping(t)
	l.checkInvariants()

	res := SettlementResult{Trade: *t, Payout: payout, RealizedPnL: t.RealizedPnL}
	l.mu.Unlock()

	l.persistTrade(ctx, res.Trade)
	l.persistFund(ctx)
	l.recordDailyPnL(ctx, res.Trade)
	return res, nil
}

// Fail marca un trade abierto como pérdida total: su mercado desapareció del
// feed más allá del horizonte de staleness. El coste reservado se libera, no
// se paga nada.
func (l *Ledger) Fail(ctx context.Context, tradeID string) (SettlementResult, error) {
	l.mu.Lock()

	t, ok := l.trades[tradeID]
	if !ok {
		l.mu.Unlock()
		return SettlementResult{}, fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	if t.Status.Terminal() {
		res := SettlementResult{Trade: *t, Payout: t.Payout, RealizedPnL: t.RealizedPnL}
		l.mu.Unlock()
		return res, ErrAlreadySettled
	}

	t.Status = domain.TradeFailed
	t.Payout = 0
	t.RealizedPnL = -t.TotalCost
	t.ResolvedAt = l.now()

	l.reserved -= t.TotalCost
	l.failed++
	l.settleBookkeeping(t)
	l.checkInvariants()

	res := SettlementResult{Trade: *t, Payout: 0, RealizedPnL: t.RealizedPnL}
	l.mu.Unlock()

	l.persistTrade(ctx, res.Trade)
	l.persistFund(ctx)
	l.recordDailyPnL(ctx, res.Trade)
	return res, nil
}

// State devuelve una copia del estado actual del fondo.
func (l *Ledger) State() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// AvailableCapital devuelve el balance libre. Los detectores lo usan como
// prefiltro barato; el check autoritativo sigue dentro de Reserve.
func (l *Ledger) AvailableCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// OpenTrades devuelve copias de cada trade no terminal, el más viejo primero.
func (l *Ledger) OpenTrades() []domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		if !t.Status.Terminal() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Trades devuelve copias de cada trade que el ledger vio, el más viejo primero.
func (l *Ledger) Trades() []domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenPositionsFor cuenta los trades no terminales de una estrategia.
func (l *Ledger) OpenPositionsFor(strategy domain.StrategyID) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, t := range l.trades {
		if t.Strategy == strategy && !t.Status.Terminal() {
			n++
		}
	}
	return n
}

// HasOpenPosition indica si algún trade no terminal de la estrategia ya
// referencia el mercado.
func (l *Ledger) HasOpenPosition(strategy domain.StrategyID, marketID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.trades {
		if t.Strategy != strategy || t.Status.Terminal() {
			continue
		}
		for _, leg := range t.Legs {
			if leg.MarketID == marketID {
				return true
			}
		}
	}
	return false
}

// revalidateArbitrage re-suma los precios de outcome de las patas desde los
// snapshots más frescos. Corre con el mutex tomado para que la decisión y el
// débito sean un paso atómico.
func (l *Ledger) revalidateArbitrage(opp domain.Opportunity) error {
	sum := opp.PriceSum
	if l.snapshots != nil {
		fresh := 0.0
		complete := true
		for _, leg := range opp.Legs {
			snap, ok := l.snapshots.Snapshot(leg.MarketID)
			if !ok {
				complete = false
				break
			}
			fresh += snap.OutcomePrice(leg.Outcome)
		}
		if complete {
			sum = fresh
		}
	}

	if sum >= 1.0-l.cfg.ArbBuffer {
		return fmt.Errorf("%w: price sum %.4f, threshold %.4f",
			ErrStaleArbitrage, sum, 1.0-l.cfg.ArbBuffer)
	}
	return nil
}

func (l *Ledger) settleBookkeeping(t *domain.Trade) {
	l.perStrategy[t.Strategy] += t.RealizedPnL
	if t.RealizedPnL > 0 {
		l.wins++
	} else if t.RealizedPnL < 0 {
		l.losses++
	}
	l.lastSettlement = t.ResolvedAt
}

// checkInvariants detiene el ledger cuando la aritmética del fondo rompió. Un
// balance negativo es un bug, no una condición de mercado; hay que parar.
func (l *Ledger) checkInvariants() {
	if l.balance < 0 || l.reserved < -1e-9 {
		l.halted = true
		slog.Error("ledger invariant violated, halting new reserves",
			"balance", l.balance, "reserved", l.reserved)
	}
}

func (l *Ledger) stateLocked() domain.LedgerState {
	per := make(map[domain.StrategyID]float64, len(l.perStrategy))
	total := 0.0
	for k, v := range l.perStrategy {
		per[k] = v
		total += v
	}
	return domain.LedgerState{
		TotalBalance:        l.balance,
		ReservedCapital:     l.reserved,
		TotalFeesPaid:       l.feesPaid,
		TradesOpened:        l.opened,
		TradesResolved:      l.resolved,
		TradesFailed:        l.failed,
		WinningTrades:       l.wins,
		LosingTrades:        l.losses,
		RealizedPnL:         total,
		PerStrategyRealized: per,
		LastSettlementAt:    l.lastSettlement,
		Halted:              l.halted,
	}
}

func (l *Ledger) persistTrade(ctx context.Context, t domain.Trade) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveTrade(ctx, t); err != nil {
		slog.Warn("ledger: persist trade failed", "trade_id", t.ID, "err", err)
	}
}

func (l *Ledger) persistFund(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveFund(ctx, l.State()); err != nil {
		slog.Warn("ledger: persist fund failed", "err", err)
	}
}

func (l *Ledger) recordDailyPnL(ctx context.Context, t domain.Trade) {
	if l.store == nil {
		return
	}
	if err := l.store.RecordDailyPnL(ctx, t.Strategy, t.RealizedPnL); err != nil {
		slog.Warn("ledger: record daily pnl failed", "strategy", t.Strategy, "err", err)
	}
}
