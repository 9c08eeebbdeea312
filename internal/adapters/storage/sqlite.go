// Package storage persiste el fondo virtual, los trades, las ballenas y el
// P&L diario en SQLite (driver Go puro, sin CGo). El simulador trata el store
// como un sink: los fallos de escritura se loguean arriba y nunca bloquean el
// trading.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polysim/engine/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Fondo virtual de una sola fila; id siempre es 1
CREATE TABLE IF NOT EXISTS paper_fund (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    total_balance    REAL    NOT NULL,
    reserved_capital REAL    NOT NULL DEFAULT 0,
    fees_paid        REAL    NOT NULL DEFAULT 0,
    trades_opened    INTEGER NOT NULL DEFAULT 0,
    trades_resolved  INTEGER NOT NULL DEFAULT 0,
    trades_failed    INTEGER NOT NULL DEFAULT 0,
    winning_trades   INTEGER NOT NULL DEFAULT 0,
    losing_trades    INTEGER NOT NULL DEFAULT 0,
    per_strategy     TEXT    NOT NULL DEFAULT '{}',
    last_settlement  DATETIME,
    halted           INTEGER NOT NULL DEFAULT 0,
    updated_at       DATETIME NOT NULL
);

-- Una fila por trade; las patas se guardan como JSON
CREATE TABLE IF NOT EXISTS paper_trades (
    id                 TEXT PRIMARY KEY,
    arb_group_id       TEXT,
    strategy           TEXT    NOT NULL,
    legs               TEXT    NOT NULL,
    total_cost         REAL    NOT NULL,
    status             TEXT    NOT NULL,
    opened_at          DATETIME NOT NULL,
    resolution_outcome TEXT,
    payout             REAL    NOT NULL DEFAULT 0,
    realized_pnl       REAL    NOT NULL DEFAULT 0,
    resolved_at        DATETIME
);

CREATE TABLE IF NOT EXISTS whales (
    address       TEXT PRIMARY KEY,
    profit_7d     REAL    NOT NULL,
    total_trades  INTEGER NOT NULL,
    win_rate      REAL    NOT NULL,
    discovered_at DATETIME NOT NULL,
    last_seen_at  DATETIME
);

CREATE TABLE IF NOT EXISTS daily_pnl (
    day      TEXT NOT NULL,
    strategy TEXT NOT NULL,
    pnl      REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (day, strategy)
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON paper_trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_opened ON paper_trades(opened_at DESC);
`

// Los trades terminales más viejos que esto se podan al arrancar.
const tradeRetention = 90 * 24 * time.Hour

// SQLiteStore implementa ports.Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base en la ruta dada, aplica el esquema y
// poda los trades terminales viejos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es de un solo escritor
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// InitFund crea una fila de fondo fresca, borrando los trades de ejecuciones previas.
func (s *SQLiteStore) InitFund(ctx context.Context, balance float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InitFund: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_trades`); err != nil {
		return fmt.Errorf("storage.InitFund: clear trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO paper_fund (id, total_balance, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_balance    = excluded.total_balance,
			reserved_capital = 0,
			fees_paid        = 0,
			trades_opened    = 0,
			trades_resolved  = 0,
			trades_failed    = 0,
			winning_trades   = 0,
			losing_trades    = 0,
			per_strategy     = '{}',
			last_settlement  = NULL,
			halted           = 0,
			updated_at       = excluded.updated_at
	`, balance, time.Now().UTC()); err != nil {
		return fmt.Errorf("storage.InitFund: upsert fund: %w", err)
	}

	return tx.Commit()
}

// LoadFund devuelve el estado del ledger persistido, ok=false si no existe.
func (s *SQLiteStore) LoadFund(ctx context.Context) (domain.LedgerState, bool, error) {
	var (
		state      domain.LedgerState
		perJSON    string
		settlement sql.NullString
		halted     int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total_balance, reserved_capital, fees_paid,
		       trades_opened, trades_resolved, trades_failed,
		       winning_trades, losing_trades, per_strategy, last_settlement, halted
		FROM paper_fund WHERE id = 1
	`).Scan(
		&state.TotalBalance, &state.ReservedCapital, &state.TotalFeesPaid,
		&state.TradesOpened, &state.TradesResolved, &state.TradesFailed,
		&state.WinningTrades, &state.LosingTrades, &perJSON, &settlement, &halted,
	)
	if err == sql.ErrNoRows {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadFund: %w", err)
	}

	state.PerStrategyRealized = make(map[domain.StrategyID]float64)
	if err := json.Unmarshal([]byte(perJSON), &state.PerStrategyRealized); err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadFund: per_strategy: %w", err)
	}
	for _, v := range state.PerStrategyRealized {
		state.RealizedPnL += v
	}
	if settlement.Valid {
		state.LastSettlementAt, _ = time.Parse(time.RFC3339, settlement.String)
	}
	state.Halted = halted == 1
	return state, true, nil
}

// SaveFund sobrescribe la fila del fondo con el estado actual del ledger.
func (s *SQLiteStore) SaveFund(ctx context.Context, state domain.LedgerState) error {
	perJSON, err := json.Marshal(state.PerStrategyRealized)
	if err != nil {
		return fmt.Errorf("storage.SaveFund: marshal per_strategy: %w", err)
	}

	var settlement any
	if !state.LastSettlementAt.IsZero() {
		settlement = state.LastSettlementAt.UTC().Format(time.RFC3339)
	}
	halted := 0
	if state.Halted {
		halted = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paper_fund
			(id, total_balance, reserved_capital, fees_paid,
			 trades_opened, trades_resolved, trades_failed,
			 winning_trades, losing_trades, per_strategy, last_settlement, halted, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_balance    = excluded.total_balance,
			reserved_capital = excluded.reserved_capital,
			fees_paid        = excluded.fees_paid,
			trades_opened    = excluded.trades_opened,
			trades_resolved  = excluded.trades_resolved,
			trades_failed    = excluded.trades_failed,
			winning_trades   = excluded.winning_trades,
			losing_trades    = excluded.losing_trades,
			per_strategy     = excluded.per_strategy,
			last_settlement  = excluded.last_settlement,
			halted           = excluded.halted,
			updated_at       = excluded.updated_at
	`, state.TotalBalance, state.ReservedCapital, state.TotalFeesPaid,
		state.TradesOpened, state.TradesResolved, state.TradesFailed,
		state.WinningTrades, state.LosingTrades, string(perJSON), settlement, halted,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveFund: %w", err)
	}
	return nil
}

// SaveTrade inserta o actualiza un trade por id.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t domain.Trade) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: marshal legs: %w", err)
	}

	var resolvedAt any
	if !t.ResolvedAt.IsZero() {
		resolvedAt = t.ResolvedAt.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paper_trades
			(id, arb_group_id, strategy, legs, total_cost, status,
			 opened_at, resolution_outcome, payout, realized_pnl, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status             = excluded.status,
			resolution_outcome = excluded.resolution_outcome,
			payout             = excluded.payout,
			realized_pnl       = excluded.realized_pnl,
			resolved_at        = excluded.resolved_at
	`, t.ID, t.ArbGroupID, string(t.Strategy), string(legs), t.TotalCost, string(t.Status),
		t.OpenedAt.UTC().Format(time.RFC3339), t.ResolutionOutcome, t.Payout, t.RealizedPnL, resolvedAt)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade %s: %w", t.ID, err)
	}
	return nil
}

// OpenTrades devuelve cada trade no terminal, el más viejo primero.
func (s *SQLiteStore) OpenTrades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, arb_group_id, strategy, legs, total_cost, status, opened_at
		FROM paper_trades
		WHERE status IN (?, ?)
		ORDER BY opened_at ASC
	`, string(domain.TradePending), string(domain.TradeOpen))
	if err != nil {
		return nil, fmt.Errorf("storage.OpenTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			legsJSON string
			strategy string
			status   string
			openedAt string
		)
		if err := rows.Scan(&t.ID, &t.ArbGroupID, &strategy, &legsJSON, &t.TotalCost, &status, &openedAt); err != nil {
			return nil, fmt.Errorf("storage.OpenTrades: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(legsJSON), &t.Legs); err != nil {
			return nil, fmt.Errorf("storage.OpenTrades: legs of %s: %w", t.ID, err)
		}
		t.Strategy = domain.StrategyID(strategy)
		t.Status = domain.TradeStatus(status)
		t.OpenedAt, _ = time.Parse(time.RFC3339, openedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpsertWhale inserta o refresca una ballena seguida.
func (s *SQLiteStore) UpsertWhale(ctx context.Context, w domain.Whale) error {
	var lastSeen any
	if !w.LastSeenAt.IsZero() {
		lastSeen = w.LastSeenAt.UTC().Format(time.RFC3339)
	}
	discovered := w.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whales (address, profit_7d, total_trades, win_rate, discovered_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			profit_7d    = excluded.profit_7d,
			total_trades = excluded.total_trades,
			win_rate     = excluded.win_rate,
			last_seen_at = COALESCE(excluded.last_seen_at, last_seen_at)
	`, w.Address, w.Profit7d, w.TotalTrades, w.WinRate,
		discovered.UTC().Format(time.RFC3339), lastSeen)
	if err != nil {
		return fmt.Errorf("storage.UpsertWhale %s: %w", w.Address, err)
	}
	return nil
}

// Whales devuelve cada ballena persistida.
func (s *SQLiteStore) Whales(ctx context.Context) ([]domain.Whale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, profit_7d, total_trades, win_rate, discovered_at, last_seen_at
		FROM whales ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.Whales: query: %w", err)
	}
	defer rows.Close()

	var whales []domain.Whale
	for rows.Next() {
		var (
			w          domain.Whale
			discovered string
			lastSeen   sql.NullString
		)
		if err := rows.Scan(&w.Address, &w.Profit7d, &w.TotalTrades, &w.WinRate, &discovered, &lastSeen); err != nil {
			return nil, fmt.Errorf("storage.Whales: scan: %w", err)
		}
		w.DiscoveredAt, _ = time.Parse(time.RFC3339, discovered)
		if lastSeen.Valid {
			w.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeen.String)
		}
		whales = append(whales, w)
	}
	return whales, rows.Err()
}

// DeleteWhale borra una ballena expulsada por inactividad.
func (s *SQLiteStore) DeleteWhale(ctx context.Context, address string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM whales WHERE address = ?`, address); err != nil {
		return fmt.Errorf("storage.DeleteWhale %s: %w", address, err)
	}
	return nil
}

// RecordDailyPnL acumula P&L realizado de una estrategia en el día UTC actual.
func (s *SQLiteStore) RecordDailyPnL(ctx context.Context, strategy domain.StrategyID, pnl float64) error {
	day := time.Now().UTC().Format("2006-01-02")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (day, strategy, pnl) VALUES (?, ?, ?)
		ON CONFLICT(day, strategy) DO UPDATE SET pnl = pnl + excluded.pnl
	`, day, string(strategy), pnl)
	if err != nil {
		return fmt.Errorf("storage.RecordDailyPnL: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// pruneOld borra trades terminales pasada la ventana de retención.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-tradeRetention).Format(time.RFC3339)
	s.db.ExecContext(ctx, `
		DELETE FROM paper_trades
		WHERE status IN (?, ?) AND resolved_at < ?
	`, string(domain.TradeResolved), string(domain.TradeFailed), cutoff)
}
