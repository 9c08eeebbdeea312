package domain

import "time"

// LedgerState es una copia puntual del fondo compartido. Es un valor: quien
// lo recibe no observa mutaciones posteriores.
type LedgerState struct {
	TotalBalance    float64 // cash libre, acreditado al liquidar, debitado al aceptar
	ReservedCapital float64 // coste de los trades abiertos, liberado al liquidar
	TotalFeesPaid   float64

	TradesOpened   int
	TradesResolved int
	TradesFailed   int
	WinningTrades  int
	LosingTrades   int

	RealizedPnL           float64
	PerStrategyRealized   map[StrategyID]float64
	LastSettlementAt      time.Time
	Halted                bool // activo cuando una invariante rompió; no se aceptan reservas
}

// AvailableCapital devuelve el cash que un detector aún puede reclamar.
func (s LedgerState) AvailableCapital() float64 {
	return s.TotalBalance
}

// Equity devuelve el cash libre más el capital en posiciones abiertas.
func (s LedgerState) Equity() float64 {
	return s.TotalBalance + s.ReservedCapital
}
