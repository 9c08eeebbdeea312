package domain

import "time"

// StrategyPnL es la porción por estrategia del reporte agregado.
type StrategyPnL struct {
	Strategy       StrategyID
	Trades         int // trades liquidados (resueltos + fallidos)
	Wins           int
	Losses         int
	WinRate        float64
	RealizedPnL    float64
	AvgPnLPerTrade float64
	FeesPaid       float64
}

// PnLReport es la proyección de solo lectura recalculada tras cada settlement.
type PnLReport struct {
	GeneratedAt    time.Time
	InitialBalance float64
	Strategies     []StrategyPnL
	TotalRealized  float64
	TotalFees      float64
	OpenTrades     int
}
