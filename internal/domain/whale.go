package domain

import "time"

// Whale es un participante trackeado con buen historial reciente.
type Whale struct {
	Address      string
	Profit7d     float64
	TotalTrades  int
	WinRate      float64
	DiscoveredAt time.Time
	LastSeenAt   time.Time // último trade observado, gobierna la evicción por inactividad
}

// WhaleTrade es un trade observado de una whale trackeada.
type WhaleTrade struct {
	Address    string
	MarketID   string
	Outcome    string // normalizado a "YES" / "NO"
	Price      float64
	Shares     float64
	ObservedAt time.Time
	TxHash     string // clave de dedupe; el feed repite trades recientes en cada poll
}

// LeaderboardEntry es una fila del leaderboard de traders del venue, la
// materia prima del vetting de whales.
type LeaderboardEntry struct {
	Address string
	PnL     float64
	Volume  float64
	Rank    int
}

// WhaleSignal es una convergencia de varias whales en un lado de un mercado.
type WhaleSignal struct {
	MarketID   string
	Outcome    string
	WhaleCount int     // whales distintas en este lado dentro de la ventana
	FirstPrice float64 // precio del trade confirmante más temprano
	DetectedAt time.Time
}
