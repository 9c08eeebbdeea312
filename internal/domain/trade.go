package domain

import "time"

// TradeStatus representa el ciclo de vida de un trade simulado.
type TradeStatus string

const (
	TradePending  TradeStatus = "PENDING"
	TradeOpen     TradeStatus = "OPEN"
	TradeResolved TradeStatus = "RESOLVED"
	TradeFailed   TradeStatus = "FAILED"
)

// Terminal indica si el estado ya no puede cambiar.
func (s TradeStatus) Terminal() bool {
	return s == TradeResolved || s == TradeFailed
}

// StrategyID identifica qué detector propuso un trade.
type StrategyID string

const (
	StrategyNegRisk  StrategyID = "NEGRISK_ARB"
	StrategyBond     StrategyID = "HIGH_PROB_BOND"
	StrategyWhale    StrategyID = "WHALE_COPY"
	StrategyTemporal StrategyID = "TEMPORAL_ARB"
)

// AllStrategies lista todas las estrategias en orden de presentación.
func AllStrategies() []StrategyID {
	return []StrategyID{StrategyNegRisk, StrategyBond, StrategyWhale, StrategyTemporal}
}

// TradeLeg es una posición dentro de un trade. Los trades de un solo outcome
// llevan una pata; los de arbitraje NegRisk llevan una por outcome.
type TradeLeg struct {
	MarketID   string
	MarketName string
	Outcome    string  // "YES", "NO", o la etiqueta del outcome en eventos multi-outcome
	EntryPrice float64 // en [0,1]
	Shares     float64
	Cost       float64 // EntryPrice × Shares
	Fee        float64 // taker fee del venue a la entrada, 0 en mercados sin fee
}

// Trade es una posición simulada propiedad del ledger. Solo el ledger muta un
// Trade después de crearlo.
type Trade struct {
	ID         string
	ArbGroupID string // enlaza las patas de un arbitraje multi-pata; vacío si no aplica
	Strategy   StrategyID
	Legs       []TradeLeg
	TotalCost  float64 // suma de costes + fees de las patas, lo debitado al aceptar
	Status     TradeStatus
	OpenedAt   time.Time

	// Campos de settlement, en cero hasta que el trade es terminal.
	ResolutionOutcome string
	Payout            float64
	RealizedPnL       float64
	ResolvedAt        time.Time
}

// MarketIDs devuelve los market ids distintos referenciados por las patas.
func (t Trade) MarketIDs() []string {
	seen := make(map[string]bool, len(t.Legs))
	ids := make([]string, 0, len(t.Legs))
	for _, leg := range t.Legs {
		if seen[leg.MarketID] {
			continue
		}
		seen[leg.MarketID] = true
		ids = append(ids, leg.MarketID)
	}
	return ids
}

// IsArbitrage indica si el trade tiene todos los outcomes de un evento.
func (t Trade) IsArbitrage() bool {
	return t.ArbGroupID != ""
}
