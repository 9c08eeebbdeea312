package domain

import "time"

// OpportunityLeg es una posición propuesta dentro de una oportunidad.
type OpportunityLeg struct {
	MarketID    string
	MarketName  string
	Outcome     string
	Price       float64
	Shares      float64
	Crypto15Min bool
}

// Opportunity es la propuesta de un detector para el ledger. Es efímera: o se
// convierte en Trade dentro de Reserve o se descarta.
type Opportunity struct {
	Strategy      StrategyID
	Legs          []OpportunityLeg
	EstimatedCost float64 // suma de precio × shares por pata, fees incluidos
	EstimatedEdge float64 // profit esperado si la tesis se cumple
	Confidence    float64 // en [0,1], escala el tamaño en algunas estrategias
	DetectedAt    time.Time

	// Las oportunidades de arbitraje fijan ambos: Reserve re-valida la suma
	// de precios contra el snapshot más fresco antes de comprometer patas.
	Arbitrage  bool
	PriceSum   float64 // suma de precios de outcomes observada al detectar
	ArbEventID string
}

// Cost devuelve el coste combinado de todas las patas a los precios propuestos.
func (o Opportunity) Cost() float64 {
	c := 0.0
	for _, leg := range o.Legs {
		c += leg.Price * leg.Shares
	}
	return c
}
