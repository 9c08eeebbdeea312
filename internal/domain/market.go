package domain

import (
	"strings"
	"time"
)

// ResolutionStatus es el estado del mercado en el venue.
type ResolutionStatus string

const (
	MarketOpen     ResolutionStatus = "OPEN"
	MarketResolved ResolutionStatus = "RESOLVED"
)

// OutcomeQuote es el precio cacheado y la profundidad del libro de un outcome.
type OutcomeQuote struct {
	TokenID string
	Price   float64 // último mid en [0,1]
	Depth   float64 // USD disponibles a Price o mejor
}

// MarketSnapshot es la vista normalizada y cacheada de un mercado. Los
// snapshots son inmutables una vez publicados; un refresh reemplaza el valor
// completo.
type MarketSnapshot struct {
	ID             string // conditionId en Polymarket
	EventID        string // agrupa los outcomes de un evento NegRisk
	Question       string
	Outcomes       map[string]OutcomeQuote // etiqueta del outcome → quote
	NegRisk        bool                    // exactamente un outcome paga $1.00
	Crypto15Min    bool                    // mercado crypto de 15 min (aplican taker fees)
	ReferenceAsset string                  // "BTC", "ETH", ... en mercados crypto
	ExpiryTime     time.Time
	Status         ResolutionStatus
	WinningOutcome string // fijado cuando Status == MarketResolved
	FetchedAt      time.Time
}

// OutcomePrice devuelve el precio cacheado de un outcome, 0 si no se conoce.
func (m MarketSnapshot) OutcomePrice(outcome string) float64 {
	return m.Outcomes[outcome].Price
}

// PriceSum devuelve la suma de precios de todos los outcomes. En un evento
// NegRisk una suma bajo 1.0 significa que comprar todos asegura profit.
func (m MarketSnapshot) PriceSum() float64 {
	sum := 0.0
	for _, q := range m.Outcomes {
		sum += q.Price
	}
	return sum
}

// TimeToExpiry devuelve la vida restante, 0 si expiró o no se conoce.
func (m MarketSnapshot) TimeToExpiry(now time.Time) time.Duration {
	if m.ExpiryTime.IsZero() {
		return 0
	}
	d := m.ExpiryTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TruncateQuestion acorta la pregunta del mercado para logs y tablas.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		if len(marketID) > 20 {
			q = marketID[:20] + "..."
		} else {
			q = marketID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}

// DetectReferenceAsset extrae el activo crypto al que refiere la pregunta del
// mercado. Devuelve "" cuando no nombra ningún activo mayor.
func DetectReferenceAsset(question string) string {
	q := strings.ToLower(question)
	aliases := []struct{ needle, asset string }{
		{"bitcoin", "BTC"}, {"btc", "BTC"},
		{"ethereum", "ETH"}, {"eth", "ETH"},
		{"solana", "SOL"}, {"sol", "SOL"},
		{"ripple", "XRP"}, {"xrp", "XRP"},
		{"doge", "DOGE"},
	}
	for _, a := range aliases {
		if strings.Contains(q, a.needle) {
			return a.asset
		}
	}
	return ""
}
