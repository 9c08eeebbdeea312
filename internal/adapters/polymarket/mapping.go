package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/polysim/engine/internal/domain"
)

// Un mercado resuelto fija el precio de su outcome ganador en $1.00; todo lo
// que esté en o sobre esto cuenta como ganador.
const resolvedWinnerPrice = 0.99

// mapEvent convierte un evento de Gamma en snapshots. Un evento NegRisk con
// dos o más mercados hijos se vuelve un solo snapshot multi-outcome con clave
// en el event id; cualquier otro evento mapea sus mercados uno a uno.
func mapEvent(ev gammaEvent) []domain.MarketSnapshot {
	if ev.NegRisk && len(ev.Markets) >= 2 {
		if snap, ok := mapNegRiskEvent(ev); ok {
			return []domain.MarketSnapshot{snap}
		}
		return nil
	}

	snaps := make([]domain.MarketSnapshot, 0, len(ev.Markets))
	for _, gm := range ev.Markets {
		snaps = append(snaps, mapBinaryMarket(gm, ev.ID))
	}
	return snaps
}

// mapNegRiskEvent colapsa los mercados hijos del evento en un snapshot con un
// outcome por hijo. El precio de cada outcome es el precio YES del hijo.
func mapNegRiskEvent(ev gammaEvent) (domain.MarketSnapshot, bool) {
	outcomes := make(map[string]domain.OutcomeQuote, len(ev.Markets))
	winner := ""

	for _, gm := range ev.Markets {
		label := gm.GroupItemTitle
		if label == "" {
			label = gm.Question
		}
		if label == "" {
			continue
		}

		yes, ok := yesPrice(gm)
		if !ok {
			continue
		}
		outcomes[label] = domain.OutcomeQuote{
			TokenID: firstTokenID(gm),
			Price:   yes,
			Depth:   liquidity(gm),
		}
		if gm.Closed && yes >= resolvedWinnerPrice {
			winner = label
		}
	}
	if len(outcomes) < 2 {
		return domain.MarketSnapshot{}, false
	}

	snap := domain.MarketSnapshot{
		ID:         ev.ID,
		EventID:    ev.ID,
		Question:   ev.Title,
		Outcomes:   outcomes,
		NegRisk:    true,
		ExpiryTime: parseGammaTime(ev.EndDateISO),
		Status:     domain.MarketOpen,
		FetchedAt:  time.Now(),
	}
	if ev.Closed {
		snap.Status = domain.MarketResolved
		snap.WinningOutcome = winner
	}
	return snap, true
}

// mapBinaryMarket mapea un mercado YES/NO a un snapshot con clave en el condition id.
func mapBinaryMarket(gm gammaMarket, eventID string) domain.MarketSnapshot {
	labels := parseStringArray(gm.Outcomes)
	prices := parseFloatArray(gm.OutcomePrices)
	tokens := parseStringArray(gm.CLOBTokenIDs)

	outcomes := make(map[string]domain.OutcomeQuote, len(labels))
	winner := ""
	for i, label := range labels {
		if i >= len(prices) {
			break
		}
		key := normalizeOutcome(label)
		q := domain.OutcomeQuote{Price: prices[i], Depth: liquidity(gm)}
		if i < len(tokens) {
			q.TokenID = tokens[i]
		}
		outcomes[key] = q
		if gm.Closed && prices[i] >= resolvedWinnerPrice {
			winner = key
		}
	}

	asset := domain.DetectReferenceAsset(gm.Question)
	snap := domain.MarketSnapshot{
		ID:             gm.ConditionID,
		EventID:        eventID,
		Question:       gm.Question,
		Outcomes:       outcomes,
		NegRisk:        gm.NegRisk,
		Crypto15Min:    isCrypto15Min(gm, asset),
		ReferenceAsset: asset,
		ExpiryTime:     parseGammaTime(gm.EndDateISO),
		Status:         domain.MarketOpen,
		FetchedAt:      time.Now(),
	}
	if gm.Closed {
		snap.Status = domain.MarketResolved
		snap.WinningOutcome = winner
	}
	return snap
}

// isCrypto15Min reconoce la serie crypto up-or-down de 15 minutos del venue,
// los únicos mercados que cobran taker fees.
func isCrypto15Min(gm gammaMarket, asset string) bool {
	if asset == "" {
		return false
	}
	q := strings.ToLower(gm.Question)
	return strings.Contains(q, "up or down") || strings.Contains(gm.Slug, "-15m-")
}

func normalizeOutcome(label string) string {
	switch strings.ToLower(label) {
	case "yes":
		return "YES"
	case "no":
		return "NO"
	}
	return label
}

func yesPrice(gm gammaMarket) (float64, bool) {
	labels := parseStringArray(gm.Outcomes)
	prices := parseFloatArray(gm.OutcomePrices)
	for i, label := range labels {
		if i >= len(prices) {
			break
		}
		if strings.EqualFold(label, "yes") {
			return prices[i], true
		}
	}
	return 0, false
}

func firstTokenID(gm gammaMarket) string {
	if tokens := parseStringArray(gm.CLOBTokenIDs); len(tokens) > 0 {
		return tokens[0]
	}
	return ""
}

func liquidity(gm gammaMarket) float64 {
	v, err := gm.Liquidity.Float64()
	if err != nil {
		return 0
	}
	return v
}

// parseStringArray decodifica los arrays de strings JSON-encoded de Gamma,
// p. ej. `["Yes","No"]` llegando como un solo string JSON.
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func parseFloatArray(s string) []float64 {
	raw := parseStringArray(s)
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// parseGammaTime prueba los layouts de fecha que se sabe que emite Gamma.
func parseGammaTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
