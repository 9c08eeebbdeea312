package polymarket

import "encoding/json"

// DTOs crudos de la API de Polymarket. Solo se usan dentro de este paquete;
// la conversión a entidades de dominio pasa en mapping.go.

// --- Gamma API ---

// gammaEventsResponse es la respuesta de GET /events.
type gammaEventsResponse []gammaEvent

// gammaEvent agrupa los mercados de un evento. Los eventos NegRisk llevan un
// mercado hijo por outcome.
type gammaEvent struct {
	ID         string        `json:"id"`
	Slug       string        `json:"slug"`
	Title      string        `json:"title"`
	NegRisk    bool          `json:"negRisk"`
	Active     bool          `json:"active"`
	Closed     bool          `json:"closed"`
	EndDateISO string        `json:"endDate"`
	Markets    []gammaMarket `json:"markets"`
}

// gammaMarketsResponse es la respuesta de GET /markets.
type gammaMarketsResponse []gammaMarket

// gammaMarket es la metadata Gamma de un mercado. Gamma devuelve varios
// campos numéricos y de array como strings JSON-encoded.
type gammaMarket struct {
	ConditionID    string      `json:"conditionId"`
	Question       string      `json:"question"`
	Slug           string      `json:"slug"`
	GroupItemTitle string      `json:"groupItemTitle"` // etiqueta de outcome dentro de un evento NegRisk
	Outcomes       string      `json:"outcomes"`       // e.g. `["Yes","No"]`
	OutcomePrices  string      `json:"outcomePrices"`  // e.g. `["0.4","0.6"]`
	CLOBTokenIDs   string      `json:"clobTokenIds"`
	EndDateISO     string      `json:"endDateIso"`
	Liquidity      json.Number `json:"liquidity"`
	NegRisk        bool        `json:"negRisk"`
	Active         bool        `json:"active"`
	Closed         bool        `json:"closed"`
}

// --- CLOB API ---

// orderBookRequest es un item del body batch de POST /books.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es un libro en la respuesta de POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio crudo (strings por precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Data API ---

// dataLeaderboardEntry es una fila de GET /leaderboard.
type dataLeaderboardEntry struct {
	ProxyWallet string      `json:"proxyWallet"`
	Name        string      `json:"name"`
	Amount      json.Number `json:"amount"` // PnL realizado en la ventana
	Volume      json.Number `json:"vol"`
	Rank        json.Number `json:"rank"`
}

// dataTrade es una fila de GET /trades de un usuario.
type dataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	ConditionID     string      `json:"conditionId"`
	Side            string      `json:"side"` // BUY / SELL
	Outcome         string      `json:"outcome"`
	Price           json.Number `json:"price"`
	Size            json.Number `json:"size"`
	Timestamp       json.Number `json:"timestamp"` // segundos unix
	TransactionHash string      `json:"transactionHash"`
}

// --- Websocket stream ---

// streamEvent es un mensaje del canal de mercado. price_change y
// last_trade_price llevan ambos asset_id y price.
type streamEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Market    string `json:"market"`
}
