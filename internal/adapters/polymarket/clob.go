package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/polysim/engine/internal/domain"
)

const clobBooksPath = "/books"

// Orderbook devuelve la profundidad del lado ask por outcome de un mercado.
// La cache de snapshots lleva la estimación de liquidez de Gamma; esto es la
// cifra exacta para los callers que la necesiten.
func (c *Client) Orderbook(ctx context.Context, marketID string) (map[string]domain.OutcomeQuote, error) {
	snap, err := c.FetchMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("clob.Orderbook: %w", err)
	}

	tokenOutcome := make(map[string]string, len(snap.Outcomes))
	body := make([]orderBookRequest, 0, len(snap.Outcomes))
	for outcome, q := range snap.Outcomes {
		if q.TokenID == "" {
			continue
		}
		tokenOutcome[q.TokenID] = outcome
		body = append(body, orderBookRequest{TokenID: q.TokenID})
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("clob.Orderbook %s: no token ids", marketID)
	}

	var books []orderBookResponse
	if err := c.postBooks(ctx, body, &books); err != nil {
		return nil, fmt.Errorf("clob.Orderbook %s: %w", marketID, err)
	}

	out := make(map[string]domain.OutcomeQuote, len(books))
	for _, b := range books {
		outcome, ok := tokenOutcome[b.AssetID]
		if !ok {
			continue
		}
		q := snap.Outcomes[outcome]
		q.Depth = askNotional(b.Asks)
		if best, ok := bestAsk(b.Asks); ok {
			q.Price = best
		}
		out[outcome] = q
	}
	return out, nil
}

func (c *Client) postBooks(ctx context.Context, body []orderBookRequest, out *[]orderBookResponse) error {
	return c.doWithRetry(ctx, c.booksLimiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clobBase+clobBooksPath, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// askNotional suma los USD disponibles para un comprador en el lado ask.
func askNotional(asks []bookEntryRaw) float64 {
	total := 0.0
	for _, a := range asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		size, _ := strconv.ParseFloat(a.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		total += price * size
	}
	return total
}

func bestAsk(asks []bookEntryRaw) (float64, bool) {
	best := 0.0
	for _, a := range asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		if price <= 0 {
			continue
		}
		if best == 0 || price < best {
			best = price
		}
	}
	return best, best > 0
}
