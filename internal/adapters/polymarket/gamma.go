package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polysim/engine/internal/domain"
)

const (
	gammaEventsPath  = "/events"
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	gammaMaxPages    = 10
)

// ListMarkets devuelve un snapshot normalizado de cada evento activo que
// importa a los detectores. Los eventos NegRisk colapsan en un snapshot
// multi-outcome; el resto mapea mercado a mercado.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	var snapshots []domain.MarketSnapshot

	for page := 0; page < gammaMaxPages; page++ {
		url := fmt.Sprintf("%s%s?closed=false&active=true&order=endDate&ascending=true&limit=%d&offset=%d",
			c.gammaBase, gammaEventsPath, gammaPageSize, page*gammaPageSize)

		var resp gammaEventsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("gamma.ListMarkets: %w", err)
			}
			slog.Debug("gamma page failed, keeping earlier pages", "page", page, "err", err)
			break
		}

		for _, ev := range resp {
			snapshots = append(snapshots, mapEvent(ev)...)
		}

		if len(resp) < gammaPageSize {
			break
		}
	}

	slog.Debug("gamma list complete", "snapshots", len(snapshots))
	return snapshots, nil
}

// FetchMarket devuelve el snapshot actual de un mercado o evento, incluido su
// estado de resolución. Los condition ids son hashes 0x; el resto es un event
// id de Gamma.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	if strings.HasPrefix(marketID, "0x") {
		return c.fetchByCondition(ctx, marketID)
	}
	return c.fetchEvent(ctx, marketID)
}

func (c *Client) fetchByCondition(ctx context.Context, conditionID string) (domain.MarketSnapshot, error) {
	url := fmt.Sprintf("%s%s?condition_ids=%s", c.gammaBase, gammaMarketsPath, conditionID)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("gamma.FetchMarket %s: %w", conditionID, err)
	}
	if len(resp) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("gamma.FetchMarket %s: not found", conditionID)
	}
	return mapBinaryMarket(resp[0], ""), nil
}

func (c *Client) fetchEvent(ctx context.Context, eventID string) (domain.MarketSnapshot, error) {
	url := fmt.Sprintf("%s%s/%s", c.gammaBase, gammaEventsPath, eventID)

	var ev gammaEvent
	if err := c.get(ctx, c.gammaLimiter, url, &ev); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("gamma.FetchMarket event %s: %w", eventID, err)
	}
	snaps := mapEvent(ev)
	for _, s := range snaps {
		if s.ID == eventID {
			return s, nil
		}
	}
	if len(snaps) > 0 {
		return snaps[0], nil
	}
	return domain.MarketSnapshot{}, fmt.Errorf("gamma.FetchMarket event %s: no mappable markets", eventID)
}
