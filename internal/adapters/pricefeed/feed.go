// Package pricefeed recupera precios spot y velas de los activos de
// referencia. Binance es la fuente primaria; Coinbase respalda el precio spot
// cuando Binance no está disponible.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/polysim/engine/internal/domain"
)

const (
	// Binance permite 1200 de request weight/min; nos quedamos muy por debajo.
	requestsPerSec = 10

	tickerPath  = "/api/v3/ticker/price"
	klinesPath  = "/api/v3/klines"
	spotPathFmt = "/v2/prices/%s-USD/spot"
)

// Client implementa ports.PriceFeed sobre las APIs públicas de Binance y Coinbase.
type Client struct {
	http         *http.Client
	binanceBase  string
	coinbaseBase string
	limiter      *rate.Limiter
}

// New crea un cliente de precios para las URLs base dadas.
func New(binanceBase, coinbaseBase string) *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		binanceBase:  binanceBase,
		coinbaseBase: coinbaseBase,
		limiter:      rate.NewLimiter(requestsPerSec, 5),
	}
}

// CurrentPrice devuelve el último precio spot de un activo ("BTC", "ETH",
// ...), cayendo a Coinbase cuando Binance falla.
func (c *Client) CurrentPrice(ctx context.Context, asset string) (float64, error) {
	price, binanceErr := c.binancePrice(ctx, asset)
	if binanceErr == nil {
		return price, nil
	}
	slog.Debug("pricefeed: binance spot failed, trying coinbase", "asset", asset, "err", binanceErr)

	price, coinbaseErr := c.coinbasePrice(ctx, asset)
	if coinbaseErr == nil {
		return price, nil
	}
	return 0, fmt.Errorf("pricefeed.CurrentPrice %s: binance: %w; coinbase: %v", asset, binanceErr, coinbaseErr)
}

// Candles devuelve las velas OHLCV más recientes, la más vieja primero. Solo
// Binance sirve velas; el fallback de Coinbase cubre únicamente el spot.
func (c *Client) Candles(ctx context.Context, asset, interval string, limit int) ([]domain.Candle, error) {
	url := fmt.Sprintf("%s%s?symbol=%s&interval=%s&limit=%d",
		c.binanceBase, klinesPath, binanceSymbol(asset), interval, limit)

	// Las klines de Binance son arrays posicionales que mezclan números y strings.
	var raw [][]json.RawMessage
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("pricefeed.Candles %s: %w", asset, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			continue
		}
		open, err1 := rawFloat(k[1])
		high, err2 := rawFloat(k[2])
		low, err3 := rawFloat(k[3])
		closePrice, err4 := rawFloat(k[4])
		volume, err5 := rawFloat(k[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, domain.Candle{
			OpenTime: time.UnixMilli(openMs),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	return candles, nil
}

func (c *Client) binancePrice(ctx context.Context, asset string) (float64, error) {
	url := fmt.Sprintf("%s%s?symbol=%s", c.binanceBase, tickerPath, binanceSymbol(asset))

	var resp struct {
		Price string `json:"price"`
	}
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("bad price %q", resp.Price)
	}
	return price, nil
}

func (c *Client) coinbasePrice(ctx context.Context, asset string) (float64, error) {
	url := c.coinbaseBase + fmt.Sprintf(spotPathFmt, asset)

	var resp struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Data.Amount, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("bad price %q", resp.Data.Amount)
	}
	return price, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func binanceSymbol(asset string) string {
	return asset + "USDT"
}

func rawFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
