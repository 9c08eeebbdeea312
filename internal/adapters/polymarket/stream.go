package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polysim/engine/internal/domain"
)

const (
	streamInitialBackoff = 1 * time.Second
	streamMaxBackoff     = 60 * time.Second
	streamJitterPct      = 0.2

	streamHandshakeTimeout = 10 * time.Second
	streamReadTimeout      = 70 * time.Second
	streamWriteTimeout     = 10 * time.Second

	// Reconecta periódicamente para que la suscripción levante los mercados
	// que entraron a la cache después del último dial.
	streamResubscribeAfter = 5 * time.Minute
)

// MarketIndex provee el set de mercados actual, que define los token ids a
// los que se suscribe el stream.
type MarketIndex interface {
	All() []domain.MarketSnapshot
}

// PriceSink recibe ticks de precio de un solo outcome.
type PriceSink interface {
	UpdatePrice(marketID, outcome string, price float64)
}

// Stream mantiene una suscripción websocket al canal de mercado y empuja
// ticks de precio a la cache de snapshots entre refreshes completos.
type Stream struct {
	url     string
	index   MarketIndex
	sink    PriceSink
	backoff time.Duration
}

// NewStream crea un listener del stream del canal de mercado.
func NewStream(url string, index MarketIndex, sink PriceSink) *Stream {
	return &Stream{
		url:     url,
		index:   index,
		sink:    sink,
		backoff: streamInitialBackoff,
	}
}

// Run marca, se suscribe y lee hasta que el contexto se cancela,
// reconectando con backoff exponencial ante cualquier fallo.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := s.tokenIndex()
		if len(tokens) == 0 {
			// Nada cacheado todavía; vuelve a mirar en breve.
			s.wait(ctx, streamInitialBackoff)
			continue
		}

		conn, err := s.connect(ctx, tokens)
		if err != nil {
			slog.Warn("stream: connect failed", "err", err, "backoff", s.backoff)
			s.wait(ctx, s.backoff)
			s.growBackoff()
			continue
		}
		s.backoff = streamInitialBackoff

		if err := s.readLoop(ctx, conn, tokens); err != nil && ctx.Err() == nil {
			slog.Warn("stream: read loop ended", "err", err)
		}
		conn.Close()
	}
}

type assetRef struct {
	marketID string
	outcome  string
}

// tokenIndex mapea cada token de outcome cacheado a su mercado y lado.
func (s *Stream) tokenIndex() map[string]assetRef {
	tokens := make(map[string]assetRef)
	for _, m := range s.index.All() {
		if m.Status != domain.MarketOpen {
			continue
		}
		for outcome, q := range m.Outcomes {
			if q.TokenID != "" {
				tokens[q.TokenID] = assetRef{marketID: m.ID, outcome: outcome}
			}
		}
	}
	return tokens
}

func (s *Stream) connect(ctx context.Context, tokens map[string]assetRef) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: streamHandshakeTimeout}
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	assetIDs := make([]string, 0, len(tokens))
	for id := range tokens {
		assetIDs = append(assetIDs, id)
	}
	sub := map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("stream: subscribed", "assets", len(assetIDs))
	return conn, nil
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, tokens map[string]assetRef) error {
	// ReadMessage bloquea hasta el read deadline; el watcher cierra la
	// conexión cuando cae el contexto o toca resuscribirse, así el shutdown
	// no espera al deadline.
	readCtx, cancel := context.WithTimeout(ctx, streamResubscribeAfter)
	defer cancel()
	go func() {
		<-readCtx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if readCtx.Err() != nil {
				// Vencimiento de resuscripción; Run re-marca con un token
				// set fresco.
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		s.handleMessage(message, tokens)
	}
}

// handleMessage aplica eventos price_change y last_trade_price al sink. El
// canal entrega tanto eventos sueltos como arrays.
func (s *Stream) handleMessage(data []byte, tokens map[string]assetRef) {
	var events []streamEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single streamEvent
		if err := json.Unmarshal(data, &single); err != nil {
			slog.Debug("stream: unparseable message", "err", err)
			return
		}
		events = []streamEvent{single}
	}

	for _, ev := range events {
		if ev.EventType != "price_change" && ev.EventType != "last_trade_price" {
			continue
		}
		ref, ok := tokens[ev.AssetID]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price <= 0 || price >= 1 {
			continue
		}
		s.sink.UpdatePrice(ref.marketID, ref.outcome, price)
	}
}

func (s *Stream) wait(ctx context.Context, d time.Duration) {
	jitter := time.Duration(float64(d) * streamJitterPct * (rand.Float64()*2 - 1))
	select {
	case <-ctx.Done():
	case <-time.After(d + jitter):
	}
}

func (s *Stream) growBackoff() {
	s.backoff *= 2
	if s.backoff > streamMaxBackoff {
		s.backoff = streamMaxBackoff
	}
}
