// Package feed delivers live price ticks from the Binance combined
// ticker stream. Ticks are handed to a single handler synchronously from
// one read goroutine, so consumers see them serialized in arrival order.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge/internal/domain"
)

// Handler consumes price ticks.
type Handler func(tick domain.PriceTick)

// Stream is a reconnecting subscription to the multiplexed 24h ticker
// streams of a set of symbols.
type Stream struct {
	baseURL string
	symbols []string
	handler Handler
	logger  zerolog.Logger
}

// NewStream creates a ticker stream for the given symbols.
func NewStream(baseURL string, symbols []string, handler Handler) *Stream {
	return &Stream{
		baseURL: baseURL,
		symbols: symbols,
		handler: handler,
		logger:  log.With().Str("component", "feed").Logger(),
	}
}

// URL returns the combined-stream endpoint for the tracked symbols.
func (s *Stream) URL() string {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@ticker"
	}
	return s.baseURL + "?streams=" + strings.Join(streams, "/")
}

// Run connects and consumes ticker messages until the context is
// cancelled, reconnecting with capped exponential backoff on any
// disconnect. Duplicate ticks after a reconnect are expected and safe.
func (s *Stream) Run(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL(), nil)
		if err != nil {
			s.logger.Warn().Err(err).Dur("backoff", backoff).
				Msg("failed to connect to price stream, retrying...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		s.logger.Info().Int("symbols", len(s.symbols)).Msg("price stream connected")
		backoff = time.Second

		s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() == nil {
			s.logger.Warn().Msg("price stream disconnected, reconnecting")
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("price stream read error")
			}
			return
		}

		tick, err := ParseTick(data)
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparseable stream message")
			continue
		}
		s.handler(tick)
	}
}

// combinedStreamMessage is the envelope of /stream?streams=… payloads.
type combinedStreamMessage struct {
	Stream string        `json:"stream"`
	Data   tickerPayload `json:"data"`
}

// tickerPayload is the 24h ticker event; Binance encodes numbers as strings.
type tickerPayload struct {
	EventType          string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
	High24h            string `json:"h"`
	Low24h             string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	BidPrice           string `json:"b"`
	AskPrice           string `json:"a"`
}

// ParseTick converts a combined-stream ticker message to a PriceTick.
func ParseTick(data []byte) (domain.PriceTick, error) {
	var msg combinedStreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.PriceTick{}, fmt.Errorf("unmarshal stream message: %w", err)
	}
	p := msg.Data
	if p.Symbol == "" {
		return domain.PriceTick{}, fmt.Errorf("not a ticker payload (stream %q)", msg.Stream)
	}

	var parseErr error
	tick := domain.PriceTick{
		Symbol:             p.Symbol,
		Price:              parseField("c", p.LastPrice, &parseErr),
		Bid:                parseField("b", p.BidPrice, &parseErr),
		Ask:                parseField("a", p.AskPrice, &parseErr),
		High24h:            parseField("h", p.High24h, &parseErr),
		Low24h:             parseField("l", p.Low24h, &parseErr),
		Volume:             parseField("v", p.Volume, &parseErr),
		QuoteVolume:        parseField("q", p.QuoteVolume, &parseErr),
		PriceChangePercent: parseField("P", p.PriceChangePercent, &parseErr),
		Timestamp:          time.Now(),
	}
	if parseErr != nil {
		return domain.PriceTick{}, parseErr
	}
	if p.EventTime > 0 {
		tick.Timestamp = time.Unix(0, p.EventTime*int64(time.Millisecond))
	}
	if tick.Price <= 0 {
		return domain.PriceTick{}, fmt.Errorf("ticker %s has no last price", p.Symbol)
	}
	return tick, nil
}

func parseField(name, value string, errp *error) float64 {
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil && *errp == nil {
		*errp = fmt.Errorf("parse ticker field %s: %w", name, err)
	}
	return f
}
