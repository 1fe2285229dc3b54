package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge/internal/domain"
	"forge/internal/engine"
)

const (
	// StreamName is the JetStream stream name for price ticks.
	StreamName = "FORGE_TICKS"
	// SubjectPrefix is the NATS subject prefix for tick events.
	SubjectPrefix = "forge.ticks."
	// SubjectWildcard subscribes to all tick subjects.
	SubjectWildcard = "forge.ticks.>"
	// ConsumerName is the durable consumer name.
	ConsumerName = "forge-tick-consumer"
)

// TickSink consumes validated price ticks.
type TickSink interface {
	ProcessTick(tick domain.PriceTick) engine.TickOutcome
}

// Consumer subscribes to tick events via NATS JetStream and drives the
// matching engine with them. It is the alternate feed source for replay
// and bridged deployments.
type Consumer struct {
	nc     *nats.Conn
	sink   TickSink
	logger zerolog.Logger
}

// NewConsumer creates a new NATS tick consumer.
func NewConsumer(nc *nats.Conn, sink TickSink) *Consumer {
	return &Consumer{
		nc:     nc,
		sink:   sink,
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Start begins consuming tick events. Blocks until context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	// Create or update the stream
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectWildcard},
		Storage:  jetstream.FileStorage,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	// Create durable consumer
	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.logger.Info().Msg("started consuming tick events from NATS JetStream")

	// Consume messages. The handler runs on a single dispatch goroutine,
	// so ticks reach the engine serialized in stream order.
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	// Wait for context cancellation
	<-ctx.Done()
	cc.Stop()
	c.logger.Info().Msg("stopped consuming tick events")
	return nil
}

func (c *Consumer) handleMessage(msg jetstream.Msg) {
	var event TickEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.logger.Warn().Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to unmarshal tick event, rejecting")
		// Terminate — malformed messages should not be redelivered
		msg.Term()
		return
	}

	if err := event.Validate(); err != nil {
		c.logger.Warn().Err(err).
			Str("symbol", event.Symbol).
			Str("subject", msg.Subject()).
			Msg("invalid tick event, rejecting")
		msg.Term()
		return
	}

	tick, err := event.ToDomain()
	if err != nil {
		c.logger.Warn().Err(err).
			Str("symbol", event.Symbol).
			Msg("failed to convert tick event, rejecting")
		msg.Term()
		return
	}

	outcome := c.sink.ProcessTick(tick)
	if len(outcome.Fills) > 0 || len(outcome.Liquidations) > 0 {
		c.logger.Info().
			Str("symbol", tick.Symbol).
			Float64("price", tick.Price).
			Int("fills", len(outcome.Fills)).
			Int("liquidations", len(outcome.Liquidations)).
			Msg("tick matched")
	} else {
		c.logger.Debug().
			Str("symbol", tick.Symbol).
			Float64("price", tick.Price).
			Msg("tick processed")
	}
	msg.Ack()
}

// ConnectNATS connects to NATS with retry and reconnect handling.
func ConnectNATS(urls string, credsFile, creds string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("forge"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	// Add credentials if configured
	if creds != "" {
		tmpFile, err := os.CreateTemp("", "nats-creds-*.creds")
		if err != nil {
			return nil, fmt.Errorf("create temp credentials file: %w", err)
		}
		if _, err := tmpFile.WriteString(creds); err != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
			return nil, fmt.Errorf("write credentials: %w", err)
		}
		tmpFile.Close()
		opts = append(opts, nats.UserCredentials(tmpFile.Name()))
	} else if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}

	// Retry connection
	var nc *nats.Conn
	var err error
	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		nc, err = nats.Connect(urls, opts...)
		if err == nil {
			log.Info().Str("url", nc.ConnectedUrl()).Int("attempt", attempt).Msg("connected to NATS")
			return nc, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("failed to connect to NATS, retrying...")
		time.Sleep(backoff)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
