package ingest

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge/internal/engine"
)

// EventSubjectPrefix is the NATS subject prefix for engine events.
const EventSubjectPrefix = "forge.events."

// Publisher fans engine events (fills, liquidations, cancellations,
// killswitch trips) out to NATS so external consumers can react to every
// state change without polling. It implements engine.Notifier.
type Publisher struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewPublisher creates an engine event publisher.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{
		nc:     nc,
		logger: log.With().Str("component", "publisher").Logger(),
	}
}

// Notify publishes one engine event to forge.events.<type>.
func (p *Publisher) Notify(evt engine.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error().Err(err).Str("type", string(evt.Type)).
			Msg("failed to marshal engine event")
		return
	}

	subject := EventSubjectPrefix + string(evt.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).
			Msg("failed to publish engine event")
	}
}
