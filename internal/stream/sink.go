package stream

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/assistant/internal/protocol"
)

// Presence reports whether a session currently has a client attached.
type Presence interface {
	HasActiveConnections(sessionID string) bool
}

// Sink publishes outbound protocol messages on the bus.
type Sink struct {
	publisher message.Publisher
	presence  Presence
}

// NewSink creates a sink publishing to p. Connected delegates to presence.
func NewSink(p message.Publisher, presence Presence) *Sink {
	return &Sink{publisher: p, presence: presence}
}

// Publish serializes msg and publishes it for sessionID.
func (s *Sink) Publish(ctx context.Context, sessionID string, msg protocol.Outbound) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	m := message.NewMessage(watermill.NewUUID(), payload)
	m.Metadata.Set(MetadataSessionID, sessionID)
	m.SetContext(ctx)
	if err := s.publisher.Publish(Topic, m); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}
	log.Trace().Str("session_id", sessionID).Str("type", msg.MessageType()).Msg("published event")
	return nil
}

// Connected reports whether the session has an attached client.
func (s *Sink) Connected(sessionID string) bool {
	return s.presence.HasActiveConnections(sessionID)
}
