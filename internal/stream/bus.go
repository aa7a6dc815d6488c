// Package stream carries engine events to connected clients over a watermill bus.
package stream

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Topic is the single topic all session events are published on.
const Topic = "session-events"

// MetadataSessionID is the message metadata key holding the target session.
const MetadataSessionID = "session_id"

// Broadcaster delivers a serialized event to the connections of a session.
type Broadcaster interface {
	Broadcast(sessionID string, data []byte)
}

// Bus is an in-process pub/sub pair plus the router that forwards events.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

// NewBus creates a bus. Publishing blocks until the forwarder acks, which keeps
// per-session event order identical to emission order.
func NewBus(logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create router")
	}
	return &Bus{Publisher: pubSub, Subscriber: pubSub, router: router}, nil
}

// Forward registers the handler that hands every event to b.
func (b *Bus) Forward(dst Broadcaster) {
	b.router.AddNoPublisherHandler("forward", Topic, b.Subscriber, func(msg *message.Message) error {
		sessionID := msg.Metadata.Get(MetadataSessionID)
		if sessionID == "" {
			log.Warn().Str("message_id", msg.UUID).Msg("dropping event without session id")
			return nil
		}
		dst.Broadcast(sessionID, msg.Payload)
		return nil
	})
}

// Run runs the router until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once the router's handlers are subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	if err := b.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
	}
	return b.router.Close()
}
