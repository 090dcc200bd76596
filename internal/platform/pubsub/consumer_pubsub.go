/*
File: internal/platform/pubsub/consumer_pubsub.go
Description: Ingress adapter. Receives EventEnvelopes from the
order-events subscription and hands them to the event publisher.
*/
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// pubsubSubscriber defines the interface for the underlying pubsub.Subscriber.
type pubsubSubscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer feeds order events from a subscription into an EventPublisher.
// Every message is acked: realtime delivery is best-effort, so a malformed
// or undeliverable event is logged and dropped rather than redelivered.
type Consumer struct {
	subscriber pubsubSubscriber
	publisher  orders.EventPublisher
	logger     zerolog.Logger
}

// NewConsumer is the constructor for the Pub/Sub consumer.
func NewConsumer(subscriber pubsubSubscriber, publisher orders.EventPublisher, logger zerolog.Logger) (*Consumer, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	return &Consumer{
		subscriber: subscriber,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Order event consumer starting...")
	err := c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.handle(ctx, msg)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("order event consumer failed: %w", err)
	}
	c.logger.Info().Msg("Order event consumer stopped.")
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) {
	log := c.logger.With().Str("msg_id", msg.ID).Logger()

	var envelope orders.EventEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed order event.")
		return
	}
	if err := envelope.Validate(); err != nil {
		log.Warn().Err(err).Str("kind", string(envelope.Kind)).Msg("Dropping invalid order event.")
		return
	}

	switch envelope.Kind {
	case orders.KindOrderUpdate:
		event := *envelope.OrderUpdate
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		c.publisher.Publish(ctx, event)
	case orders.KindNewOrder:
		event := *envelope.NewOrder
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if event.Status == "" {
			event.Status = orders.StatusPending
		}
		c.publisher.PublishNewOrder(ctx, event)
	}
	log.Debug().Str("kind", string(envelope.Kind)).Msg("Order event dispatched.")
}
