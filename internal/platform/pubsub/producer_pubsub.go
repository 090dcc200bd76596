/*
File: internal/platform/pubsub/producer_pubsub.go
Description: Order Service side adapter. Serializes order events into
EventEnvelopes and publishes them to the order-events topic.
*/
// Package pubsub contains concrete adapters for interacting with Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// pubsubTopicClient defines the interface for the underlying pubsub.Publisher.
// This allows us to use a mock for testing.
type pubsubTopicClient interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Producer publishes order events to a Pub/Sub topic for the realtime
// service to consume.
type Producer struct {
	topic pubsubTopicClient
}

// NewProducer is the constructor for the Pub/Sub producer.
func NewProducer(topic pubsubTopicClient) *Producer {
	return &Producer{
		topic: topic,
	}
}

// PublishOrderUpdate publishes a status change.
func (p *Producer) PublishOrderUpdate(ctx context.Context, event orders.OrderEvent) error {
	return p.publish(ctx, orders.EventEnvelope{Kind: orders.KindOrderUpdate, OrderUpdate: &event}, event.OrderID)
}

// PublishNewOrder publishes an order creation.
func (p *Producer) PublishNewOrder(ctx context.Context, event orders.NewOrderEvent) error {
	return p.publish(ctx, orders.EventEnvelope{Kind: orders.KindNewOrder, NewOrder: &event}, event.OrderID)
}

func (p *Producer) publish(ctx context.Context, envelope orders.EventEnvelope, orderID string) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid %s event: %w", envelope.Kind, err)
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", envelope.Kind, err)
	}

	message := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":     string(envelope.Kind),
			"order_id": orderID,
		},
	}

	// Publish the message and wait for the result.
	result := p.topic.Publish(ctx, message)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
