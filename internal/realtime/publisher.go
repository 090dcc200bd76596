/*
File: internal/realtime/publisher.go
Description: The single entry point that turns order events into
deliveries on the connection registry.
*/
package realtime

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

const tracerName = "github.com/tinywideclouds/go-order-realtime-service/internal/realtime"

// Publisher fans order events out to every connection subscribed to the
// event's topics. It implements orders.EventPublisher.
type Publisher struct {
	registry *Registry
	tracer   trace.Tracer
	logger   zerolog.Logger
}

var _ orders.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher that delivers through registry.
func NewPublisher(registry *Registry, logger zerolog.Logger) *Publisher {
	return &Publisher{
		registry: registry,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With().Str("component", "Publisher").Logger(),
	}
}

// Publish sends an orderUpdate frame to the customer and restaurant of the order.
func (p *Publisher) Publish(ctx context.Context, event orders.OrderEvent) {
	ctx, span := p.tracer.Start(ctx, "realtime.Publish", trace.WithAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("order.status", string(event.Status)),
	))
	defer span.End()

	frame, err := EncodeFrame(EventOrderUpdate, event.Payload())
	if err != nil {
		p.logger.Error().Err(err).Str("order", event.OrderID).Msg("Failed to encode order update.")
		return
	}
	delivered := p.fanOut(ctx, TopicsForEvent(event), frame)
	span.SetAttributes(attribute.Int("fanout.delivered", delivered))

	p.logger.Debug().Str("order", event.OrderID).Str("status", string(event.Status)).
		Int("delivered", delivered).Msg("Order update published.")
}

// PublishNewOrder sends a newOrder frame to the owning restaurant.
func (p *Publisher) PublishNewOrder(ctx context.Context, event orders.NewOrderEvent) {
	ctx, span := p.tracer.Start(ctx, "realtime.PublishNewOrder", trace.WithAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("order.restaurant", event.RestaurantID),
	))
	defer span.End()

	frame, err := EncodeFrame(EventNewOrder, event.Payload())
	if err != nil {
		p.logger.Error().Err(err).Str("order", event.OrderID).Msg("Failed to encode new order.")
		return
	}
	delivered := p.fanOut(ctx, TopicsForNewOrder(event), frame)
	span.SetAttributes(attribute.Int("fanout.delivered", delivered))

	p.logger.Debug().Str("order", event.OrderID).Str("restaurant", event.RestaurantID).
		Int("delivered", delivered).Msg("New order published.")
}

// fanOut delivers frame once to each distinct subscriber of topics. A failed
// send is logged and skipped; it never stops the loop.
func (p *Publisher) fanOut(ctx context.Context, topics []string, frame []byte) int {
	seen := make(map[string]struct{})
	delivered := 0
	for _, topic := range topics {
		for _, connID := range p.registry.SubscribersOf(topic) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}

			if err := p.registry.Deliver(connID, frame); err != nil {
				derr := &DeliveryError{ConnectionID: connID, Topic: topic, Err: err}
				p.logger.Warn().Err(derr).Str("conn", connID).Str("topic", topic).Msg("Delivery failed.")
				trace.SpanFromContext(ctx).AddEvent("delivery failed", trace.WithAttributes(
					attribute.String("conn", connID),
				))
				continue
			}
			delivered++
		}
	}
	return delivered
}
