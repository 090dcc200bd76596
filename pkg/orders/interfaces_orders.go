package orders

import "context"

// EventPublisher is the whole surface the realtime layer exposes to the Order
// Service. Delivery is best-effort: neither method reports per-recipient
// failures, and a missed event is recovered by the client re-reading the order.
type EventPublisher interface {
	// Publish fans a status change out to the customer and restaurant topics.
	Publish(ctx context.Context, event OrderEvent)

	// PublishNewOrder notifies the owning restaurant that an order was created.
	PublishNewOrder(ctx context.Context, event NewOrderEvent)
}
