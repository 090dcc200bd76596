// Command publishorderevent publishes a single order event to the order-events
// topic, the same envelope the Order Service emits. Useful for smoke-testing a
// deployment end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	psub "github.com/tinywideclouds/go-order-realtime-service/internal/platform/pubsub"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

func main() {
	project := pflag.String("project", os.Getenv("GCP_PROJECT_ID"), "GCP project id")
	topic := pflag.String("topic", "order-events", "order events topic id")
	kind := pflag.String("kind", string(orders.KindOrderUpdate), "orderUpdate or newOrder")
	orderID := pflag.String("order", "", "order id")
	status := pflag.String("status", string(orders.StatusConfirmed), "order status")
	customerID := pflag.String("customer", "", "customer id")
	restaurantID := pflag.String("restaurant", "", "restaurant id")
	total := pflag.Float64("total", 0, "order total amount")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(*project, *topic, *kind, orders.OrderEvent{
		OrderID:      *orderID,
		Status:       orders.Status(*status),
		CustomerID:   *customerID,
		RestaurantID: *restaurantID,
		TotalAmount:  *total,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		logger.Fatal().Err(err).Msg("Publish failed")
	}
	logger.Info().Str("order_id", *orderID).Str("kind", *kind).Msg("Order event published")
}

func run(project, topicID, kind string, event orders.OrderEvent) error {
	if project == "" {
		return fmt.Errorf("--project or GCP_PROJECT_ID is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	defer client.Close()

	publisher := client.Publisher(psub.ResourceName(project, topicID, psub.Pub))
	defer publisher.Stop()
	producer := psub.NewProducer(publisher)

	switch orders.EventKind(kind) {
	case orders.KindOrderUpdate:
		return producer.PublishOrderUpdate(ctx, event)
	case orders.KindNewOrder:
		return producer.PublishNewOrder(ctx, orders.NewOrderEvent{
			OrderID:      event.OrderID,
			RestaurantID: event.RestaurantID,
			Customer:     orders.CustomerSummary{ID: event.CustomerID},
			TotalAmount:  event.TotalAmount,
			Status:       event.Status,
			Timestamp:    event.Timestamp,
		})
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}
