package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PS is a type for Pub/Sub resource types (Topic or Subscription).
type PS string

const (
	// Sub identifies a subscription resource.
	Sub PS = "subscriptions"
	// Pub identifies a topic resource.
	Pub PS = "topics"
)

// ResourceName formats a short ID into a full GCP resource name.
func ResourceName(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}

// EnsureTopicAndSubscription creates the topic and subscription if they don't already exist.
// Both names are full resource names.
func EnsureTopicAndSubscription(ctx context.Context, client *pubsub.Client, topicName, subName string, logger zerolog.Logger) error {
	logger.Debug().Str("topic", topicName).Msg("Ensuring topic exists")
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("could not create topic %s: %w", topicName, err)
		}
		logger.Debug().Str("topic", topicName).Msg("Topic already exists, skipping creation")
	}

	logger.Debug().Str("sub", subName).Str("topic", topicName).Msg("Ensuring subscription exists")
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
	})
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("could not create subscription %s: %w", subName, err)
		}
		logger.Debug().Str("sub", subName).Msg("Subscription already exists, skipping creation")
	}
	return nil
}
