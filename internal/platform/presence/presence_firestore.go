package presence

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// presenceDoc is stored at {collection}/{role}:{userId}.
type presenceDoc struct {
	Connections map[string]orders.ConnectionInfo `firestore:"connections"`
}

// FirestoreStore implements presence.Store on a Firestore collection, one
// document per identity with a map of its connections.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

var _ presence.Store = (*FirestoreStore)(nil)

// NewFirestoreStore is the constructor for the FirestoreStore.
func NewFirestoreStore(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("firestore presence collection name is required")
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestorePresence").Logger(),
	}, nil
}

func (s *FirestoreStore) doc(identity orders.Identity) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(identity.Key())
}

// MarkOnline merges the connection into the identity's document.
func (s *FirestoreStore) MarkOnline(ctx context.Context, identity orders.Identity, info orders.ConnectionInfo) error {
	data := map[string]interface{}{
		"connections": map[string]interface{}{
			info.ConnectionID: map[string]interface{}{
				"serverInstanceId": info.ServerInstanceID,
				"connectionId":     info.ConnectionID,
				"role":             string(info.Role),
				"connectedAt":      info.ConnectedAt,
			},
		},
	}
	if _, err := s.doc(identity).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set presence for %s: %w", identity.Key(), err)
	}
	return nil
}

// MarkOffline deletes the connection's entry. A missing document is fine.
func (s *FirestoreStore) MarkOffline(ctx context.Context, identity orders.Identity, connectionID string) error {
	_, err := s.doc(identity).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"connections", connectionID}, Value: firestore.Delete},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to clear presence for %s: %w", identity.Key(), err)
	}
	return nil
}

// Connections lists the identity's recorded connections, oldest first.
func (s *FirestoreStore) Connections(ctx context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error) {
	snap, err := s.doc(identity).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read presence for %s: %w", identity.Key(), err)
	}

	var doc presenceDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode presence for %s: %w", identity.Key(), err)
	}
	infos := make([]orders.ConnectionInfo, 0, len(doc.Connections))
	for _, info := range doc.Connections {
		infos = append(infos, info)
	}
	sortConnections(infos)
	return infos, nil
}

// Close closes the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
