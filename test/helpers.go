// Package test provides public test helpers for setting up end-to-end and
// integration tests for the order realtime service.
package test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tinywideclouds/go-order-realtime-service/internal/platform/presence"
	psub "github.com/tinywideclouds/go-order-realtime-service/internal/platform/pubsub"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// NewPstestClient starts an in-memory Pub/Sub server and returns a client
// with topicID and subID already created.
func NewPstestClient(t *testing.T, projectID, topicID, subID string) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, psub.EnsureTopicAndSubscription(ctx, client,
		psub.ResourceName(projectID, topicID, psub.Pub),
		psub.ResourceName(projectID, subID, psub.Sub),
		zerolog.Nop(),
	))
	return client
}

// NewTestConsumer wires a subscription into publisher.
func NewTestConsumer(t *testing.T, client *pubsub.Client, projectID, subID string, publisher orders.EventPublisher, logger zerolog.Logger) *psub.Consumer {
	t.Helper()
	consumer, err := psub.NewConsumer(client.Subscriber(psub.ResourceName(projectID, subID, psub.Sub)), publisher, logger)
	require.NoError(t, err)
	return consumer
}

// NewTestProducer returns a Producer for topicID, stopped on cleanup.
func NewTestProducer(t *testing.T, client *pubsub.Client, projectID, topicID string) *psub.Producer {
	t.Helper()
	publisher := client.Publisher(psub.ResourceName(projectID, topicID, psub.Pub))
	t.Cleanup(publisher.Stop)
	return psub.NewProducer(publisher)
}

// NewTestRedisPresence returns a Redis presence store backed by miniredis.
func NewTestRedisPresence(t *testing.T) (*presence.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := presence.NewRedisStore(rdb, time.Hour, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// WireFrame mirrors the JSON envelope pushed to WebSocket clients.
type WireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DialAndAuthenticate opens a WebSocket to the /connect endpoint of baseURL
// and sends an authenticate frame for identity.
func DialAndAuthenticate(t *testing.T, baseURL string, identity orders.Identity) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/connect"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	payload, err := json.Marshal(map[string]any{"event": "authenticate", "data": identity})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	return conn
}

// ReadFrame reads one frame or fails the test after timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) WireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame WireFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}
