package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-realtime-service/internal/api"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, event orders.OrderEvent) {
	m.Called(ctx, event)
}

func (m *mockPublisher) PublishNewOrder(ctx context.Context, event orders.NewOrderEvent) {
	m.Called(ctx, event)
}

type mockPresence struct{ mock.Mock }

func (m *mockPresence) MarkOnline(ctx context.Context, identity orders.Identity, info orders.ConnectionInfo) error {
	return m.Called(ctx, identity, info).Error(0)
}

func (m *mockPresence) MarkOffline(ctx context.Context, identity orders.Identity, connID string) error {
	return m.Called(ctx, identity, connID).Error(0)
}

func (m *mockPresence) Connections(ctx context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error) {
	args := m.Called(ctx, identity)
	var result []orders.ConnectionInfo
	if val, ok := args.Get(0).([]orders.ConnectionInfo); ok {
		result = val
	}
	return result, args.Error(1)
}

func (m *mockPresence) Close() error { return nil }

var testLogger = zerolog.New(io.Discard)

func newTestServer(t *testing.T, pub *mockPublisher, store *mockPresence) *httptest.Server {
	t.Helper()
	a := api.NewAPI(pub, store, testLogger)
	mux := http.NewServeMux()
	a.Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestOrderUpdateHandler(t *testing.T) {
	t.Run("Success - publishes and returns 202", func(t *testing.T) {
		pub := &mockPublisher{}
		server := newTestServer(t, pub, &mockPresence{})

		pub.On("Publish", mock.Anything, mock.MatchedBy(func(e orders.OrderEvent) bool {
			return e.OrderID == "o1" && e.Status == orders.StatusConfirmed &&
				e.CustomerID == "cust1" && e.RestaurantID == "rest1" && !e.Timestamp.IsZero()
		})).Return().Once()

		resp := postJSON(t, server.URL+"/api/events/order-update", map[string]any{
			"orderId":      "o1",
			"status":       "confirmed",
			"customerId":   "cust1",
			"restaurantId": "rest1",
		})

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		pub.AssertExpectations(t)
	})

	t.Run("Failure - invalid status returns 400", func(t *testing.T) {
		pub := &mockPublisher{}
		server := newTestServer(t, pub, &mockPresence{})

		resp := postJSON(t, server.URL+"/api/events/order-update", map[string]any{
			"orderId":      "o1",
			"status":       "teleported",
			"customerId":   "cust1",
			"restaurantId": "rest1",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("Failure - malformed JSON returns 400", func(t *testing.T) {
		pub := &mockPublisher{}
		server := newTestServer(t, pub, &mockPresence{})

		resp, err := http.Post(server.URL+"/api/events/order-update", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "invalid JSON body", body["error"])
	})

	t.Run("Failure - wrong method", func(t *testing.T) {
		server := newTestServer(t, &mockPublisher{}, &mockPresence{})

		resp, err := http.Get(server.URL + "/api/events/order-update")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestNewOrderHandler(t *testing.T) {
	t.Run("Success - defaults status to pending", func(t *testing.T) {
		pub := &mockPublisher{}
		server := newTestServer(t, pub, &mockPresence{})

		pub.On("PublishNewOrder", mock.Anything, mock.MatchedBy(func(e orders.NewOrderEvent) bool {
			return e.OrderID == "o2" && e.RestaurantID == "rest1" &&
				e.Status == orders.StatusPending && len(e.Items) == 1
		})).Return().Once()

		resp := postJSON(t, server.URL+"/api/events/new-order", map[string]any{
			"_id":          "o2",
			"restaurantId": "rest1",
			"customer":     map[string]string{"_id": "cust1", "name": "Ada"},
			"items":        []map[string]any{{"menuItem": "m1", "quantity": 2, "price": 10.99}},
			"totalAmount":  21.98,
		})

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		pub.AssertExpectations(t)
	})

	t.Run("Failure - missing restaurant returns 400", func(t *testing.T) {
		pub := &mockPublisher{}
		server := newTestServer(t, pub, &mockPresence{})

		resp := postJSON(t, server.URL+"/api/events/new-order", map[string]any{"_id": "o2"})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		pub.AssertNotCalled(t, "PublishNewOrder", mock.Anything, mock.Anything)
	})
}

func TestPresenceHandler(t *testing.T) {
	customer := orders.Identity{UserID: "cust1", Role: orders.RoleCustomer}

	t.Run("Success - online identity", func(t *testing.T) {
		store := &mockPresence{}
		server := newTestServer(t, &mockPublisher{}, store)
		conns := []orders.ConnectionInfo{{ServerInstanceID: "inst-1", ConnectionID: "c1", Role: orders.RoleCustomer, ConnectedAt: 100}}
		store.On("Connections", mock.Anything, customer).Return(conns, nil).Once()

		resp, err := http.Get(server.URL + "/api/presence/customer/cust1")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body api.PresenceResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Online)
		assert.Equal(t, conns, body.Connections)
		store.AssertExpectations(t)
	})

	t.Run("Success - offline identity has empty list", func(t *testing.T) {
		store := &mockPresence{}
		server := newTestServer(t, &mockPublisher{}, store)
		store.On("Connections", mock.Anything, customer).Return(nil, nil).Once()

		resp, err := http.Get(server.URL + "/api/presence/customer/cust1")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["online"])
		assert.Equal(t, []any{}, body["connections"])
	})

	t.Run("Failure - unknown role", func(t *testing.T) {
		server := newTestServer(t, &mockPublisher{}, &mockPresence{})

		resp, err := http.Get(server.URL + "/api/presence/courier/u1")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Failure - store error", func(t *testing.T) {
		store := &mockPresence{}
		server := newTestServer(t, &mockPublisher{}, store)
		store.On("Connections", mock.Anything, customer).Return(nil, errors.New("redis down")).Once()

		resp, err := http.Get(server.URL + "/api/presence/customer/cust1")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestCorsMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := api.CorsMiddleware([]string{"http://app.example.com"})(next)

	t.Run("allowed origin gets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "http://app.example.com")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "http://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "http://app.example.com")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
