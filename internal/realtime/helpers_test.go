package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// --- Fakes & Mocks ---

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event orders.OrderEvent) {
	m.Called(ctx, event)
}

func (m *mockPublisher) PublishNewOrder(ctx context.Context, event orders.NewOrderEvent) {
	m.Called(ctx, event)
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) MarkOnline(ctx context.Context, identity orders.Identity, info orders.ConnectionInfo) error {
	args := m.Called(ctx, identity, info)
	return args.Error(0)
}

func (m *mockPresence) MarkOffline(ctx context.Context, identity orders.Identity, connectionID string) error {
	args := m.Called(ctx, identity, connectionID)
	return args.Error(0)
}

func (m *mockPresence) Connections(ctx context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error) {
	args := m.Called(ctx, identity)
	var result []orders.ConnectionInfo
	if v, ok := args.Get(0).([]orders.ConnectionInfo); ok {
		result = v
	}
	return result, args.Error(1)
}

func (m *mockPresence) Close() error {
	return m.Called().Error(0)
}

// decodeFrames unpacks recorded frames for assertions.
func decodeFrames(t *testing.T, raw [][]byte) []Frame {
	t.Helper()
	frames := make([]Frame, 0, len(raw))
	for _, r := range raw {
		f, err := DecodeFrame(r)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

func decodeOrderUpdate(t *testing.T, f Frame) orders.OrderUpdatePayload {
	t.Helper()
	require.Equal(t, EventOrderUpdate, f.Event)
	var p orders.OrderUpdatePayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p
}

var (
	customer1   = orders.Identity{UserID: "cust1", Role: orders.RoleCustomer}
	restaurant1 = orders.Identity{UserID: "rest1", Role: orders.RoleRestaurant}
	admin1      = orders.Identity{UserID: "a1", Role: orders.RoleAdmin}
)

func confirmedEvent() orders.OrderEvent {
	return orders.OrderEvent{
		OrderID:      "o1",
		Status:       orders.StatusConfirmed,
		CustomerID:   "cust1",
		RestaurantID: "rest1",
		TotalAmount:  21.98,
	}
}
