package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

func TestAuthenticatePayload_Identity(t *testing.T) {
	testCases := []struct {
		name     string
		payload  AuthenticatePayload
		expected orders.Identity
		wantErr  bool
	}{
		{"role field", AuthenticatePayload{UserID: "u1", Role: "customer"}, orders.Identity{UserID: "u1", Role: orders.RoleCustomer}, false},
		{"legacy userRole", AuthenticatePayload{UserID: "r1", UserRole: "Restaurant"}, orders.Identity{UserID: "r1", Role: orders.RoleRestaurant}, false},
		{"role wins over userRole", AuthenticatePayload{UserID: "a1", Role: "admin", UserRole: "customer"}, orders.Identity{UserID: "a1", Role: orders.RoleAdmin}, false},
		{"no role", AuthenticatePayload{UserID: "u1"}, orders.Identity{}, true},
		{"blank user", AuthenticatePayload{UserID: "  ", Role: "customer"}, orders.Identity{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			identity, err := tc.payload.Identity()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, identity)
		})
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	raw, err := EncodeFrame(EventOrderUpdate, orders.OrderUpdatePayload{OrderID: "o1", Status: orders.StatusReady})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"orderUpdate"`)
	assert.Contains(t, string(raw), `"orderId":"o1"`)
	assert.NotContains(t, string(raw), `"customer"`, "absent audiences are omitted")

	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, EventOrderUpdate, f.Event)
}
