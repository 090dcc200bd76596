package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// Event names carried in the "event" field of a frame.
const (
	EventAuthenticate      = "authenticate"
	EventUpdateOrderStatus = "updateOrderStatus"
	EventNewOrder          = "newOrder"
	EventOrderUpdate       = "orderUpdate"
)

// Frame is the JSON envelope of every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals data under the given event name.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	out, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}
	return out, nil
}

// DecodeFrame parses an inbound frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("malformed frame: missing event name")
	}
	return f, nil
}

// AuthenticatePayload is sent by a client to bind its identity. Older clients
// send the role as "userRole".
type AuthenticatePayload struct {
	UserID   string `json:"userId"`
	Role     string `json:"role,omitempty"`
	UserRole string `json:"userRole,omitempty"`
}

// Identity validates the payload. Errors wrap ErrInvalidIdentity.
func (p AuthenticatePayload) Identity() (orders.Identity, error) {
	roleName := p.Role
	if roleName == "" {
		roleName = p.UserRole
	}
	role, err := orders.ParseRole(roleName)
	if err != nil {
		return orders.Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	identity := orders.Identity{UserID: p.UserID, Role: role}
	if err := identity.Validate(); err != nil {
		return orders.Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return identity, nil
}

// UpdateOrderStatusPayload is a client's request to relay a status change.
type UpdateOrderStatusPayload struct {
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	CustomerID   string `json:"customerId,omitempty"`
	RestaurantID string `json:"restaurantId,omitempty"`
}
