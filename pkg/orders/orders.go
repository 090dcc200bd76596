// Package orders contains the public domain models and contracts shared between
// the realtime fan-out service and the Order Service that feeds it.
package orders

import (
	"fmt"
	"strings"
)

// Role is the kind of account a connection is authenticated as.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalises a role name received from a client.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is the (userId, role) pair bound to a connection after authentication.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Validate checks that the identity can be bound to a connection.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("identity has no user id")
	}
	if !i.Role.Valid() {
		return fmt.Errorf("identity has unknown role %q", i.Role)
	}
	return nil
}

// Key is a stable string form of the identity, e.g. "customer:u1".
func (i Identity) Key() string {
	return string(i.Role) + ":" + i.UserID
}

func (i Identity) String() string {
	return i.Key()
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusCompleted      Status = "completed"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// ConnectionInfo holds details about a live realtime connection.
// This is stored in the presence store.
type ConnectionInfo struct {
	ServerInstanceID string `json:"serverInstanceId" firestore:"serverInstanceId"`
	ConnectionID     string `json:"connectionId" firestore:"connectionId"`
	Role             Role   `json:"role" firestore:"role"`
	ConnectedAt      int64  `json:"connectedAt" firestore:"connectedAt"`
}
