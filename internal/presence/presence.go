// Package presence defines where the service records which identities
// currently hold a live realtime connection.
package presence

import (
	"context"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// Store records online identities. An identity may hold several connections
// and stays online until the last one is marked offline.
type Store interface {
	// MarkOnline records one live connection of the identity.
	MarkOnline(ctx context.Context, identity orders.Identity, info orders.ConnectionInfo) error

	// MarkOffline removes one connection of the identity. Removing a
	// connection that is not recorded is not an error.
	MarkOffline(ctx context.Context, identity orders.Identity, connectionID string) error

	// Connections returns the recorded connections of the identity.
	Connections(ctx context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error)

	Close() error
}

// Nop is a Store that records nothing. It is used when presence is disabled.
type Nop struct{}

func (Nop) MarkOnline(context.Context, orders.Identity, orders.ConnectionInfo) error { return nil }
func (Nop) MarkOffline(context.Context, orders.Identity, string) error                { return nil }
func (Nop) Connections(context.Context, orders.Identity) ([]orders.ConnectionInfo, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
