package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConnection is returned when an operation names a connection id
	// that was never registered or has already been removed.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrInvalidIdentity is returned when an authenticate payload cannot be
	// turned into a usable identity.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrSessionClosed is returned by session operations after the connection closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrConnectionClosed is returned by a Sender whose transport has gone away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a slow client has not drained its outbound buffer.
	ErrSendBufferFull = errors.New("send buffer full")
)

// DeliveryError records a failed send to one subscriber during a fan-out.
type DeliveryError struct {
	ConnectionID string
	Topic        string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to connection %s on topic %s failed: %v", e.ConnectionID, e.Topic, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
