/*
File: internal/realtime/session.go
Description: Per-connection protocol state machine:
UNAUTHENTICATED -> AUTHENTICATED -> CLOSED.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ReauthPolicy decides what happens to existing subscriptions when a
// connection authenticates again.
type ReauthPolicy string

const (
	// ReauthReplace drops every subscription before subscribing the new identity's topics.
	ReauthReplace ReauthPolicy = "replace"
	// ReauthAdditive keeps previous subscriptions and adds the new identity's topics.
	ReauthAdditive ReauthPolicy = "additive"
)

// ParseReauthPolicy validates a configured policy name. Empty means replace.
func ParseReauthPolicy(s string) (ReauthPolicy, error) {
	switch ReauthPolicy(s) {
	case "", ReauthReplace:
		return ReauthReplace, nil
	case ReauthAdditive:
		return ReauthAdditive, nil
	}
	return "", fmt.Errorf("invalid reauth policy %q (must be 'replace' or 'additive')", s)
}

// SessionConfig holds the collaborators shared by every session.
type SessionConfig struct {
	Registry   *Registry
	Publisher  orders.EventPublisher
	Presence   presence.Store
	Policy     ReauthPolicy
	InstanceID string
}

// Session drives one connection through the protocol. Its methods may be
// called from the read loop and from the auth timer concurrently.
type Session struct {
	id     string
	cfg    SessionConfig
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	identity orders.Identity
	// online holds every identity marked online for this connection. Under
	// ReauthAdditive it can hold more than one.
	online map[orders.Identity]struct{}
}

// NewSession creates a session for a connection already registered in cfg.Registry.
func NewSession(connectionID string, cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.Presence == nil {
		cfg.Presence = presence.Nop{}
	}
	if cfg.Policy == "" {
		cfg.Policy = ReauthReplace
	}
	return &Session{
		id:     connectionID,
		cfg:    cfg,
		logger: logger.With().Str("conn", connectionID).Logger(),
		now:    time.Now,
		state:  StateUnauthenticated,
		online: make(map[orders.Identity]struct{}),
	}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound identity, if any.
func (s *Session) Identity() (orders.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.state == StateAuthenticated
}

// HandleFrame decodes one inbound frame and applies it. Frames received after
// close are ignored.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) error {
	if s.State() == StateClosed {
		s.logger.Debug().Msg("Ignoring frame on closed session.")
		return ErrSessionClosed
	}

	frame, err := DecodeFrame(raw)
	if err != nil {
		return err
	}

	switch frame.Event {
	case EventAuthenticate:
		var p AuthenticatePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		identity, err := p.Identity()
		if err != nil {
			return err
		}
		return s.Authenticate(ctx, identity)

	case EventUpdateOrderStatus:
		var p UpdateOrderStatusPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		s.relayStatus(ctx, p)
		return nil

	case EventNewOrder:
		var event orders.NewOrderEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = s.now()
		}
		s.logger.Debug().Str("order", event.OrderID).Str("restaurant", event.RestaurantID).Msg("Relaying new order from client.")
		s.cfg.Publisher.PublishNewOrder(ctx, event)
		return nil

	default:
		return fmt.Errorf("unsupported event %q", frame.Event)
	}
}

// Authenticate binds identity to the connection and subscribes it to the
// identity's topics. Calling it again re-binds; under ReauthReplace the old
// subscriptions are swapped for the new ones in one registry step. Presence
// is written after the session lock is released.
func (s *Session) Authenticate(ctx context.Context, identity orders.Identity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	wasAuthed := s.state == StateAuthenticated

	if err := s.cfg.Registry.BindIdentity(s.id, identity); err != nil {
		s.mu.Unlock()
		return err
	}
	topics := TopicsForIdentity(identity)
	var err error
	if wasAuthed && s.cfg.Policy == ReauthReplace {
		err = s.cfg.Registry.Resubscribe(s.id, topics)
	} else {
		err = s.cfg.Registry.Subscribe(s.id, topics)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.identity = identity
	s.state = StateAuthenticated

	var stale []orders.Identity
	if s.cfg.Policy == ReauthReplace {
		for id := range s.online {
			if id != identity {
				stale = append(stale, id)
				delete(s.online, id)
			}
		}
	}
	s.online[identity] = struct{}{}
	s.mu.Unlock()

	for _, id := range stale {
		if err := s.cfg.Presence.MarkOffline(ctx, id, s.id); err != nil {
			s.logger.Warn().Err(err).Str("user", id.Key()).Msg("Failed to clear previous presence.")
		}
	}
	info := orders.ConnectionInfo{
		ServerInstanceID: s.cfg.InstanceID,
		ConnectionID:     s.id,
		Role:             identity.Role,
		ConnectedAt:      s.now().Unix(),
	}
	if err := s.cfg.Presence.MarkOnline(ctx, identity, info); err != nil {
		s.logger.Warn().Err(err).Str("user", identity.Key()).Msg("Failed to set presence.")
	}
	// A Close that ran while MarkOnline was in flight may have cleared
	// presence before it was written.
	if s.State() == StateClosed {
		if err := s.cfg.Presence.MarkOffline(ctx, identity, s.id); err != nil {
			s.logger.Warn().Err(err).Str("user", identity.Key()).Msg("Failed to clear presence.")
		}
	}

	s.logger.Info().Str("user", identity.UserID).Str("role", string(identity.Role)).
		Strs("topics", topics).Bool("reauth", wasAuthed).Msg("Connection authenticated.")
	return nil
}

// relayStatus forwards a client-sent status change. The sender is not checked
// against the order; the Order Service owns that authorization.
func (s *Session) relayStatus(ctx context.Context, p UpdateOrderStatusPayload) {
	event := orders.OrderEvent{
		OrderID:      p.OrderID,
		Status:       orders.Status(p.Status),
		CustomerID:   p.CustomerID,
		RestaurantID: p.RestaurantID,
		Timestamp:    s.now(),
	}
	s.logger.Debug().Str("order", event.OrderID).Str("status", p.Status).Msg("Relaying order status from client.")
	s.cfg.Publisher.Publish(ctx, event)
}

// Close moves the session to CLOSED, removes the connection from the
// registry and marks every identity it bound offline. It is safe to call
// more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasAuthed := s.state == StateAuthenticated
	online := make([]orders.Identity, 0, len(s.online))
	for id := range s.online {
		online = append(online, id)
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.cfg.Registry.Unregister(s.id)

	for _, id := range online {
		if err := s.cfg.Presence.MarkOffline(ctx, id, s.id); err != nil {
			s.logger.Warn().Err(err).Str("user", id.Key()).Msg("Failed to clear presence.")
		}
	}
	s.logger.Info().Bool("authenticated", wasAuthed).Int("identities", len(online)).Msg("Connection closed.")
}

// logFrameError records a recovered protocol error; none reach the client.
func (s *Session) logFrameError(err error) {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return
	case errors.Is(err, ErrInvalidIdentity):
		s.logger.Warn().Err(err).Msg("Rejected authenticate; connection stays unauthenticated.")
	case errors.Is(err, ErrUnknownConnection):
		s.logger.Warn().Err(err).Msg("Connection vanished from registry.")
	default:
		s.logger.Warn().Err(err).Msg("Dropped inbound frame.")
	}
}
