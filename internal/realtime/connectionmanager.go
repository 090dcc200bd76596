/*
File: internal/realtime/connectionmanager.go
Description: WebSocket transport. Accepts connections, assigns ids,
and drives each connection's Session from its read loop.
*/
// Package realtime pushes order lifecycle events to connected clients.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// Options tunes the WebSocket transport.
type Options struct {
	AllowedOrigins  []string
	SendBufferSize  int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	AuthTimeout     time.Duration
	MaxMessageBytes int64
	ReauthPolicy    ReauthPolicy
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		SendBufferSize:  64,
		WriteTimeout:    10 * time.Second,
		PingInterval:    25 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: 64 * 1024,
		ReauthPolicy:    ReauthReplace,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = d.SendBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	// Pings must arrive before the read deadline they extend.
	if o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.ReauthPolicy == "" {
		o.ReauthPolicy = d.ReauthPolicy
	}
	return o
}

// ConnectionManager accepts WebSocket connections and runs the session
// protocol for each one. It runs its own dedicated HTTP server.
type ConnectionManager struct {
	server     *http.Server
	upgrader   websocket.Upgrader
	registry   *Registry
	publisher  orders.EventPublisher
	presence   presence.Store
	opts       Options
	clients    sync.Map // map[string]*wsClient
	wg         sync.WaitGroup
	logger     zerolog.Logger
	instanceID string
}

// NewConnectionManager creates and wires up a new WebSocket connection manager.
func NewConnectionManager(
	port string,
	registry *Registry,
	publisher orders.EventPublisher,
	presenceStore presence.Store,
	opts Options,
	logger zerolog.Logger,
) (*ConnectionManager, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if presenceStore == nil {
		presenceStore = presence.Nop{}
	}

	instanceID := uuid.NewString()
	cmLogger := logger.With().Str("component", "ConnectionManager").Str("instance", instanceID).Logger()
	opts = opts.withDefaults()

	cm := &ConnectionManager{
		registry:   registry,
		publisher:  publisher,
		presence:   presenceStore,
		opts:       opts,
		logger:     cmLogger,
		instanceID: instanceID,
	}
	cm.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cm.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", cm.connectHandler)
	cm.server = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return cm, nil
}

// InstanceID identifies this server process in presence records.
func (cm *ConnectionManager) InstanceID() string { return cm.instanceID }

// Handler exposes the HTTP handler, mainly for httptest.
func (cm *ConnectionManager) Handler() http.Handler { return cm.server.Handler }

// Start runs the HTTP server for WebSocket connections.
func (cm *ConnectionManager) Start(_ context.Context) error {
	cm.logger.Info().Str("addr", cm.server.Addr).Msg("WebSocket server starting...")
	if err := cm.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, sends a close frame to every live
// connection and waits for their sessions to close.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.logger.Info().Msg("Shutting down WebSocket service...")
	var finalErr error

	if err := cm.server.Shutdown(ctx); err != nil {
		cm.logger.Error().Err(err).Msg("WebSocket server shutdown failed.")
		finalErr = err
	}

	cm.clients.Range(func(_, value any) bool {
		value.(*wsClient).shutdown(websocket.CloseGoingAway, "server shutting down")
		return true
	})

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		cm.logger.Warn().Msg("Timed out waiting for connections to close.")
		if finalErr == nil {
			finalErr = ctx.Err()
		}
	}

	cm.logger.Info().Msg("WebSocket service shut down.")
	return finalErr
}

func (cm *ConnectionManager) checkOrigin(r *http.Request) bool {
	if len(cm.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range cm.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	return false
}

// connectHandler upgrades a new HTTP request to a WebSocket and manages its lifecycle.
func (cm *ConnectionManager) connectHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	cm.wg.Add(1)
	defer cm.wg.Done()

	connID := uuid.NewString()
	connLogger := cm.logger.With().Str("conn", connID).Logger()
	client := newWSClient(connID, conn, cm.opts.SendBufferSize, cm.opts.WriteTimeout, cm.opts.PingInterval, connLogger)

	cm.registry.Register(connID, client)
	cm.clients.Store(connID, client)

	session := NewSession(connID, SessionConfig{
		Registry:   cm.registry,
		Publisher:  cm.publisher,
		Presence:   cm.presence,
		Policy:     cm.opts.ReauthPolicy,
		InstanceID: cm.instanceID,
	}, cm.logger)

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		session.Close(closeCtx)
		client.shutdown(websocket.CloseNormalClosure, "")
		cm.clients.Delete(connID)
	}()

	go client.writePump()

	if cm.opts.AuthTimeout > 0 {
		timer := time.AfterFunc(cm.opts.AuthTimeout, func() {
			if session.State() == StateUnauthenticated {
				connLogger.Info().Dur("timeout", cm.opts.AuthTimeout).Msg("Closing unauthenticated connection.")
				client.shutdown(websocket.ClosePolicyViolation, "authentication timeout")
			}
		})
		defer timer.Stop()
	}

	conn.SetReadLimit(cm.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cm.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cm.opts.PongWait))
	})

	connLogger.Info().Str("remote", r.RemoteAddr).Msg("Client connected via WebSocket.")

	ctx := context.WithoutCancel(r.Context())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				connLogger.Debug().Err(err).Msg("Read loop ended.")
			}
			return
		}
		if err := session.HandleFrame(ctx, data); err != nil {
			session.logFrameError(err)
		}
	}
}
