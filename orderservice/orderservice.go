/*
File: orderservice/orderservice.go
Description: Wires the HTTP ingress API and the optional Pub/Sub order-event
consumer into a single startable service.
*/
package orderservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-order-realtime-service/internal/api"
	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/orderservice/config"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// EventConsumer is a background ingress that feeds the publisher until ctx ends.
type EventConsumer interface {
	Start(ctx context.Context) error
}

// Dependencies are the collaborators built by the entrypoint.
type Dependencies struct {
	Publisher orders.EventPublisher
	Presence  presence.Store
	// Consumer is optional.
	Consumer EventConsumer
}

// Wrapper owns the API server and the ingress consumer.
type Wrapper struct {
	server   *http.Server
	consumer EventConsumer
	logger   zerolog.Logger

	ready atomic.Bool
	addr  atomic.Value

	mu         sync.Mutex
	cancel     context.CancelFunc
	consumerWg sync.WaitGroup
}

// New creates and wires up the API service.
func New(cfg *config.AppConfig, deps Dependencies, logger zerolog.Logger) (*Wrapper, error) {
	if deps.Publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}

	w := &Wrapper{
		consumer: deps.Consumer,
		logger:   logger,
	}

	apiHandler := api.NewAPI(deps.Publisher, deps.Presence, logger.With().Str("component", "API").Logger())

	mux := http.NewServeMux()
	apiHandler.Routes(mux)
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(rw http.ResponseWriter, _ *http.Request) {
		if !w.ready.Load() {
			api.WriteJSONError(rw, http.StatusServiceUnavailable, "not ready")
			return
		}
		api.WriteJSON(rw, http.StatusOK, map[string]string{"status": "ready"})
	})

	w.server = &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           api.CorsMiddleware(cfg.AllowedOrigins)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return w, nil
}

// Handler exposes the routed handler, mainly for tests.
func (w *Wrapper) Handler() http.Handler {
	return w.server.Handler
}

// Addr returns the bound listener address once Start has begun listening.
func (w *Wrapper) Addr() string {
	if v, ok := w.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Ready reports whether the HTTP listener is active.
func (w *Wrapper) Ready() bool {
	return w.ready.Load()
}

// Start launches the consumer and then serves HTTP until Shutdown.
func (w *Wrapper) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}
	w.addr.Store(listener.Addr().String())

	if w.consumer != nil {
		consumerCtx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		w.consumerWg.Add(1)
		w.mu.Unlock()
		go func() {
			defer w.consumerWg.Done()
			if err := w.consumer.Start(consumerCtx); err != nil {
				w.logger.Error().Err(err).Msg("Order event consumer stopped with error")
			}
		}()
	}

	w.ready.Store(true)
	w.logger.Info().Str("addr", listener.Addr().String()).Msg("Service is now ready.")

	if err := w.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.ready.Store(false)
		return err
	}
	return nil
}

// Shutdown stops the consumer first, then drains the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down service components...")
	w.ready.Store(false)

	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.consumerWg.Wait()

	var finalErr error
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("HTTP server shutdown failed.")
		finalErr = err
	}

	w.logger.Info().Msg("All components shut down.")
	return finalErr
}
