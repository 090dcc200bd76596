/*
File: internal/api/order_handlers.go
Description: HTTP ingress used by the Order Service to announce order
lifecycle events, plus a read-only presence lookup.
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// maxBodyBytes caps ingress request bodies.
const maxBodyBytes = 1 << 20

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	publisher orders.EventPublisher
	presence  presence.Store
	logger    zerolog.Logger
}

// NewAPI creates a new, stateless API handler. A nil presence store is
// replaced by presence.Nop.
func NewAPI(publisher orders.EventPublisher, store presence.Store, logger zerolog.Logger) *API {
	if store == nil {
		store = presence.Nop{}
	}
	return &API{
		publisher: publisher,
		presence:  store,
		logger:    logger,
	}
}

// Routes registers every handler on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events/order-update", a.OrderUpdateHandler)
	mux.HandleFunc("POST /api/events/new-order", a.NewOrderHandler)
	mux.HandleFunc("GET /api/presence/{role}/{userId}", a.PresenceHandler)
}

// OrderUpdateHandler fans a status change out to the order's customer and restaurant.
func (a *API) OrderUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var event orders.OrderEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to decode order update")
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := event.Validate(); err != nil {
		a.logger.Warn().Err(err).Str("order_id", event.OrderID).Msg("Rejected invalid order update")
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	a.publisher.Publish(r.Context(), event)

	a.logger.Debug().Str("order_id", event.OrderID).Str("status", string(event.Status)).Msg("Order update accepted")
	WriteJSON(w, http.StatusAccepted, map[string]string{"orderId": event.OrderID})
}

// NewOrderHandler announces a freshly placed order to its restaurant.
func (a *API) NewOrderHandler(w http.ResponseWriter, r *http.Request) {
	var event orders.NewOrderEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to decode new order")
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := event.Validate(); err != nil {
		a.logger.Warn().Err(err).Str("order_id", event.OrderID).Msg("Rejected invalid new order")
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = orders.StatusPending
	}

	a.publisher.PublishNewOrder(r.Context(), event)

	a.logger.Debug().Str("order_id", event.OrderID).Str("restaurant_id", event.RestaurantID).Msg("New order accepted")
	WriteJSON(w, http.StatusAccepted, map[string]string{"orderId": event.OrderID})
}

// PresenceResponse is the body of GET /api/presence/{role}/{userId}.
type PresenceResponse struct {
	UserID      string                  `json:"userId"`
	Role        orders.Role             `json:"role"`
	Online      bool                    `json:"online"`
	Connections []orders.ConnectionInfo `json:"connections"`
}

// PresenceHandler reports the live connections of one identity.
func (a *API) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	role, err := orders.ParseRole(r.PathValue("role"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	identity := orders.Identity{UserID: r.PathValue("userId"), Role: role}
	if err := identity.Validate(); err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conns, err := a.presence.Connections(r.Context(), identity)
	if err != nil {
		a.logger.Error().Err(err).Str("identity", identity.String()).Msg("Failed to read presence")
		WriteJSONError(w, http.StatusInternalServerError, "failed to read presence")
		return
	}
	if conns == nil {
		conns = []orders.ConnectionInfo{}
	}

	WriteJSON(w, http.StatusOK, PresenceResponse{
		UserID:      identity.UserID,
		Role:        identity.Role,
		Online:      len(conns) > 0,
		Connections: conns,
	})
}
