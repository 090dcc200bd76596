package orders

import (
	"errors"
	"fmt"
	"time"
)

// OrderEvent describes a status change of an existing order. It is produced by
// the Order Service and consumed once by the event publisher.
type OrderEvent struct {
	OrderID      string    `json:"orderId"`
	Status       Status    `json:"status"`
	CustomerID   string    `json:"customerId"`
	RestaurantID string    `json:"restaurantId"`
	TotalAmount  float64   `json:"totalAmount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Validate checks what the Order Service must guarantee: both audiences
// are always named and the status is known.
func (e OrderEvent) Validate() error {
	var errs []error
	if e.OrderID == "" {
		errs = append(errs, errors.New("orderId is required"))
	}
	if e.CustomerID == "" {
		errs = append(errs, errors.New("customerId is required"))
	}
	if e.RestaurantID == "" {
		errs = append(errs, errors.New("restaurantId is required"))
	}
	if !e.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", e.Status))
	}
	return errors.Join(errs...)
}

// Payload shapes the event into the orderUpdate wire message.
func (e OrderEvent) Payload() OrderUpdatePayload {
	return OrderUpdatePayload{
		OrderID:     e.OrderID,
		Status:      e.Status,
		Customer:    e.CustomerID,
		Restaurant:  e.RestaurantID,
		TotalAmount: e.TotalAmount,
		Timestamp:   e.Timestamp,
	}
}

// CustomerSummary is the subset of the customer record a restaurant sees.
type CustomerSummary struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	MenuItemID string  `json:"menuItem"`
	Name       string  `json:"name,omitempty"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// NewOrderEvent announces a freshly created order to the owning restaurant.
type NewOrderEvent struct {
	OrderID      string          `json:"_id"`
	RestaurantID string          `json:"restaurantId"`
	Customer     CustomerSummary `json:"customer"`
	Items        []OrderItem     `json:"items"`
	TotalAmount  float64         `json:"totalAmount"`
	Status       Status          `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Validate checks that the event can be routed.
func (e NewOrderEvent) Validate() error {
	var errs []error
	if e.OrderID == "" {
		errs = append(errs, errors.New("_id is required"))
	}
	if e.RestaurantID == "" {
		errs = append(errs, errors.New("restaurantId is required"))
	}
	return errors.Join(errs...)
}

// Payload shapes the event into the newOrder wire message.
func (e NewOrderEvent) Payload() NewOrderPayload {
	return NewOrderPayload{
		OrderID:     e.OrderID,
		Customer:    e.Customer,
		Items:       e.Items,
		TotalAmount: e.TotalAmount,
		Status:      e.Status,
		Timestamp:   e.Timestamp,
	}
}

// OrderUpdatePayload is the data of an orderUpdate frame sent to clients.
type OrderUpdatePayload struct {
	OrderID     string    `json:"orderId"`
	Status      Status    `json:"status"`
	Customer    string    `json:"customer,omitempty"`
	Restaurant  string    `json:"restaurant,omitempty"`
	TotalAmount float64   `json:"totalAmount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewOrderPayload is the data of a newOrder frame sent to restaurants.
type NewOrderPayload struct {
	OrderID     string          `json:"_id"`
	Customer    CustomerSummary `json:"customer"`
	Items       []OrderItem     `json:"items"`
	TotalAmount float64         `json:"totalAmount"`
	Status      Status          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EventKind names the payload carried by an EventEnvelope.
type EventKind string

const (
	KindOrderUpdate EventKind = "orderUpdate"
	KindNewOrder    EventKind = "newOrder"
)

// EventEnvelope is how the Order Service hands events to the realtime layer
// over a message bus.
type EventEnvelope struct {
	Kind        EventKind      `json:"kind"`
	OrderUpdate *OrderEvent    `json:"orderUpdate,omitempty"`
	NewOrder    *NewOrderEvent `json:"newOrder,omitempty"`
}

// Validate checks that the envelope carries the payload its kind names.
func (e EventEnvelope) Validate() error {
	switch e.Kind {
	case KindOrderUpdate:
		if e.OrderUpdate == nil {
			return errors.New("orderUpdate envelope has no event")
		}
		return e.OrderUpdate.Validate()
	case KindNewOrder:
		if e.NewOrder == nil {
			return errors.New("newOrder envelope has no event")
		}
		return e.NewOrder.Validate()
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}
