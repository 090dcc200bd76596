package realtime

import "github.com/tinywideclouds/go-order-realtime-service/pkg/orders"

// Topic scopes. A topic name is "<scope>_<id>".
const (
	ScopeCustomer   = "customer"
	ScopeRestaurant = "restaurant"
)

// Topic builds the topic name for an entity.
func Topic(scope, id string) string {
	return scope + "_" + id
}

// TopicsForIdentity returns the topics a connection with this identity listens on.
// Admins get none: they read order state through the REST API.
func TopicsForIdentity(identity orders.Identity) []string {
	switch identity.Role {
	case orders.RoleCustomer:
		return []string{Topic(ScopeCustomer, identity.UserID)}
	case orders.RoleRestaurant:
		return []string{Topic(ScopeRestaurant, identity.UserID)}
	default:
		return nil
	}
}

// TopicsForEvent returns the customer and restaurant topics of an order event.
// An id that is empty (possible only for client relays) yields no topic.
func TopicsForEvent(event orders.OrderEvent) []string {
	topics := make([]string, 0, 2)
	if event.CustomerID != "" {
		topics = append(topics, Topic(ScopeCustomer, event.CustomerID))
	}
	if event.RestaurantID != "" {
		topics = append(topics, Topic(ScopeRestaurant, event.RestaurantID))
	}
	return topics
}

// TopicsForNewOrder returns the owning restaurant's topic.
func TopicsForNewOrder(event orders.NewOrderEvent) []string {
	if event.RestaurantID == "" {
		return nil
	}
	return []string{Topic(ScopeRestaurant, event.RestaurantID)}
}
