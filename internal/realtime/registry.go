/*
File: internal/realtime/registry.go
Description: The connection registry. It is the only owner of the
connection -> identity, connection -> topics and topic -> connections maps.
*/
package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// Sender writes one encoded frame to a connection's transport. Implementations
// must not block on the network.
type Sender interface {
	Send(frame []byte) error
}

// ConnectionSnapshot is a copy of a registry entry, safe to hold after the lock is released.
type ConnectionSnapshot struct {
	ID        string
	Identity  *orders.Identity
	Topics    []string
	CreatedAt time.Time
}

type connectionEntry struct {
	identity  *orders.Identity
	topics    map[string]struct{}
	sender    Sender
	createdAt time.Time
}

// Registry tracks live connections and their topic subscriptions.
// All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*connectionEntry
	topics      map[string]map[string]struct{}
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*connectionEntry),
		topics:      make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// Register creates an unauthenticated entry with no subscriptions.
// Connection ids are assigned by the transport and assumed unique.
func (r *Registry) Register(connectionID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connectionID] = &connectionEntry{
		topics:    make(map[string]struct{}),
		sender:    sender,
		createdAt: r.now(),
	}
}

// BindIdentity attaches an identity to a connection, overwriting any previous one.
func (r *Registry) BindIdentity(connectionID string, identity orders.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return ErrUnknownConnection
	}
	id := identity
	entry.identity = &id
	return nil
}

// Subscribe adds topics to the connection's subscription set.
func (r *Registry) Subscribe(connectionID string, topics []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return ErrUnknownConnection
	}
	r.subscribeLocked(connectionID, entry, topics)
	return nil
}

// Resubscribe replaces the connection's subscription set with topics in one
// step, so a concurrent SubscribersOf never observes it empty in between.
func (r *Registry) Resubscribe(connectionID string, topics []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return ErrUnknownConnection
	}
	r.detachLocked(connectionID, entry)
	entry.topics = make(map[string]struct{}, len(topics))
	r.subscribeLocked(connectionID, entry, topics)
	return nil
}

func (r *Registry) subscribeLocked(connectionID string, entry *connectionEntry, topics []string) {
	for _, topic := range topics {
		entry.topics[topic] = struct{}{}
		members, ok := r.topics[topic]
		if !ok {
			members = make(map[string]struct{})
			r.topics[topic] = members
		}
		members[connectionID] = struct{}{}
	}
}

// UnsubscribeAll drops every subscription of the connection and returns the
// topics it was subscribed to.
func (r *Registry) UnsubscribeAll(connectionID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return nil, ErrUnknownConnection
	}
	removed := r.detachLocked(connectionID, entry)
	entry.topics = make(map[string]struct{})
	return removed, nil
}

// Unregister removes the connection and all its subscriptions. It reports
// whether an entry existed; removing twice is not an error.
func (r *Registry) Unregister(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return false
	}
	r.detachLocked(connectionID, entry)
	delete(r.connections, connectionID)
	return true
}

func (r *Registry) detachLocked(connectionID string, entry *connectionEntry) []string {
	removed := make([]string, 0, len(entry.topics))
	for topic := range entry.topics {
		removed = append(removed, topic)
		members := r.topics[topic]
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.topics, topic)
		}
	}
	sort.Strings(removed)
	return removed
}

// SubscribersOf returns the ids of the connections currently subscribed to
// topic. The result is a copy and is empty, not nil-erroring, when nobody listens.
func (r *Registry) SubscribersOf(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.topics[topic]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Deliver hands a frame to the connection's sender. The lock is not held
// while the sender runs.
func (r *Registry) Deliver(connectionID string, frame []byte) error {
	r.mu.RLock()
	entry, ok := r.connections[connectionID]
	var sender Sender
	if ok {
		sender = entry.sender
	}
	r.mu.RUnlock()

	if !ok {
		return ErrUnknownConnection
	}
	if sender == nil {
		return ErrConnectionClosed
	}
	return sender.Send(frame)
}

// Lookup returns a snapshot of one connection.
func (r *Registry) Lookup(connectionID string) (ConnectionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return ConnectionSnapshot{}, false
	}
	snap := ConnectionSnapshot{
		ID:        connectionID,
		Topics:    make([]string, 0, len(entry.topics)),
		CreatedAt: entry.createdAt,
	}
	if entry.identity != nil {
		id := *entry.identity
		snap.Identity = &id
	}
	for topic := range entry.topics {
		snap.Topics = append(snap.Topics, topic)
	}
	sort.Strings(snap.Topics)
	return snap, true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
