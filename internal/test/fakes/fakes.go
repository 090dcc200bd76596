// Package fakes provides in-memory test doubles for the service's
// dependencies. They are used by the service and end-to-end tests.
package fakes

import (
	"context"
	"sort"
	"sync"

	"github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// --- Publisher ---

// Publisher records every event handed to it.
type Publisher struct {
	mu        sync.Mutex
	updates   []orders.OrderEvent
	newOrders []orders.NewOrderEvent
}

var _ orders.EventPublisher = (*Publisher)(nil)

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(_ context.Context, event orders.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, event)
}

func (p *Publisher) PublishNewOrder(_ context.Context, event orders.NewOrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newOrders = append(p.newOrders, event)
}

// Updates returns a copy of the recorded order updates.
func (p *Publisher) Updates() []orders.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orders.OrderEvent(nil), p.updates...)
}

// NewOrders returns a copy of the recorded new-order announcements.
func (p *Publisher) NewOrders() []orders.NewOrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orders.NewOrderEvent(nil), p.newOrders...)
}

// --- Presence ---

// Presence is a map-backed presence.Store.
type Presence struct {
	mu    sync.Mutex
	conns map[string]map[string]orders.ConnectionInfo
}

var _ presence.Store = (*Presence)(nil)

func NewPresence() *Presence {
	return &Presence{conns: make(map[string]map[string]orders.ConnectionInfo)}
}

func (p *Presence) MarkOnline(_ context.Context, identity orders.Identity, info orders.ConnectionInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	byConn, ok := p.conns[identity.Key()]
	if !ok {
		byConn = make(map[string]orders.ConnectionInfo)
		p.conns[identity.Key()] = byConn
	}
	byConn[info.ConnectionID] = info
	return nil
}

func (p *Presence) MarkOffline(_ context.Context, identity orders.Identity, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if byConn, ok := p.conns[identity.Key()]; ok {
		delete(byConn, connID)
		if len(byConn) == 0 {
			delete(p.conns, identity.Key())
		}
	}
	return nil
}

func (p *Presence) Connections(_ context.Context, identity orders.Identity) ([]orders.ConnectionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byConn := p.conns[identity.Key()]
	if len(byConn) == 0 {
		return nil, nil
	}
	out := make([]orders.ConnectionInfo, 0, len(byConn))
	for _, info := range byConn {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out, nil
}

func (p *Presence) Close() error { return nil }
