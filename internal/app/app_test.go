package app_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tinywideclouds/go-order-realtime-service/internal/app"
)

// fakeService blocks in Start until Shutdown, recording call order.
type fakeService struct {
	name     string
	startErr error
	stop     chan struct{}
	once     sync.Once
	order    *[]string
	mu       *sync.Mutex
}

func newFakeService(name string, order *[]string, mu *sync.Mutex) *fakeService {
	return &fakeService{name: name, stop: make(chan struct{}), order: order, mu: mu}
}

func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stop
	return nil
}

func (f *fakeService) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	*f.order = append(*f.order, f.name)
	f.mu.Unlock()
	f.once.Do(func() { close(f.stop) })
	return nil
}

func runAsync(ctx context.Context, apiSvc, connSvc app.Service) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		app.Run(ctx, zerolog.New(io.Discard), apiSvc, connSvc)
		close(done)
	}()
	return done
}

func TestRun_ContextCancelShutsDownInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	apiSvc := newFakeService("api", &order, &mu)
	connSvc := newFakeService("connections", &order, &mu)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, apiSvc, connSvc)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"api", "connections"}, order)
}

func TestRun_FailingServiceTriggersShutdown(t *testing.T) {
	var order []string
	var mu sync.Mutex
	apiSvc := newFakeService("api", &order, &mu)
	apiSvc.startErr = errors.New("port in use")
	connSvc := newFakeService("connections", &order, &mu)

	done := runAsync(context.Background(), apiSvc, connSvc)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a service failed")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, order, "connections")
}
