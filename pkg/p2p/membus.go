package p2p

import (
	"context"
	"sync"
)

const memQueue = 1024

// MemBus is an in-process broadcast bus. Every endpoint receives the messages
// published by the others, asynchronously and in publish order. A filter can
// drop deliveries to simulate a lossy network.
type MemBus struct {
	mu        sync.Mutex
	endpoints map[*MemEndpoint]struct{}
	filter    func(from, to string, msg []byte) bool
}

func NewMemBus() *MemBus {
	return &MemBus{endpoints: make(map[*MemEndpoint]struct{})}
}

// SetFilter installs a delivery predicate; returning false drops the message
// for that receiver. nil delivers everything.
func (b *MemBus) SetFilter(f func(from, to string, msg []byte) bool) {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
}

// Endpoint attaches a new named participant.
func (b *MemBus) Endpoint(name string) *MemEndpoint {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &MemEndpoint{bus: b, name: name, ch: make(chan []byte, memQueue), ctx: ctx, cancel: cancel}

	b.mu.Lock()
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()

	go ep.run()
	return ep
}

func (b *MemBus) publish(from *MemEndpoint, msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ep := range b.endpoints {
		if ep == from {
			continue
		}
		if b.filter != nil && !b.filter(from.name, ep.name, msg) {
			continue
		}
		select {
		case ep.ch <- append([]byte(nil), msg...):
		default: // receiver is saturated; the message is lost
		}
	}
}

type MemEndpoint struct {
	bus    *MemBus
	name   string
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	handler func(context.Context, []byte)
	closed  bool
}

func (e *MemEndpoint) Name() string { return e.name }

func (e *MemEndpoint) Publish(ctx context.Context, msg []byte) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	e.bus.publish(e, msg)
	return nil
}

func (e *MemEndpoint) SetHandler(h func(context.Context, []byte)) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *MemEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.bus.mu.Lock()
	delete(e.bus.endpoints, e)
	close(e.ch)
	e.bus.mu.Unlock()
	e.cancel()
	return nil
}

func (e *MemEndpoint) run() {
	for msg := range e.ch {
		e.mu.RLock()
		h := e.handler
		e.mu.RUnlock()
		if h != nil {
			h(e.ctx, msg)
		}
	}
}
