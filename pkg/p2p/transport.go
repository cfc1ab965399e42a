package p2p

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("p2p: transport closed")

// Transport is the shape shared by every transport in this package.
type Transport interface {
	Publish(ctx context.Context, msg []byte) error
	SetHandler(h func(ctx context.Context, msg []byte))
	Close() error
}

// Fanout publishes every message on all of its transports and merges their
// inbound streams. Publishing fails only when every transport fails.
type Fanout struct {
	ts []Transport
}

func NewFanout(ts ...Transport) *Fanout { return &Fanout{ts: ts} }

func (f *Fanout) Publish(ctx context.Context, msg []byte) error {
	if len(f.ts) == 0 {
		return ErrClosed
	}
	var errs []error
	for _, t := range f.ts {
		if err := t.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f.ts) {
		return errors.Join(errs...)
	}
	return nil
}

// SetHandler installs h on every transport. Calls into h are serialized.
func (f *Fanout) SetHandler(h func(ctx context.Context, msg []byte)) {
	var mu sync.Mutex
	wrapped := func(ctx context.Context, msg []byte) {
		mu.Lock()
		defer mu.Unlock()
		h(ctx, msg)
	}
	for _, t := range f.ts {
		t.SetHandler(wrapped)
	}
}

func (f *Fanout) Close() error {
	var errs []error
	for _, t := range f.ts {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
