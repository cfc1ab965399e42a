package p2p

import (
	"context"
	"sync"

	"github.com/uhyunpark/hnitrade/pkg/storage"
)

// KVTransport uses a shared KV as a fallback channel: each publish overwrites
// the sync key and peers pick it up from change notifications. Concurrent
// publishes may overwrite each other before being observed.
type KVTransport struct {
	kv     storage.KV
	key    string
	ctx    context.Context
	cancel context.CancelFunc
	stop   func()

	mu      sync.RWMutex
	handler func(context.Context, []byte)
}

func NewKVTransport(kv storage.KV) *KVTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &KVTransport{kv: kv, key: storage.SyncKey, ctx: ctx, cancel: cancel}
	t.stop = kv.Watch(t.onChange)
	return t
}

func (t *KVTransport) onChange(key string, value []byte) {
	if key != t.key {
		return
	}
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h != nil {
		h(t.ctx, value)
	}
}

func (t *KVTransport) Publish(ctx context.Context, msg []byte) error {
	if err := t.ctx.Err(); err != nil {
		return ErrClosed
	}
	return t.kv.Set(t.key, msg)
}

func (t *KVTransport) SetHandler(h func(context.Context, []byte)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *KVTransport) Close() error {
	t.cancel()
	t.stop()
	return nil
}
