package storage

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("storage: closed")

// KV is a shared key-value store with change notifications. Replicas use it
// for snapshots, advisory locks and as a fallback sync channel.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Watch registers fn for every subsequent Set. Delivery is asynchronous
	// and best-effort. The returned function unregisters fn.
	Watch(fn func(key string, value []byte)) (cancel func())
}

const watchBuffer = 256

type change struct {
	key   string
	value []byte
}

// watchers fans out changes to registered callbacks, each drained by its own
// goroutine so a slow watcher never blocks writers.
type watchers struct {
	mu     sync.Mutex
	next   int
	chans  map[int]chan change
	closed bool
}

func (w *watchers) add(fn func(string, []byte)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return func() {}
	}
	if w.chans == nil {
		w.chans = make(map[int]chan change)
	}
	id := w.next
	w.next++
	ch := make(chan change, watchBuffer)
	w.chans[id] = ch

	go func() {
		for c := range ch {
			fn(c.key, c.value)
		}
	}()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if ch, ok := w.chans[id]; ok {
			delete(w.chans, id)
			close(ch)
		}
	}
}

func (w *watchers) notify(key string, value []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.chans {
		cp := append([]byte(nil), value...)
		select {
		case ch <- change{key: key, value: cp}:
		default: // watcher is behind; drop
		}
	}
}

func (w *watchers) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for id, ch := range w.chans {
		delete(w.chans, id)
		close(ch)
	}
}

// Scanner is implemented by stores that can enumerate keys.
type Scanner interface {
	Keys(prefix string) ([]string, error)
}
