package replication

import "sync"

// outbox queues encoded envelopes built while the replica lock is held.
// They are published in admission order once the lock is released.
type outbox struct {
	mu    sync.Mutex
	queue [][]byte
}

func (o *outbox) push(b []byte) {
	cp := append([]byte(nil), b...)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, cp)
}

// drain removes and returns every queued message, FIFO.
func (o *outbox) drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
