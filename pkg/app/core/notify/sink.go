package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hnitrade/pkg/util"
)

const (
	DefaultTTL      = 5 * time.Second
	DefaultCapacity = 100
)

// Kind classifies a notification for display.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notification struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Role      string `json:"role,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// Sink is a replica-local notification queue. Entries expire ttl after they
// were pushed and the oldest entries are evicted beyond capacity.
type Sink struct {
	mu       sync.Mutex
	clock    util.Clock
	ttl      time.Duration
	capacity int
	items    []Notification
	subs     map[int]chan Notification
	nextSub  int
}

func NewSink(clock util.Clock, ttl time.Duration, capacity int) *Sink {
	if clock == nil {
		clock = util.RealClock{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		clock:    clock,
		ttl:      ttl,
		capacity: capacity,
		subs:     make(map[int]chan Notification),
	}
}

// Push enqueues n, filling in id and timestamp when missing, and fans it out
// to subscribers. Slow subscribers miss entries rather than block.
func (s *Sink) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp == 0 {
		n.Timestamp = s.clock.Now().UnixMilli()
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	if over := len(s.items) - s.capacity; over > 0 {
		s.items = append([]Notification(nil), s.items[over:]...)
	}
	for _, ch := range s.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

// List returns live notifications, oldest first, after pruning expired ones.
func (s *Sink) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Dismiss removes a notification before it expires.
func (s *Sink) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Expire drops entries older than the display duration and returns how many
// were removed.
func (s *Sink) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked()
}

func (s *Sink) pruneLocked() int {
	cutoff := s.clock.Now().Add(-s.ttl).UnixMilli()
	kept := s.items[:0]
	for _, n := range s.items {
		if n.Timestamp > cutoff {
			kept = append(kept, n)
		}
	}
	removed := len(s.items) - len(kept)
	s.items = kept
	return removed
}

// Subscribe returns a channel receiving every subsequent Push and a cancel
// function that closes it.
func (s *Sink) Subscribe(buf int) (<-chan Notification, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Notification, buf)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}
