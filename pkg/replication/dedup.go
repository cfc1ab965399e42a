package replication

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultDedupCapacity = 4096

// seenSet is a bounded recency set of event ids. Lookups do not refresh an
// entry, so the oldest insertion is evicted first.
type seenSet struct {
	c *lru.Cache[string, struct{}]
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		panic(err) // only for non-positive sizes
	}
	return &seenSet{c: c}
}

// firstSeen records id and reports whether it was new.
func (s *seenSet) firstSeen(id string) bool {
	if s.c.Contains(id) {
		return false
	}
	s.c.Add(id, struct{}{})
	return true
}

func (s *seenSet) len() int { return s.c.Len() }
