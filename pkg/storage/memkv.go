package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemKV is an in-process KV. Several replicas may share one instance.
type MemKV struct {
	mu   sync.Mutex
	data map[string][]byte
	w    watchers
}

func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (s *MemKV) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemKV) Set(key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	s.w.notify(key, value)
	return nil
}

func (s *MemKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemKV) Watch(fn func(key string, value []byte)) func() {
	return s.w.add(fn)
}

func (s *MemKV) Close() error {
	s.w.close()
	return nil
}

var _ KV = (*MemKV)(nil)

func (s *MemKV) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
