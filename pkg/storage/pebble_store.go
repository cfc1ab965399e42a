package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleKV is a KV backed by a Pebble database. Watchers only observe writes
// made through this handle.
type PebbleKV struct {
	db *pebble.DB
	w  watchers
}

func NewPebbleKV(path string) (*PebbleKV, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleKV{db: db}, nil
}

func (s *PebbleKV) Close() error {
	s.w.close()
	return s.db.Close()
}

func (s *PebbleKV) Get(key string) ([]byte, bool, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

func (s *PebbleKV) Set(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.w.notify(key, value)
	return nil
}

func (s *PebbleKV) Delete(key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PebbleKV) Watch(fn func(key string, value []byte)) func() {
	return s.w.add(fn)
}

// Keys lists the keys under prefix in byte order.
func (s *PebbleKV) Keys(prefix string) ([]string, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = keyUpperBound([]byte(prefix))
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

var _ KV = (*PebbleKV)(nil)
