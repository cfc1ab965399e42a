package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
)

// SnapshotStore persists replica state in a KV under a versioned key.
// A snapshot found only under the legacy key is normalized and rewritten
// under the current key on first load.
type SnapshotStore struct {
	kv  KV
	log *zap.SugaredLogger
}

func NewSnapshotStore(kv KV, log *zap.SugaredLogger) *SnapshotStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SnapshotStore{kv: kv, log: log}
}

func (s *SnapshotStore) Load(ctx context.Context) (core.Snapshot, error) {
	raw, ok, err := s.kv.Get(SnapshotKey)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		return decodeSnapshot(raw)
	}

	raw, ok, err = s.kv.Get(LegacySnapshotKey)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load legacy snapshot: %w", err)
	}
	if !ok {
		return core.Snapshot{}, nil
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := s.Save(ctx, snap); err != nil {
		s.log.Warnw("legacy_snapshot_rewrite_failed", "err", err)
	} else {
		s.log.Infow("legacy_snapshot_migrated", "orders", len(snap.Orders), "trades", len(snap.Trades))
	}
	return snap, nil
}

func (s *SnapshotStore) Save(_ context.Context, snap core.Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.kv.Set(SnapshotKey, b)
}
