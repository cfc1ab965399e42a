package replication

import (
	"context"
	"errors"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
)

var ErrTransportUnavailable = errors.New("replication transport unavailable")

// Transport moves encoded envelopes between replicas. Delivery may lose,
// duplicate or reorder messages.
type Transport interface {
	Publish(ctx context.Context, msg []byte) error
	SetHandler(h func(ctx context.Context, msg []byte))
	Close() error
}

// Persistence stores the replica snapshot between runs.
type Persistence interface {
	Load(ctx context.Context) (core.Snapshot, error)
	Save(ctx context.Context, snap core.Snapshot) error
}

// Journal records one line per applied remote event.
type Journal interface {
	Append(line string)
}
