package domain

import (
	"context"
	"time"
)

// SnapshotCache caches short-lived JSON snapshots (the live feed response,
// the aggregated position list) so dashboard refreshes do not hammer the
// exchange or recompute needlessly.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SignalBus publishes dashboard refresh events and delivers them to
// subscribers (the WebSocket hub).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
