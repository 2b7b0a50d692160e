package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// KV is the cache used for per-node derived values (storage usage totals).
// A miss is never an operation failure; callers fall back and enqueue a
// refresh.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StorageUsageKey is the cache key holding a node's storage usage total.
func StorageUsageKey(nodeID string) string {
	return "storage_usage:" + nodeID
}
