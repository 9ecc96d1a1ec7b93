package cache

import (
	"context"
	"time"
)

// Store is the shared cache contract used by the permission checker. All
// implementations must be safe for concurrent use from parallel request
// handlers.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every entry whose key starts with prefix. It backs
	// per-user cache invalidation after role mutations.
	DeletePrefix(ctx context.Context, prefix string) error
	Flush(ctx context.Context) error
	// PruneExpired drops entries past their TTL and reports how many were removed.
	PruneExpired(ctx context.Context) (int64, error)
}
