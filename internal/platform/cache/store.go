package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when a caller does not specify an entry lifetime.
const DefaultTTL = 15 * time.Minute

// Stats reports counters for cache effectiveness monitoring.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Store is a TTL-bound key/value cache. Implementations must be safe for
// concurrent use. Expired entries behave as absent.
type Store interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeleteContaining removes every entry whose key contains the fragment
	// and reports how many entries were dropped.
	DeleteContaining(ctx context.Context, fragment string) int
	// DeletePrefix removes every entry whose key starts with the prefix.
	DeletePrefix(ctx context.Context, prefix string) int
	Flush(ctx context.Context)
	Stats() Stats
}
