package domain

import (
	"context"
	"time"
)

// StatusCacheStore defines the interface for caching resolved case status snapshots.
// Keys are derived from canonical case identifiers (pkg/casekeys), so textual
// variants of one case always share an entry.
type StatusCacheStore interface {
	// Get retrieves a snapshot from the cache. It returns ErrCacheMiss both for
	// an absent key and for a present-but-expired entry; physical eviction of
	// expired entries may be lazy.
	Get(ctx context.Context, key string) (*StatusSnapshot, error)

	// Set stores a snapshot in the cache with a specific TTL.
	Set(ctx context.Context, key string, value *StatusSnapshot, ttl time.Duration) error

	// Invalidate removes an entry unconditionally. Invalidating an absent key
	// is a no-op, not an error.
	Invalidate(ctx context.Context, key string) error
}
