package memcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// StatusCacheAdapter implements domain.StatusCacheStore with an in-process
// go-cache store. Expiry is checked at access time; no janitor goroutine runs,
// so physical eviction of expired entries is lazy, which is all the engine needs.
type StatusCacheAdapter struct {
	store  *gocache.Cache
	logger domain.Logger
}

// NewStatusCacheAdapter creates a new in-memory status cache.
func NewStatusCacheAdapter(logger domain.Logger) *StatusCacheAdapter {
	if logger == nil {
		panic("logger cannot be nil in NewStatusCacheAdapter")
	}
	// Default expiration is irrelevant: every Set carries an explicit TTL.
	// Cleanup interval 0 disables the janitor; expired entries are treated as
	// absent on Get and overwritten in place on Set.
	return &StatusCacheAdapter{
		store:  gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

// Get retrieves a snapshot. Absent and expired entries both surface as ErrCacheMiss.
func (a *StatusCacheAdapter) Get(ctx context.Context, key string) (*domain.StatusSnapshot, error) {
	val, found := a.store.Get(key)
	if !found {
		a.logger.Debug(ctx, "Status cache miss", "key", key)
		return nil, domain.ErrCacheMiss
	}
	snap, ok := val.(*domain.StatusSnapshot)
	if !ok {
		// Should not happen; treat a foreign value as a miss rather than failing the resolution.
		a.logger.Warn(ctx, "Status cache entry had unexpected type, treating as miss", "key", key)
		a.store.Delete(key)
		return nil, domain.ErrCacheMiss
	}
	a.logger.Debug(ctx, "Status cache hit", "key", key, "provenance", snap.Provenance)
	return snap, nil
}

// Set stores a snapshot with the given TTL, overwriting any previous entry for the key.
func (a *StatusCacheAdapter) Set(ctx context.Context, key string, value *domain.StatusSnapshot, ttl time.Duration) error {
	a.store.Set(key, value, ttl)
	a.logger.Debug(ctx, "Cached status snapshot", "key", key, "provenance", value.Provenance, "ttl", ttl.String())
	return nil
}

// Invalidate removes an entry unconditionally; removing an absent key is a no-op.
func (a *StatusCacheAdapter) Invalidate(ctx context.Context, key string) error {
	a.store.Delete(key)
	a.logger.Debug(ctx, "Invalidated status cache entry", "key", key)
	return nil
}
