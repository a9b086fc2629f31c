package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// StatusCacheAdapter implements the domain.StatusCacheStore interface using Redis.
// It is selected over the in-memory backend when several bridge pods must share
// one view of resolved case status; Redis key expiry provides the TTL semantics,
// so an expired entry is physically gone and reads behave exactly like a miss.
type StatusCacheAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewStatusCacheAdapter creates a new instance of StatusCacheAdapter.
func NewStatusCacheAdapter(redisClient *redis.Client, logger domain.Logger) *StatusCacheAdapter {
	if redisClient == nil {
		panic("redisClient cannot be nil in NewStatusCacheAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewStatusCacheAdapter")
	}
	return &StatusCacheAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Get retrieves a StatusSnapshot from the Redis cache.
func (a *StatusCacheAdapter) Get(ctx context.Context, key string) (*domain.StatusSnapshot, error) {
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "Status cache miss", "key", key)
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to get status snapshot from Redis cache", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis GET for status key '%s' failed: %w", key, err)
	}

	var snap domain.StatusSnapshot
	if err = json.Unmarshal([]byte(val), &snap); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal cached status snapshot", "key", key, "error", err.Error())
		return nil, fmt.Errorf("failed to unmarshal status snapshot for key '%s': %w", key, err)
	}

	a.logger.Debug(ctx, "Status cache hit", "key", key, "provenance", snap.Provenance)
	return &snap, nil
}

// Set stores a StatusSnapshot in the Redis cache with a specified TTL.
func (a *StatusCacheAdapter) Set(ctx context.Context, key string, value *domain.StatusSnapshot, ttl time.Duration) error {
	payloadBytes, err := json.Marshal(value)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal status snapshot for caching", "key", key, "error", err.Error())
		return fmt.Errorf("failed to marshal status snapshot for key '%s': %w", key, err)
	}

	if err = a.redisClient.Set(ctx, key, string(payloadBytes), ttl).Err(); err != nil {
		a.logger.Error(ctx, "Failed to set status snapshot in Redis cache", "key", key, "error", err.Error())
		return fmt.Errorf("redis SET for status key '%s' failed: %w", key, err)
	}

	a.logger.Debug(ctx, "Successfully cached status snapshot", "key", key, "provenance", value.Provenance, "ttl", ttl.String())
	return nil
}

// Invalidate deletes the entry for key. Deleting an absent key is a no-op.
func (a *StatusCacheAdapter) Invalidate(ctx context.Context, key string) error {
	if err := a.redisClient.Del(ctx, key).Err(); err != nil {
		a.logger.Error(ctx, "Failed to invalidate status cache entry", "key", key, "error", err.Error())
		return fmt.Errorf("redis DEL for status key '%s' failed: %w", key, err)
	}
	a.logger.Debug(ctx, "Invalidated status cache entry", "key", key)
	return nil
}
