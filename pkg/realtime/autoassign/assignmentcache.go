package autoassign

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// AssignmentCache remembers which block a vehicle was bound to so a restarted or different worker
// picks the binding straight back up
type AssignmentCache interface {
	// Get returns an empty string when there is no cached assignment
	Get(ctx context.Context, vehicleID string) string
	Set(ctx context.Context, vehicleID string, blockRef string) error
	Delete(ctx context.Context, vehicleID string) error
}

type redisAssignmentCache struct {
	cache *cache.Cache[string]
}

func NewRedisAssignmentCache(client *redis.Client, expiration time.Duration) AssignmentCache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))

	return &redisAssignmentCache{
		cache: cache.New[string](redisStore),
	}
}

func assignmentCacheKey(vehicleID string) string {
	return fmt.Sprintf("autoassign_vehicle:%s", vehicleID)
}

func (c *redisAssignmentCache) Get(ctx context.Context, vehicleID string) string {
	blockRef, err := c.cache.Get(ctx, assignmentCacheKey(vehicleID))
	if err != nil {
		return ""
	}

	return blockRef
}

func (c *redisAssignmentCache) Set(ctx context.Context, vehicleID string, blockRef string) error {
	return c.cache.Set(ctx, assignmentCacheKey(vehicleID), blockRef)
}

func (c *redisAssignmentCache) Delete(ctx context.Context, vehicleID string) error {
	return c.cache.Delete(ctx, assignmentCacheKey(vehicleID))
}
