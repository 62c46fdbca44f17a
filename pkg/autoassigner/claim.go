package autoassigner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrBlockClaimed = errors.New("block already claimed by another vehicle")

// BlockClaimer makes binding a vehicle to a block atomic. Two vehicles deciding on the same block at
// the same time will both be told to take it by the Engine, only the first Claim wins.
type BlockClaimer interface {
	// Claim returns ErrBlockClaimed if another vehicle holds the block. Claiming a block the vehicle
	// already holds succeeds.
	Claim(ctx context.Context, blockRef string, vehicleID string) error
	// Release gives up the claim if vehicleID still holds it
	Release(ctx context.Context, blockRef string, vehicleID string) error
}

type MemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]string
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{
		claims: map[string]string{},
	}
}

func (c *MemoryClaimer) Claim(ctx context.Context, blockRef string, vehicleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if holder, exists := c.claims[blockRef]; exists && holder != vehicleID {
		return ErrBlockClaimed
	}

	c.claims[blockRef] = vehicleID
	return nil
}

func (c *MemoryClaimer) Release(ctx context.Context, blockRef string, vehicleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.claims[blockRef] == vehicleID {
		delete(c.claims, blockRef)
	}

	return nil
}

// RedisClaimer shares claims between every assigner process using the same Redis
type RedisClaimer struct {
	client     *redis.Client
	expiration time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClaimer(client *redis.Client, expiration time.Duration) *RedisClaimer {
	return &RedisClaimer{
		client:     client,
		expiration: expiration,
	}
}

func claimKey(blockRef string) string {
	return fmt.Sprintf("autoassigner_claim:%s", blockRef)
}

func (c *RedisClaimer) Claim(ctx context.Context, blockRef string, vehicleID string) error {
	key := claimKey(blockRef)

	claimed, err := c.client.SetNX(ctx, key, vehicleID, c.expiration).Result()
	if err != nil {
		return err
	}
	if claimed {
		return nil
	}

	holder, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls, try once more
		claimed, err = c.client.SetNX(ctx, key, vehicleID, c.expiration).Result()
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
		return ErrBlockClaimed
	} else if err != nil {
		return err
	}

	if holder != vehicleID {
		return ErrBlockClaimed
	}

	return nil
}

func (c *RedisClaimer) Release(ctx context.Context, blockRef string, vehicleID string) error {
	return releaseScript.Run(ctx, c.client, []string{claimKey(blockRef)}, vehicleID).Err()
}
