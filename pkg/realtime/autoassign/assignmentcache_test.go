package autoassign

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisAssignmentCache(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	cache := NewRedisAssignmentCache(redis.NewClient(&redis.Options{Addr: server.Addr()}), time.Minute)

	if blockRef := cache.Get(ctx, "bus-1"); blockRef != "" {
		t.Errorf("expected no cached assignment, got %q", blockRef)
	}

	if err := cache.Set(ctx, "bus-1", "block-1"); err != nil {
		t.Fatal(err)
	}
	if blockRef := cache.Get(ctx, "bus-1"); blockRef != "block-1" {
		t.Errorf("expected block-1, got %q", blockRef)
	}

	if err := cache.Delete(ctx, "bus-1"); err != nil {
		t.Fatal(err)
	}
	if blockRef := cache.Get(ctx, "bus-1"); blockRef != "" {
		t.Errorf("expected deleted assignment, got %q", blockRef)
	}

	cache.Set(ctx, "bus-2", "block-2")
	server.FastForward(2 * time.Minute)
	if blockRef := cache.Get(ctx, "bus-2"); blockRef != "" {
		t.Errorf("expected expired assignment, got %q", blockRef)
	}
}
