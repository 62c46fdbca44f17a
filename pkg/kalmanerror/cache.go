package kalmanerror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/eko/gocache/lib/v4/cache"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/travigo/assigner/pkg/ctdf"
)

var ErrInvalidValue = errors.New("kalman error value must be a finite non-negative number")

type entry struct {
	Key   ctdf.Indices
	Value float64
}

// Cache holds the learned Kalman filter error for each trip pattern segment. Entries never expire
// and are never evicted. When a Store is set every Put is written through to it.
type Cache struct {
	client *gocache.Cache
	cache  *cache.Cache[entry]

	// Serialises writers of a single key so the store sees them in the same order as memory.
	// Readers never take these.
	writeLocks sync.Map

	store Store
}

// New creates an empty cache. store may be nil for a memory only cache.
func New(store Store) *Cache {
	client := gocache.New(gocache.NoExpiration, 0)

	return &Cache{
		client: client,
		cache:  cache.New[entry](gocachestore.NewGoCache(client)),
		store:  store,
	}
}

// Open creates a cache warmed with everything already held in store
func Open(ctx context.Context, store Store) (*Cache, error) {
	c := New(store)

	if store == nil {
		return c, nil
	}

	values, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load kalman errors: %w", err)
	}

	for key, value := range values {
		if err := c.cache.Set(ctx, key.String(), entry{Key: key, Value: value}); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Get returns the error value for the segment and false if one has never been stored
func (c *Cache) Get(key ctdf.Indices) (float64, bool) {
	cached, err := c.cache.Get(context.Background(), key.String())
	if err != nil {
		return 0, false
	}

	return cached.Value, true
}

// Put overwrites the error value for the segment. Concurrent Puts to the same key are last writer
// wins, in memory and in the store alike. Callers wanting read-modify-write must coordinate it
// themselves. If the store fails the in memory value is still updated.
func (c *Cache) Put(ctx context.Context, key ctdf.Indices, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return ErrInvalidValue
	}

	lock := c.writeLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.cache.Set(ctx, key.String(), entry{Key: key, Value: value}); err != nil {
		return err
	}

	if c.store != nil {
		if err := c.store.Save(ctx, key, value); err != nil {
			return fmt.Errorf("failed to save kalman error for %s: %w", key, err)
		}
	}

	return nil
}

func (c *Cache) writeLock(key ctdf.Indices) *sync.Mutex {
	lock, _ := c.writeLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Keys returns a snapshot of every stored key. It may be stale as soon as it is returned.
func (c *Cache) Keys() []ctdf.Indices {
	items := c.client.Items()

	keys := make([]ctdf.Indices, 0, len(items))
	for _, item := range items {
		if cached, ok := item.Object.(entry); ok {
			keys = append(keys, cached.Key)
		}
	}

	return keys
}

func (c *Cache) Len() int {
	return c.client.ItemCount()
}

// Dump calls sink with the current value of every key. Keys gone by the time they are looked up
// are skipped.
func (c *Cache) Dump(sink func(key ctdf.Indices, value float64)) {
	for _, key := range c.Keys() {
		value, exists := c.Get(key)
		if !exists {
			continue
		}

		sink(key, value)
	}
}

// LogCache writes the cache content to the logger at debug level
func (c *Cache) LogCache(logger zerolog.Logger) {
	logger.Debug().Int("entries", c.Len()).Msg("Kalman error cache content")

	c.Dump(func(key ctdf.Indices, value float64) {
		logger.Debug().
			Str("tripPattern", key.TripPatternRef).
			Int("stopPathIndex", key.StopPathIndex).
			Int("segmentIndex", key.SegmentIndex).
			Float64("errorValue", value).
			Msg("Kalman error")
	})
}

func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}

	return c.store.Close()
}
