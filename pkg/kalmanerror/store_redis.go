package kalmanerror

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
)

const defaultRedisHash = "kalman_error_cache"

// RedisStore keeps every error value as a field of a single Redis hash
type RedisStore struct {
	client *redis.Client
	hash   string
}

func NewRedisStore(client *redis.Client, hash string) *RedisStore {
	return &RedisStore{
		client: client,
		hash:   hash,
	}
}

func (s *RedisStore) Load(ctx context.Context) (map[ctdf.Indices]float64, error) {
	fields, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, err
	}

	values := make(map[ctdf.Indices]float64, len(fields))
	for field, rawValue := range fields {
		key, err := ctdf.ParseIndices(field)
		if err != nil {
			log.Error().Err(err).Str("field", field).Msg("Skipping malformed kalman error key")
			continue
		}

		value, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			log.Error().Err(err).Str("field", field).Msg("Skipping malformed kalman error value")
			continue
		}

		values[key] = value
	}

	return values, nil
}

func (s *RedisStore) Save(ctx context.Context, key ctdf.Indices, value float64) error {
	return s.client.HSet(ctx, s.hash, key.String(), strconv.FormatFloat(value, 'g', -1, 64)).Err()
}

// Close leaves the shared client open
func (s *RedisStore) Close() error {
	return nil
}
