package kalmanerror

import (
	"context"
	"fmt"

	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/database"
	"github.com/travigo/assigner/pkg/redis_client"
	"github.com/travigo/assigner/pkg/util"
)

// Store is the durable tier behind the cache so learned errors survive a restart
type Store interface {
	Load(ctx context.Context) (map[ctdf.Indices]float64, error)
	Save(ctx context.Context, key ctdf.Indices, value float64) error
	Close() error
}

const defaultSQLitePath = "./data/kalman_errors.db"

// OpenStoreFromEnvironment picks the durable tier from ASSIGNER_KALMAN_STORE (redis, sqlite, mongo
// or none). Redis and Mongo must already be connected.
func OpenStoreFromEnvironment(ctx context.Context) (Store, error) {
	env := util.GetEnvironmentVariables()

	switch env["ASSIGNER_KALMAN_STORE"] {
	case "", "redis":
		return NewRedisStore(redis_client.Client, defaultRedisHash), nil
	case "sqlite":
		path := defaultSQLitePath
		if env["ASSIGNER_KALMAN_SQLITE_PATH"] != "" {
			path = env["ASSIGNER_KALMAN_SQLITE_PATH"]
		}
		store, err := OpenSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mongo":
		return NewMongoStore(database.GetCollection("kalman_errors")), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown kalman error store %s", env["ASSIGNER_KALMAN_STORE"])
	}
}
