package kalmanerror

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/database"
	"github.com/travigo/assigner/pkg/redis_client"
	"github.com/travigo/assigner/pkg/util"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "kalman-errors",
		Usage: "Inspect the durable Kalman error cache",
		Subcommands: []*cli.Command{
			{
				Name:  "dump",
				Usage: "log every entry in the cache",
				Action: func(c *cli.Context) error {
					cache, err := openFromEnvironment(c.Context)
					if err != nil {
						return err
					}
					defer cache.Close()

					cache.LogCache(log.Logger.Level(zerolog.DebugLevel))

					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "set the error value for a trip pattern, stop path and segment",
				ArgsUsage: "<tripPattern|stopPathIndex|segmentIndex> <value>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("expected a key and a value")
					}

					key, err := ctdf.ParseIndices(c.Args().Get(0))
					if err != nil {
						return err
					}

					var value float64
					if _, err := fmt.Sscan(c.Args().Get(1), &value); err != nil {
						return fmt.Errorf("invalid value %s: %w", c.Args().Get(1), err)
					}

					cache, err := openFromEnvironment(c.Context)
					if err != nil {
						return err
					}
					defer cache.Close()

					if err := cache.Put(c.Context, key, value); err != nil {
						return err
					}

					log.Info().Str("key", key.String()).Float64("value", value).Msg("Set Kalman error")

					return nil
				},
			},
		},
	}
}

func openFromEnvironment(ctx context.Context) (*Cache, error) {
	switch util.GetEnvironmentVariables()["ASSIGNER_KALMAN_STORE"] {
	case "", "redis":
		if err := redis_client.Connect(); err != nil {
			return nil, err
		}
	case "mongo":
		if err := database.Connect(); err != nil {
			return nil, err
		}
	}

	store, err := OpenStoreFromEnvironment(ctx)
	if err != nil {
		return nil, err
	}

	return Open(ctx, store)
}
