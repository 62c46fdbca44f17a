package autoassign

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/autoassigner"
	"github.com/travigo/assigner/pkg/blocks"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/database"
	"github.com/travigo/assigner/pkg/elastic_client"
	"github.com/travigo/assigner/pkg/kalmanerror"
	"github.com/travigo/assigner/pkg/realtime/monitoring"
	"github.com/travigo/assigner/pkg/realtime/stats"
	"github.com/travigo/assigner/pkg/redis_client"
	"github.com/travigo/assigner/pkg/util"
	"github.com/urfave/cli/v2"
)

const blockReloadInterval = 15 * time.Minute
const claimExpiration = 24 * time.Hour
const assignmentCacheExpiration = 90 * time.Minute
const staleAssignmentCheckInterval = time.Minute

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "autoassigner",
		Usage: "Automatically assign vehicles to unassigned blocks from their positions",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run an instance of the auto assigner",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address of the stats server",
						Value: ":3333",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := elastic_client.Connect(false); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()

					configPath := util.GetEnvironmentVariables()["ASSIGNER_CONFIG_FILE"]
					config, err := autoassigner.LoadConfig(configPath)
					if err != nil {
						return err
					}
					log.Info().Interface("config", config).Msg("Loaded auto assigner config")

					registry := blocks.NewRegistry()
					if err := loadBlocks(ctx, registry); err != nil {
						return err
					}
					go reloadBlocks(ctx, registry)

					assigner := NewAssigner(config, registry, autoassigner.NewRedisClaimer(redis_client.Client, claimExpiration))
					assigner.AssignmentCache = NewRedisAssignmentCache(redis_client.Client, assignmentCacheExpiration)
					assigner.RecordEvent = RecordElasticEvent

					autoassigner.WatchConfig(ctx, configPath, assigner.Engine)
					go assigner.RunStaleAssignmentReleaser(ctx, staleAssignmentCheckInterval)

					kalmanStore, err := kalmanerror.OpenStoreFromEnvironment(ctx)
					if err != nil {
						return err
					}
					kalmanErrors, err := kalmanerror.Open(ctx, kalmanStore)
					if err != nil {
						return err
					}
					defer kalmanErrors.Close()

					queueMonitor := monitoring.NewQueueMonitorFromEnvironment(redis_client.QueueConnection, QueueName)
					go queueMonitor.Run(ctx, 30*time.Second)

					StartConsumers(assigner)
					go StartCleaner()

					statsServer := &stats.Server{
						QueueConnection: redis_client.QueueConnection,
						Vehicles:        assigner.Vehicles,
						KalmanErrors:    kalmanErrors,
						QueueMonitor:    queueMonitor,
						HealthChecks: map[string]stats.HealthCheck{
							"redis": func(ctx context.Context) error {
								return redis_client.Client.Ping(ctx).Err()
							},
							"mongo": func(ctx context.Context) error {
								return database.MongoGlobalInstance.Client.Ping(ctx, nil)
							},
						},
					}
					go func() {
						if err := statsServer.Listen(c.String("listen")); err != nil {
							log.Fatal().Err(err).Msg("Stats server failed")
						}
					}()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish
					elastic_client.WaitUntilQueueEmpty()

					return nil
				},
			},
			{
				Name:  "cleaner",
				Usage: "run the queue cleaner for the position report queue",
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					go StartCleaner()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					<-signals

					return nil
				},
			},
			{
				Name:  "testdecide",
				Usage: "replay AVL reports against a set of blocks offline and print the decisions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "blocks",
						Usage:    "YAML file of blocks",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "reports",
						Usage:    "JSON file containing a list of AVL reports",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					config, err := autoassigner.LoadConfig(util.GetEnvironmentVariables()["ASSIGNER_CONFIG_FILE"])
					if err != nil {
						return err
					}
					// Replaying is pointless with the engine off
					config.Enabled = true

					registry := blocks.NewRegistry()
					if err := registry.LoadFromFile(c.String("blocks")); err != nil {
						return err
					}

					reportsFile, err := os.ReadFile(c.String("reports"))
					if err != nil {
						return err
					}
					var reports []*ctdf.AVLReport
					if err := json.Unmarshal(reportsFile, &reports); err != nil {
						return err
					}

					events, vehicles, err := Replay(context.Background(), config, registry, reports)
					pretty.Println(events, err)

					for _, vehicleState := range vehicles.VehicleStates() {
						pretty.Println(vehicleState.Snapshot())
					}

					return err
				},
			},
		},
	}
}

func loadBlocks(ctx context.Context, registry *blocks.Registry) error {
	now := time.Now()

	return registry.LoadFromDatabase(ctx, now.Add(-12*time.Hour), now.Add(36*time.Hour))
}

func reloadBlocks(ctx context.Context, registry *blocks.Registry) {
	ticker := time.NewTicker(blockReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loadBlocks(ctx, registry); err != nil {
				log.Error().Err(err).Msg("Failed to reload blocks")
			}
		}
	}
}
