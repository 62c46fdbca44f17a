package gtfsrt

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/travigo/assigner/pkg/realtime/autoassign"
	"github.com/travigo/assigner/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "gtfsrt",
		Usage: "Ingest GTFS-RT vehicle positions into the auto assign queue",
		Subcommands: []*cli.Command{
			{
				Name:  "poll",
				Usage: "poll a GTFS-RT vehicle positions feed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "url",
						Usage:    "URL of the vehicle positions feed",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "time between polls",
						Value: 30 * time.Second,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "source name recorded on each report",
						Value: "gtfs-rt",
					},
				},
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					queue, err := redis_client.QueueConnection.OpenQueue(autoassign.QueueName)
					if err != nil {
						return err
					}

					ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					poller := &Poller{
						URL:      c.String("url"),
						Interval: c.Duration("interval"),
						Source:   c.String("source"),
						Queue:    queue,
						Client:   &http.Client{Timeout: 30 * time.Second},
					}

					return poller.Run(ctx)
				},
			},
		},
	}
}
