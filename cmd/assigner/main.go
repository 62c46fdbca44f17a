package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/kalmanerror"
	"github.com/travigo/assigner/pkg/realtime/autoassign"
	"github.com/travigo/assigner/pkg/realtime/gtfsrt"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	// Schedule times without a block timezone are read in the agency timezone
	timezone := os.Getenv("ASSIGNER_TIMEZONE")
	if timezone == "" {
		timezone = "Europe/London"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", timezone).Msg("Failed to load timezone")
	}
	time.Local = loc

	if os.Getenv("ASSIGNER_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("ASSIGNER_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "assigner",
		Description: "Auto assigns vehicles to blocks and keeps the Kalman error cache",

		Commands: []*cli.Command{
			autoassign.RegisterCLI(),
			gtfsrt.RegisterCLI(),
			kalmanerror.RegisterCLI(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
