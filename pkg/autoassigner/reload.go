package autoassigner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// WatchConfig reloads the engines configuration from path every time the process receives SIGHUP.
// A config that fails to load leaves the current one in place.
func WatchConfig(ctx context.Context, path string, engine *Engine) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP)

	go func() {
		defer signal.Stop(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				config, err := LoadConfig(path)
				if err != nil {
					log.Error().Err(err).Str("path", path).Msg("Failed to reload auto assigner config")
					continue
				}

				engine.SetConfig(config)
				log.Info().Interface("config", config).Msg("Reloaded auto assigner config")
			}
		}
	}()
}
