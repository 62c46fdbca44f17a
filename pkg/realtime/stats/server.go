package stats

import (
	"context"
	"errors"

	"github.com/adjust/rmq/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/kalmanerror"
	"github.com/travigo/assigner/pkg/realtime/monitoring"
	"github.com/travigo/assigner/pkg/vehiclestate"
)

// HealthCheck reports whether a backing service can be reached
type HealthCheck func(ctx context.Context) error

// Server exposes the assigners live state. Any of the fields can be left nil and the matching
// endpoint reports it as unavailable.
type Server struct {
	QueueConnection rmq.Connection
	Vehicles        *vehiclestate.Manager
	KalmanErrors    *kalmanerror.Cache
	QueueMonitor    *monitoring.QueueMonitor

	HealthChecks map[string]HealthCheck
}

func (s *Server) App() *fiber.App {
	webApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	webApp.Use(newRequestLogger())

	webApp.Get("/health", s.health)
	webApp.Get("/realtime-stats/overview", s.queueOverview)
	webApp.Get("/kalman-errors", s.kalmanErrors)
	webApp.Get("/vehicles", s.vehicles)
	webApp.Get("/monitoring", s.monitoring)

	return webApp
}

func (s *Server) Listen(listen string) error {
	log.Info().Msgf("Stats server listening on %s", listen)

	return s.App().Listen(listen)
}

func (s *Server) health(c *fiber.Ctx) error {
	for name, check := range s.HealthChecks {
		if err := check(c.Context()); err != nil {
			c.Status(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error":   err.Error(),
				"service": name,
			})
		}
	}

	return c.SendString("OK")
}

func (s *Server) queueOverview(c *fiber.Ctx) error {
	if s.QueueConnection == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "queue connection not configured")
	}

	queues, err := s.QueueConnection.GetOpenQueues()
	if err != nil {
		return err
	}

	stats, err := s.QueueConnection.CollectStats(queues)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(stats.GetHtml(c.Query("layout"), c.Query("refresh")))
}

type kalmanErrorEntry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

func (s *Server) kalmanErrors(c *fiber.Ctx) error {
	if s.KalmanErrors == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "kalman error cache not configured")
	}

	entries := []kalmanErrorEntry{}
	s.KalmanErrors.Dump(func(key ctdf.Indices, value float64) {
		entries = append(entries, kalmanErrorEntry{Key: key.String(), Value: value})
	})

	return c.JSON(fiber.Map{
		"count":  len(entries),
		"errors": entries,
	})
}

func (s *Server) vehicles(c *fiber.Ctx) error {
	if s.Vehicles == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "vehicle registry not configured")
	}

	groups := []string{"basic"}
	if c.QueryBool("detailed") {
		groups = append(groups, "detailed")
	}

	var snapshots []vehiclestate.Snapshot
	for _, vehicleState := range s.Vehicles.VehicleStates() {
		if blockRef := c.Query("block"); blockRef != "" && vehicleState.BlockRef() != blockRef {
			continue
		}

		snapshots = append(snapshots, vehicleState.Snapshot())
	}

	vehiclesReduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, snapshots)
	if err != nil {
		return errors.New("sheriff could not reduce vehicles")
	}

	return c.JSON(vehiclesReduced)
}

func (s *Server) monitoring(c *fiber.Ctx) error {
	if s.QueueMonitor == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "queue monitor not configured")
	}

	return c.JSON(s.QueueMonitor.Status())
}
