package autoassign

import (
	"context"

	"github.com/travigo/assigner/pkg/autoassigner"
	"github.com/travigo/assigner/pkg/blocks"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/matching"
	"github.com/travigo/assigner/pkg/vehiclestate"
)

// NewAssigner wires an engine backed by the block registry and a fresh vehicle registry
func NewAssigner(config autoassigner.Config, registry *blocks.Registry, claimer autoassigner.BlockClaimer) *Assigner {
	vehicles := vehiclestate.NewManager(vehiclestate.DefaultHistorySize)

	engine := autoassigner.NewEngine(
		config,
		registry,
		vehicles,
		matching.NewTrackSpatialMatcher(matching.DefaultMaxDistanceMetres),
		matching.NewScheduleTemporalMatcher(registry),
	)

	return &Assigner{
		Engine:   engine,
		Vehicles: vehicles,
		Blocks:   registry,
		Claimer:  claimer,
	}
}

// Replay runs reports through an in memory assigner in order and returns every binding attempt
func Replay(ctx context.Context, config autoassigner.Config, registry *blocks.Registry, reports []*ctdf.AVLReport) ([]AutoAssignElasticEvent, *vehiclestate.Manager, error) {
	assigner := NewAssigner(config, registry, autoassigner.NewMemoryClaimer())

	var events []AutoAssignElasticEvent
	assigner.RecordEvent = func(event AutoAssignElasticEvent) {
		events = append(events, event)
	}

	for _, report := range reports {
		if err := assigner.ProcessReport(ctx, report); err != nil {
			return events, assigner.Vehicles, err
		}
	}

	return events, assigner.Vehicles, nil
}
