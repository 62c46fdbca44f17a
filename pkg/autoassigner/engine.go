package autoassigner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/util"
	"github.com/travigo/assigner/pkg/vehiclestate"
)

// ActiveBlocks lists the blocks in service at a point in time
type ActiveBlocks interface {
	GetCurrentlyActiveBlocks(ctx context.Context, t time.Time) ([]*ctdf.Block, error)
}

// VehicleOccupancy answers which vehicles are bound to a block and what those vehicles are
type VehicleOccupancy interface {
	GetVehiclesByBlockID(ctx context.Context, blockRef string) ([]string, error)
	GetVehicleState(ctx context.Context, vehicleID string) (*vehiclestate.VehicleState, error)
}

// SpatialMatcher finds where along the trips of a block a report could be. Matches must carry the
// block and trip they were made against.
type SpatialMatcher interface {
	GetSpatialMatches(ctx context.Context, report *ctdf.AVLReport, trips []*ctdf.Trip, block *ctdf.Block) ([]*ctdf.SpatialMatch, error)
}

type TemporalMatcher interface {
	// GetBestTemporalMatchComparedToSchedule returns nil if none of the matches can be scored
	GetBestTemporalMatchComparedToSchedule(ctx context.Context, report *ctdf.AVLReport, matches []*ctdf.SpatialMatch) (*ctdf.TemporalMatch, error)
}

// Engine decides whether a vehicle can be automatically assigned to an active block that has no
// real vehicle on it. It never binds anything itself, the caller does that with the returned match.
type Engine struct {
	activeBlocks     ActiveBlocks
	vehicleOccupancy VehicleOccupancy
	spatialMatcher   SpatialMatcher
	temporalMatcher  TemporalMatcher

	config atomic.Pointer[Config]
}

func NewEngine(config Config, activeBlocks ActiveBlocks, vehicleOccupancy VehicleOccupancy, spatialMatcher SpatialMatcher, temporalMatcher TemporalMatcher) *Engine {
	engine := &Engine{
		activeBlocks:     activeBlocks,
		vehicleOccupancy: vehicleOccupancy,
		spatialMatcher:   spatialMatcher,
		temporalMatcher:  temporalMatcher,
	}
	engine.SetConfig(config)

	return engine
}

func (e *Engine) Config() Config {
	return *e.config.Load()
}

func (e *Engine) SetConfig(config Config) {
	e.config.Store(&config)
}

// AssignVehicleToBlockIfEnabled returns the match for the single active unassigned block the vehicle
// matches to. It returns nil when the engine is disabled, when there is no match, or when the vehicle
// matches more than one block since that is ambiguous. Errors only come from the collaborators.
func (e *Engine) AssignVehicleToBlockIfEnabled(ctx context.Context, vehicleState *vehiclestate.VehicleState) (*ctdf.TemporalMatch, error) {
	config := e.Config()

	if !config.Enabled {
		log.Trace().Str("vehicleId", vehicleState.VehicleID()).Msg("Auto assigner disabled")
		return nil, nil
	}

	vehicleID := vehicleState.VehicleID()
	log.Debug().Str("vehicleId", vehicleID).Msg("Determining auto assignment match")

	matches, err := e.determineTemporalMatches(ctx, config, vehicleState)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		log.Debug().Str("vehicleId", vehicleID).Msg("Found no valid matches")
		return nil, nil
	}

	if len(matches) > 1 {
		log.Debug().Str("vehicleId", vehicleID).Int("matches", len(matches)).Interface("blocks", matchedBlockRefs(matches)).Msg("Found multiple matches, ambiguous so not assigning")
		return nil, nil
	}

	log.Info().Str("vehicleId", vehicleID).Str("blockId", matches[0].BlockRef).Str("match", matches[0].String()).Msg("Found single valid match")

	return matches[0], nil
}

// determineTemporalMatches matches the current report against every unassigned active block. A block
// only counts if the previous far enough away report also matches it, and matches no further along,
// so vehicles crossing a route or going the other way are not picked up.
func (e *Engine) determineTemporalMatches(ctx context.Context, config Config, vehicleState *vehiclestate.VehicleState) ([]*ctdf.TemporalMatch, error) {
	var validMatches []*ctdf.TemporalMatch

	avlReport, previousAVLReport := vehicleState.ReportsForMatching(config.MinDisplacementMeters)
	if avlReport == nil {
		return validMatches, nil
	}

	if previousAVLReport == nil {
		log.Debug().
			Str("vehicleId", vehicleState.VehicleID()).
			Float64("minDistance", config.MinDisplacementMeters).
			Str("avlReport", avlReport.String()).
			Msg("Could not find previous AVL report far enough away from current report")
		return validMatches, nil
	}

	unassignedBlocks, err := e.unassignedBlocks(ctx, avlReport.RecordedAt)
	if err != nil {
		return nil, err
	}

	for _, block := range unassignedBlocks {
		log.Trace().Str("vehicleId", vehicleState.VehicleID()).Str("block", block.String()).Msg("Examining block for match")

		bestMatch, err := e.bestTemporalMatch(ctx, config, avlReport, block)
		if err != nil {
			return nil, err
		}
		if bestMatch == nil {
			continue
		}

		log.Debug().
			Str("vehicleId", vehicleState.VehicleID()).
			Str("blockId", block.PrimaryIdentifier).
			Str("bestMatch", bestMatch.String()).
			Msg("Found match for AVL report")

		previousBestMatch, err := e.bestTemporalMatch(ctx, config, previousAVLReport, block)
		if err != nil {
			return nil, err
		}

		if previousBestMatch != nil && previousBestMatch.LessThanOrEqualTo(bestMatch) {
			log.Debug().
				Str("vehicleId", vehicleState.VehicleID()).
				Str("blockId", block.PrimaryIdentifier).
				Str("previousMatch", previousBestMatch.String()).
				Msg("Previous AVL report also matches")

			validMatches = append(validMatches, bestMatch)
		} else {
			log.Debug().
				Str("vehicleId", vehicleState.VehicleID()).
				Str("blockId", block.PrimaryIdentifier).
				Str("previousAVLReport", previousAVLReport.String()).
				Msg("Did not get valid match for previous AVL report")
		}
	}

	return validMatches, nil
}

// bestTemporalMatch returns the best non layover match of the report to the block, or nil if there
// is none inside the allowed early/late window
func (e *Engine) bestTemporalMatch(ctx context.Context, config Config, avlReport *ctdf.AVLReport, block *ctdf.Block) (*ctdf.TemporalMatch, error) {
	potentialTrips := block.TripsCurrentlyActive(avlReport, config.AllowableEarlySeconds, config.AllowableLateSeconds)
	if len(potentialTrips) == 0 {
		return nil, nil
	}

	spatialMatches, err := e.spatialMatcher.GetSpatialMatches(ctx, avlReport, potentialTrips, block)
	if err != nil {
		return nil, err
	}

	// Layover matches are far too lenient to count as a real spatial match
	util.InPlaceFilter(&spatialMatches, func(spatialMatch *ctdf.SpatialMatch) bool {
		return !spatialMatch.AtLayover
	})
	if len(spatialMatches) == 0 {
		return nil, nil
	}

	bestMatch, err := e.temporalMatcher.GetBestTemporalMatchComparedToSchedule(ctx, avlReport, spatialMatches)
	if err != nil {
		return nil, err
	}
	if bestMatch == nil {
		return nil, nil
	}

	if !bestMatch.TemporalDifference.IsWithinBounds(config.AllowableEarlySeconds, config.AllowableLateSeconds) {
		log.Debug().
			Str("vehicleId", avlReport.VehicleID).
			Str("blockId", block.PrimaryIdentifier).
			Str("temporalDifference", bestMatch.TemporalDifference.String()).
			Msg("Temporal difference not within allowed bounds")
		return nil, nil
	}

	return bestMatch, nil
}

func (e *Engine) unassignedBlocks(ctx context.Context, t time.Time) ([]*ctdf.Block, error) {
	activeBlocks, err := e.activeBlocks.GetCurrentlyActiveBlocks(ctx, t)
	if err != nil {
		return nil, err
	}

	var currentlyUnassignedBlocks []*ctdf.Block
	for _, block := range activeBlocks {
		unassigned, err := e.isBlockUnassigned(ctx, block.PrimaryIdentifier)
		if err != nil {
			return nil, err
		}

		if unassigned {
			currentlyUnassignedBlocks = append(currentlyUnassignedBlocks, block)
		}
	}

	return currentlyUnassignedBlocks, nil
}

// isBlockUnassigned is true when no real vehicle is bound to the block. Schedule based placeholder
// vehicles do not count since a real vehicle should still replace them.
func (e *Engine) isBlockUnassigned(ctx context.Context, blockRef string) (bool, error) {
	vehicleIDs, err := e.vehicleOccupancy.GetVehiclesByBlockID(ctx, blockRef)
	if err != nil {
		return false, err
	}

	for _, vehicleID := range vehicleIDs {
		vehicleState, err := e.vehicleOccupancy.GetVehicleState(ctx, vehicleID)
		if err != nil {
			return false, err
		}

		// A bound vehicle we know nothing about is treated as a real one
		if vehicleState == nil || !vehicleState.IsForSchedBasedPreds() {
			return false, nil
		}
	}

	return true, nil
}

func matchedBlockRefs(matches []*ctdf.TemporalMatch) []string {
	blockRefs := make([]string, 0, len(matches))
	for _, match := range matches {
		blockRefs = append(blockRefs, match.BlockRef)
	}

	return blockRefs
}
