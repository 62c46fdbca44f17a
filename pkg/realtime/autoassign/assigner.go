package autoassign

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/autoassigner"
	"github.com/travigo/assigner/pkg/blocks"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/vehiclestate"
)

// Assigner is the binding authority. It feeds reports into the vehicle registry, asks the engine
// for a decision and performs the binding, claiming the block first so only one vehicle gets it.
type Assigner struct {
	Engine   *autoassigner.Engine
	Vehicles *vehiclestate.Manager
	Blocks   *blocks.Registry
	Claimer  autoassigner.BlockClaimer

	AssignmentCache AssignmentCache
	RecordEvent     EventRecorder

	vehicleLocks sync.Map
}

// lockVehicle serialises processing of a single vehicle across consumers
func (a *Assigner) lockVehicle(vehicleID string) func() {
	lock, _ := a.vehicleLocks.LoadOrStore(vehicleID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)

	mutex.Lock()
	return mutex.Unlock
}

// ProcessReport handles a single report. Reports for the same vehicle are processed one at a time
// and anything not newer than the vehicles current report is ignored.
func (a *Assigner) ProcessReport(ctx context.Context, report *ctdf.AVLReport) error {
	unlock := a.lockVehicle(report.VehicleID)
	defer unlock()

	vehicleState, newer := a.Vehicles.Update(report)
	if !newer {
		log.Trace().Str("vehicleId", report.VehicleID).Msg("Ignoring AVL report not newer than current")
		return nil
	}

	if vehicleState.IsAssigned() {
		if a.blockStillActive(vehicleState.BlockRef(), report.RecordedAt) {
			return nil
		}

		a.unassign(ctx, vehicleState, "Block no longer active, unassigned vehicle")
	}

	if blockRef := a.cachedAssignment(ctx, report.VehicleID); blockRef != "" {
		if a.blockStillActive(blockRef, report.RecordedAt) {
			return a.bind(ctx, report, blockRef, "", AssignmentSourceCache, 0)
		}
	}

	config := a.Engine.Config()

	if report.AssignmentID != "" && !config.IgnoreIncomingAssignments {
		if a.blockStillActive(report.AssignmentID, report.RecordedAt) {
			return a.bind(ctx, report, report.AssignmentID, "", AssignmentSourceFeed, 0)
		}

		log.Debug().Str("vehicleId", report.VehicleID).Str("assignmentId", report.AssignmentID).Msg("Feed assignment is not an active block")
	}

	match, err := a.Engine.AssignVehicleToBlockIfEnabled(ctx, vehicleState)
	if err != nil {
		return err
	}
	if match == nil {
		return nil
	}

	return a.bind(ctx, report, match.BlockRef, match.TripRef, AssignmentSourceAuto, match.TemporalDifference.Seconds())
}

func (a *Assigner) bind(ctx context.Context, report *ctdf.AVLReport, blockRef string, tripRef string, source AssignmentSource, temporalDifference float64) error {
	event := AutoAssignElasticEvent{
		Timestamp:                 time.Now(),
		VehicleID:                 report.VehicleID,
		BlockRef:                  blockRef,
		TripRef:                   tripRef,
		Source:                    source,
		TemporalDifferenceSeconds: temporalDifference,
	}

	err := a.Claimer.Claim(ctx, blockRef, report.VehicleID)
	if errors.Is(err, autoassigner.ErrBlockClaimed) {
		log.Info().Str("vehicleId", report.VehicleID).Str("blockId", blockRef).Str("source", string(source)).Msg("Block already claimed by another vehicle")

		event.FailReason = "BLOCK_CLAIMED"
		a.recordEvent(event)

		return nil
	} else if err != nil {
		return err
	}

	a.Vehicles.SetBlockAssignment(report.VehicleID, blockRef, report.RecordedAt)

	if a.AssignmentCache != nil {
		if err := a.AssignmentCache.Set(ctx, report.VehicleID, blockRef); err != nil {
			log.Error().Err(err).Str("vehicleId", report.VehicleID).Msg("Failed to cache block assignment")
		}
	}

	log.Info().Str("vehicleId", report.VehicleID).Str("blockId", blockRef).Str("source", string(source)).Msg("Assigned vehicle to block")

	event.Success = true
	a.recordEvent(event)

	return nil
}

// ReleaseStaleAssignments unbinds real vehicles that have not reported for longer than the configured
// stale assignment age, so their blocks can be auto assigned again. Returns how many were released.
func (a *Assigner) ReleaseStaleAssignments(ctx context.Context, now time.Time) int {
	maxAge := time.Duration(a.Engine.Config().StaleAssignmentSeconds) * time.Second
	if maxAge <= 0 {
		return 0
	}

	released := 0

	for _, vehicleState := range a.Vehicles.VehicleStates() {
		if !vehicleState.IsAssigned() || vehicleState.IsForSchedBasedPreds() {
			continue
		}

		unlock := a.lockVehicle(vehicleState.VehicleID())

		report := vehicleState.AVLReport()
		if vehicleState.IsAssigned() && (report == nil || now.Sub(report.RecordedAt) > maxAge) {
			a.unassign(ctx, vehicleState, "Vehicle stopped reporting, unassigned from block")
			released++
		}

		unlock()
	}

	return released
}

// RunStaleAssignmentReleaser calls ReleaseStaleAssignments every interval until ctx is done
func (a *Assigner) RunStaleAssignmentReleaser(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if released := a.ReleaseStaleAssignments(ctx, now); released > 0 {
				log.Info().Int("released", released).Msg("Released stale block assignments")
			}
		}
	}
}

func (a *Assigner) unassign(ctx context.Context, vehicleState *vehiclestate.VehicleState, reason string) {
	blockRef := vehicleState.BlockRef()

	a.Vehicles.UnassignBlock(vehicleState.VehicleID())

	if err := a.Claimer.Release(ctx, blockRef, vehicleState.VehicleID()); err != nil {
		log.Error().Err(err).Str("vehicleId", vehicleState.VehicleID()).Str("blockId", blockRef).Msg("Failed to release block claim")
	}

	if a.AssignmentCache != nil {
		if err := a.AssignmentCache.Delete(ctx, vehicleState.VehicleID()); err != nil {
			log.Error().Err(err).Str("vehicleId", vehicleState.VehicleID()).Msg("Failed to clear cached block assignment")
		}
	}

	log.Info().Str("vehicleId", vehicleState.VehicleID()).Str("blockId", blockRef).Msg(reason)
}

func (a *Assigner) cachedAssignment(ctx context.Context, vehicleID string) string {
	if a.AssignmentCache == nil {
		return ""
	}

	return a.AssignmentCache.Get(ctx, vehicleID)
}

func (a *Assigner) blockStillActive(blockRef string, t time.Time) bool {
	block := a.Blocks.Get(blockRef)

	return block != nil && block.IsActive(t)
}

func (a *Assigner) recordEvent(event AutoAssignElasticEvent) {
	if a.RecordEvent != nil {
		a.RecordEvent(event)
	}
}
