package matching

import (
	"context"
	"math"

	"github.com/travigo/assigner/pkg/ctdf"
)

// BlockLookup finds a block by identifier
type BlockLookup interface {
	Get(blockRef string) *ctdf.Block
}

// ScheduleTemporalMatcher scores spatial matches by how far the vehicle is from the scheduled time
// at the matched point, interpolated between the stop path departure and arrival
type ScheduleTemporalMatcher struct {
	blocks BlockLookup
}

func NewScheduleTemporalMatcher(blocks BlockLookup) *ScheduleTemporalMatcher {
	return &ScheduleTemporalMatcher{blocks: blocks}
}

func (m *ScheduleTemporalMatcher) GetBestTemporalMatchComparedToSchedule(ctx context.Context, report *ctdf.AVLReport, matches []*ctdf.SpatialMatch) (*ctdf.TemporalMatch, error) {
	var bestMatch *ctdf.TemporalMatch

	for _, spatialMatch := range matches {
		block := m.blocks.Get(spatialMatch.BlockRef)
		if block == nil {
			continue
		}

		expectedSeconds, ok := scheduledSecondsAt(block, spatialMatch)
		if !ok {
			continue
		}

		difference := ctdf.NewTemporalDifference(expectedSeconds - block.SecondsIntoServiceDay(report.RecordedAt))

		if bestMatch == nil || math.Abs(difference.Seconds()) < math.Abs(bestMatch.TemporalDifference.Seconds()) {
			bestMatch = &ctdf.TemporalMatch{
				SpatialMatch:       *spatialMatch,
				TemporalDifference: difference,
			}
		}
	}

	return bestMatch, nil
}

func scheduledSecondsAt(block *ctdf.Block, spatialMatch *ctdf.SpatialMatch) (int, bool) {
	if spatialMatch.TripIndex < 0 || spatialMatch.TripIndex >= len(block.Trips) {
		return 0, false
	}

	trip := block.Trips[spatialMatch.TripIndex]
	if spatialMatch.StopPathIndex < 0 || spatialMatch.StopPathIndex >= len(trip.Path) {
		return 0, false
	}

	stopPath := trip.Path[spatialMatch.StopPathIndex]

	originDeparture := trip.StartTime
	if spatialMatch.StopPathIndex > 0 {
		originDeparture = trip.Path[spatialMatch.StopPathIndex-1].DepartureTime
	}

	segments := len(stopPath.Track) - 1
	if segments < 1 {
		return stopPath.ArrivalTime, true
	}

	// How far we are along the stop path (% of segments, not metres)
	percentComplete := (float64(spatialMatch.SegmentIndex) + spatialMatch.SegmentFraction) / float64(segments)
	traversalTime := float64(stopPath.ArrivalTime - originDeparture)

	return originDeparture + int(math.Round(percentComplete*traversalTime)), true
}
