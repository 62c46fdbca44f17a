package matching

import (
	"context"

	"github.com/travigo/assigner/pkg/ctdf"
)

const DefaultMaxDistanceMetres = 60.0

// TrackSpatialMatcher matches a report to the closest point of each stop path track that is within
// MaxDistanceMetres of it
type TrackSpatialMatcher struct {
	MaxDistanceMetres float64
}

func NewTrackSpatialMatcher(maxDistanceMetres float64) *TrackSpatialMatcher {
	if maxDistanceMetres <= 0 {
		maxDistanceMetres = DefaultMaxDistanceMetres
	}

	return &TrackSpatialMatcher{MaxDistanceMetres: maxDistanceMetres}
}

func (m *TrackSpatialMatcher) GetSpatialMatches(ctx context.Context, report *ctdf.AVLReport, trips []*ctdf.Trip, block *ctdf.Block) ([]*ctdf.SpatialMatch, error) {
	var matches []*ctdf.SpatialMatch

	if !report.Location.IsPoint() {
		return matches, nil
	}

	for _, trip := range trips {
		tripIndex := block.TripIndex(trip.PrimaryIdentifier)

		for stopPathIndex, stopPath := range trip.Path {
			closestDistance := m.MaxDistanceMetres
			var closestMatch *ctdf.SpatialMatch

			for segmentIndex := 0; segmentIndex < len(stopPath.Track)-1; segmentIndex++ {
				a := stopPath.Track[segmentIndex]
				b := stopPath.Track[segmentIndex+1]

				distance, fraction := report.Location.DistanceFromLine(a, b)
				if distance > closestDistance {
					continue
				}

				closestDistance = distance
				closestMatch = &ctdf.SpatialMatch{
					VehicleID:            report.VehicleID,
					BlockRef:             block.PrimaryIdentifier,
					TripRef:              trip.PrimaryIdentifier,
					TripIndex:            tripIndex,
					StopPathIndex:        stopPathIndex,
					SegmentIndex:         segmentIndex,
					DistanceToSegment:    distance,
					DistanceAlongSegment: fraction * a.Distance(&b),
					SegmentFraction:      fraction,
					AtLayover:            stopPath.Layover,
					RecordedAt:           report.RecordedAt,
				}
			}

			if closestMatch != nil {
				matches = append(matches, closestMatch)
			}
		}
	}

	return matches, nil
}
