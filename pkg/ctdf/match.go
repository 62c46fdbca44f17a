package ctdf

import (
	"fmt"
	"time"
)

// SpatialMatch is a candidate position of a report along one of a blocks trips
type SpatialMatch struct {
	VehicleID string
	BlockRef  string
	TripRef   string

	TripIndex         int
	StopPathIndex     int
	SegmentIndex      int
	DistanceToSegment float64
	// Metres along the matched segment from its start
	DistanceAlongSegment float64
	// Fraction (0-1) of the matched segment that has been travelled
	SegmentFraction float64

	AtLayover bool

	RecordedAt time.Time
}

func (m *SpatialMatch) String() string {
	return fmt.Sprintf("SpatialMatch[vehicleId=%s, blockId=%s, tripId=%s, tripIndex=%d, stopPathIndex=%d, segmentIndex=%d, distanceToSegment=%.1f, distanceAlongSegment=%.1f]",
		m.VehicleID, m.BlockRef, m.TripRef, m.TripIndex, m.StopPathIndex, m.SegmentIndex, m.DistanceToSegment, m.DistanceAlongSegment)
}

// LessThanOrEqualTo orders matches along the same block
func (m *SpatialMatch) LessThanOrEqualTo(other *SpatialMatch) bool {
	if m.TripIndex != other.TripIndex {
		return m.TripIndex < other.TripIndex
	}
	if m.StopPathIndex != other.StopPathIndex {
		return m.StopPathIndex < other.StopPathIndex
	}
	if m.SegmentIndex != other.SegmentIndex {
		return m.SegmentIndex < other.SegmentIndex
	}

	return m.DistanceAlongSegment <= other.DistanceAlongSegment
}

// TemporalDifference is scheduled time minus actual time. Positive means the vehicle is early.
type TemporalDifference time.Duration

func NewTemporalDifference(seconds int) TemporalDifference {
	return TemporalDifference(time.Duration(seconds) * time.Second)
}

func (d TemporalDifference) Seconds() float64 {
	return time.Duration(d).Seconds()
}

func (d TemporalDifference) IsEarly() bool {
	return d > 0
}

func (d TemporalDifference) IsLate() bool {
	return d < 0
}

// IsWithinBounds reports whether the vehicle is no more than allowableEarlySeconds early and no more
// than allowableLateSeconds late
func (d TemporalDifference) IsWithinBounds(allowableEarlySeconds int, allowableLateSeconds int) bool {
	early := time.Duration(allowableEarlySeconds) * time.Second
	late := time.Duration(allowableLateSeconds) * time.Second

	return time.Duration(d) <= early && time.Duration(d) >= -late
}

func (d TemporalDifference) String() string {
	if d.IsEarly() {
		return fmt.Sprintf("%.0fs early", d.Seconds())
	} else if d.IsLate() {
		return fmt.Sprintf("%.0fs late", -d.Seconds())
	}

	return "on time"
}

// TemporalMatch is a SpatialMatch scored against the schedule
type TemporalMatch struct {
	SpatialMatch
	TemporalDifference TemporalDifference
}

func (m *TemporalMatch) LessThanOrEqualTo(other *TemporalMatch) bool {
	return m.SpatialMatch.LessThanOrEqualTo(&other.SpatialMatch)
}

func (m *TemporalMatch) String() string {
	return fmt.Sprintf("TemporalMatch[%s, temporalDifference=%s]", m.SpatialMatch.String(), m.TemporalDifference)
}
