package ctdf

import (
	"fmt"
	"time"
)

// AVLReport is a single position fix for a vehicle
type AVLReport struct {
	VehicleID  string    `groups:"basic"`
	RecordedAt time.Time `groups:"basic"`

	Location Location `groups:"basic"`
	Speed    float64  `groups:"detailed"`
	Heading  float64  `groups:"detailed"`

	// AssignmentID is the trip or block reference supplied by the feed, if any
	AssignmentID string `groups:"detailed"`

	Source string `groups:"internal"`
}

func (r *AVLReport) String() string {
	return fmt.Sprintf("AVLReport[vehicleId=%s, time=%s, location=%v, speed=%.1f, heading=%.1f]",
		r.VehicleID, r.RecordedAt.Format(time.RFC3339), r.Location.Coordinates, r.Speed, r.Heading)
}
