package ctdf

import (
	"fmt"
	"sync"
	"time"
)

// Block is a schedulable unit of service, typically one vehicle's work for a day
type Block struct {
	PrimaryIdentifier string `groups:"basic" yaml:"id"`
	ServiceDate       string `groups:"basic" yaml:"servicedate"`

	// Timezone the schedule times are in, the process local timezone when empty
	Timezone string `groups:"basic" yaml:"timezone"`

	StartTime time.Time `groups:"basic" yaml:"start"`
	EndTime   time.Time `groups:"basic" yaml:"end"`

	Trips []*Trip `groups:"detailed" yaml:"trips"`
}

type Trip struct {
	PrimaryIdentifier string `groups:"basic" yaml:"id"`
	TripPatternRef    string `groups:"basic" yaml:"trippattern"`

	// Scheduled start and end of the trip in seconds into the service day
	StartTime int `groups:"basic" yaml:"start"`
	EndTime   int `groups:"basic" yaml:"end"`

	Path []*StopPath `groups:"detailed" yaml:"path"`
}

// StopPath is the leg of a trip that ends at StopRef
type StopPath struct {
	StopRef string `groups:"basic" yaml:"stop"`

	// Scheduled times at StopRef in seconds into the service day
	ArrivalTime   int `groups:"basic" yaml:"arrival"`
	DepartureTime int `groups:"basic" yaml:"departure"`

	Track []Location `groups:"detailed" yaml:"-"`

	// YAML fixtures give the track as [lon, lat] pairs
	TrackPoints [][]float64 `groups:"-" bson:"-" yaml:"track"`

	Layover bool `groups:"basic" yaml:"layover"`
}

func (b *Block) String() string {
	return fmt.Sprintf("Block[id=%s, serviceDate=%s, trips=%d]", b.PrimaryIdentifier, b.ServiceDate, len(b.Trips))
}

// IsActive reports whether t is inside the blocks service window
func (b *Block) IsActive(t time.Time) bool {
	return !t.Before(b.StartTime) && !t.After(b.EndTime)
}

var serviceLocations sync.Map

// ServiceLocation returns the timezone the blocks schedule times are in
func (b *Block) ServiceLocation() *time.Location {
	if b.Timezone == "" {
		return time.Local
	}

	if loc, exists := serviceLocations.Load(b.Timezone); exists {
		return loc.(*time.Location)
	}

	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	serviceLocations.Store(b.Timezone, loc)

	return loc
}

// SecondsIntoServiceDay returns how far t is into the blocks service day. Like GTFS it counts from
// noon minus 12 hours on the service date, so it is wall clock time on daylight saving change days
// and runs past 86400 after midnight. Without a service date the date of t is used.
func (b *Block) SecondsIntoServiceDay(t time.Time) int {
	loc := b.ServiceLocation()
	local := t.In(loc)

	year, month, day := local.Date()
	if serviceDate, err := time.ParseInLocation(time.DateOnly, b.ServiceDate, loc); err == nil {
		year, month, day = serviceDate.Date()
	}

	dayStart := time.Date(year, month, day, 12, 0, 0, 0, loc).Add(-12 * time.Hour)

	return int(local.Sub(dayStart) / time.Second)
}

// TripsCurrentlyActive returns the trips whose scheduled window covers the report, allowing for the
// vehicle running early into the next trip or late out of the previous one.
func (b *Block) TripsCurrentlyActive(report *AVLReport, allowableEarly int, allowableLate int) []*Trip {
	secondsIntoDay := b.SecondsIntoServiceDay(report.RecordedAt)

	var trips []*Trip
	for _, trip := range b.Trips {
		if secondsIntoDay >= trip.StartTime-allowableEarly && secondsIntoDay <= trip.EndTime+allowableLate {
			trips = append(trips, trip)
		}
	}

	return trips
}

// TripIndex returns the position of the trip in the block or -1
func (b *Block) TripIndex(tripRef string) int {
	for i, trip := range b.Trips {
		if trip.PrimaryIdentifier == tripRef {
			return i
		}
	}

	return -1
}

// ResolveTracks fills Track from TrackPoints for blocks loaded from fixtures
func (b *Block) ResolveTracks() {
	for _, trip := range b.Trips {
		for _, stopPath := range trip.Path {
			if len(stopPath.Track) > 0 || len(stopPath.TrackPoints) == 0 {
				continue
			}

			for _, point := range stopPath.TrackPoints {
				if len(point) == 2 {
					stopPath.Track = append(stopPath.Track, NewPoint(point[0], point[1]))
				}
			}
		}
	}
}
