package ctdf

import "math"

const earthRadiusMetres = 6371000.0

type Location struct {
	Type        string    `json:"-" groups:"basic"`
	Coordinates []float64 `json:"coordinates" groups:"basic"`
}

func NewPoint(longitude float64, latitude float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{longitude, latitude},
	}
}

func (l *Location) Longitude() float64 {
	return l.Coordinates[0]
}

func (l *Location) Latitude() float64 {
	return l.Coordinates[1]
}

func (l *Location) IsPoint() bool {
	return len(l.Coordinates) == 2
}

// Distance returns the great-circle distance in metres between two points
func (l *Location) Distance(other *Location) float64 {
	lat1 := l.Latitude() * math.Pi / 180
	lat2 := other.Latitude() * math.Pi / 180
	deltaLat := (other.Latitude() - l.Latitude()) * math.Pi / 180
	deltaLon := (other.Longitude() - l.Longitude()) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMetres * c
}

// DistanceFromLine returns the distance in metres from the point to the segment a-b and how far along
// the segment (0-1) the closest point lies.
// Shameless taken 'inspiration' from https://stackoverflow.com/a/6853926
func (l *Location) DistanceFromLine(a Location, b Location) (float64, float64) {
	// Work in a local equirectangular projection so the result comes out in metres
	cosLat := math.Cos(l.Latitude() * math.Pi / 180)
	toX := func(lon float64) float64 { return lon * math.Pi / 180 * earthRadiusMetres * cosLat }
	toY := func(lat float64) float64 { return lat * math.Pi / 180 * earthRadiusMetres }

	A := toX(l.Coordinates[0]) - toX(a.Coordinates[0])
	B := toY(l.Coordinates[1]) - toY(a.Coordinates[1])
	C := toX(b.Coordinates[0]) - toX(a.Coordinates[0])
	D := toY(b.Coordinates[1]) - toY(a.Coordinates[1])

	dot := A*C + B*D
	lenSq := C*C + D*D

	param := -1.0
	if lenSq != 0 {
		param = dot / lenSq
	}

	var xx, yy float64

	if param < 0 {
		param = 0
		xx, yy = 0, 0
	} else if param > 1 {
		param = 1
		xx, yy = C, D
	} else {
		xx = param * C
		yy = param * D
	}

	dx := A - xx
	dy := B - yy
	return math.Sqrt(dx*dx + dy*dy), param
}
