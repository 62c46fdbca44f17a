package ctdf

import "testing"

func TestTemporalDifferenceIsWithinBounds(t *testing.T) {
	tests := []struct {
		seconds  int
		expected bool
	}{
		{seconds: 0, expected: true},
		{seconds: 180, expected: true},
		{seconds: 181, expected: false},
		{seconds: -300, expected: true},
		{seconds: -301, expected: false},
	}

	for _, test := range tests {
		difference := NewTemporalDifference(test.seconds)

		if difference.IsWithinBounds(180, 300) != test.expected {
			t.Errorf("%s: expected within bounds %t", difference, test.expected)
		}
	}
}

func TestTemporalDifferenceDirection(t *testing.T) {
	if !NewTemporalDifference(60).IsEarly() {
		t.Error("positive difference should be early")
	}
	if !NewTemporalDifference(-60).IsLate() {
		t.Error("negative difference should be late")
	}
	if NewTemporalDifference(-60).String() != "60s late" {
		t.Errorf("unexpected string %s", NewTemporalDifference(-60).String())
	}
	if NewTemporalDifference(0).String() != "on time" {
		t.Errorf("unexpected string %s", NewTemporalDifference(0).String())
	}
}

func TestSpatialMatchLessThanOrEqualTo(t *testing.T) {
	base := SpatialMatch{TripIndex: 1, StopPathIndex: 2, SegmentIndex: 3, DistanceAlongSegment: 10}

	tests := []struct {
		name     string
		other    SpatialMatch
		expected bool
	}{
		{name: "equal", other: base, expected: true},
		{name: "later trip", other: SpatialMatch{TripIndex: 2}, expected: true},
		{name: "earlier trip", other: SpatialMatch{TripIndex: 0, StopPathIndex: 9}, expected: false},
		{name: "later stop path", other: SpatialMatch{TripIndex: 1, StopPathIndex: 3}, expected: true},
		{name: "earlier segment", other: SpatialMatch{TripIndex: 1, StopPathIndex: 2, SegmentIndex: 2, DistanceAlongSegment: 50}, expected: false},
		{name: "further along segment", other: SpatialMatch{TripIndex: 1, StopPathIndex: 2, SegmentIndex: 3, DistanceAlongSegment: 11}, expected: true},
		{name: "behind on segment", other: SpatialMatch{TripIndex: 1, StopPathIndex: 2, SegmentIndex: 3, DistanceAlongSegment: 9}, expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if base.LessThanOrEqualTo(&test.other) != test.expected {
				t.Errorf("expected %t", test.expected)
			}
		})
	}
}

func TestParseIndices(t *testing.T) {
	indices := Indices{TripPatternRef: "route|1|outbound", StopPathIndex: 4, SegmentIndex: 2}

	parsed, err := ParseIndices(indices.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != indices {
		t.Errorf("expected %v, got %v", indices, parsed)
	}

	for _, malformed := range []string{"", "pattern", "pattern|1", "pattern|a|2", "pattern|1|b"} {
		if _, err := ParseIndices(malformed); err == nil {
			t.Errorf("expected error parsing %q", malformed)
		}
	}
}
