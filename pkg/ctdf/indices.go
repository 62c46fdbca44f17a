package ctdf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Indices identifies a predictable unit of travel time: a segment on a stop path of a trip pattern
type Indices struct {
	TripPatternRef string
	StopPathIndex  int
	SegmentIndex   int
}

const indicesSeparator = "|"

// String gives the stable form used as a key in the durable stores
func (i Indices) String() string {
	return fmt.Sprintf("%s%s%d%s%d", i.TripPatternRef, indicesSeparator, i.StopPathIndex, indicesSeparator, i.SegmentIndex)
}

func ParseIndices(value string) (Indices, error) {
	// Trip pattern refs may themselves contain the separator so split from the right
	segmentSplit := strings.LastIndex(value, indicesSeparator)
	if segmentSplit < 0 {
		return Indices{}, errors.New("malformed indices: " + value)
	}
	stopPathSplit := strings.LastIndex(value[:segmentSplit], indicesSeparator)
	if stopPathSplit < 0 {
		return Indices{}, errors.New("malformed indices: " + value)
	}

	stopPathIndex, err := strconv.Atoi(value[stopPathSplit+1 : segmentSplit])
	if err != nil {
		return Indices{}, fmt.Errorf("malformed stop path index in %s: %w", value, err)
	}
	segmentIndex, err := strconv.Atoi(value[segmentSplit+1:])
	if err != nil {
		return Indices{}, fmt.Errorf("malformed segment index in %s: %w", value, err)
	}

	return Indices{
		TripPatternRef: value[:stopPathSplit],
		StopPathIndex:  stopPathIndex,
		SegmentIndex:   segmentIndex,
	}, nil
}
