package autoassign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/travigo/assigner/pkg/elastic_client"
)

type AssignmentSource string

const (
	AssignmentSourceAuto  AssignmentSource = "Auto"
	AssignmentSourceFeed  AssignmentSource = "Feed"
	AssignmentSourceCache AssignmentSource = "Cache"
)

type AutoAssignElasticEvent struct {
	ID        string
	Timestamp time.Time

	Success    bool
	FailReason string

	VehicleID string
	BlockRef  string
	TripRef   string

	Source                    AssignmentSource
	TemporalDifferenceSeconds float64
}

// EventRecorder receives every binding attempt
type EventRecorder func(event AutoAssignElasticEvent)

func RecordElasticEvent(event AutoAssignElasticEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	yearNumber, weekNumber := event.Timestamp.ISOWeek()
	indexName := fmt.Sprintf("realtime-autoassign-events-%d-%d", yearNumber, weekNumber)

	elasticEvent, _ := json.Marshal(event)

	elastic_client.IndexRequest(indexName, bytes.NewReader(elasticEvent))
}
