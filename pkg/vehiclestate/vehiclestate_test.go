package vehiclestate

import (
	"sync"
	"testing"
	"time"

	"github.com/travigo/assigner/pkg/ctdf"
)

var baseTime = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func report(vehicleID string, seconds int, longitude float64) *ctdf.AVLReport {
	return &ctdf.AVLReport{
		VehicleID:  vehicleID,
		RecordedAt: baseTime.Add(time.Duration(seconds) * time.Second),
		Location:   ctdf.NewPoint(longitude, 51.5),
	}
}

func TestAddAVLReportRejectsOlder(t *testing.T) {
	vehicleState := NewVehicleState("bus-1", 5)

	if !vehicleState.AddAVLReport(report("bus-1", 60, -0.1)) {
		t.Fatal("first report should be accepted")
	}
	if vehicleState.AddAVLReport(report("bus-1", 60, -0.1)) {
		t.Error("report at the same time should be rejected")
	}
	if vehicleState.AddAVLReport(report("bus-1", 30, -0.1)) {
		t.Error("older report should be rejected")
	}
	if !vehicleState.AddAVLReport(report("bus-1", 90, -0.1)) {
		t.Error("newer report should be accepted")
	}

	if !vehicleState.AVLReport().RecordedAt.Equal(baseTime.Add(90 * time.Second)) {
		t.Error("current report should be the newest")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	vehicleState := NewVehicleState("bus-1", 3)

	for i := 0; i < 10; i++ {
		vehicleState.AddAVLReport(report("bus-1", i*30, -0.1))
	}

	if len(vehicleState.Snapshot().History) != 3 {
		t.Errorf("expected 3 reports of history, got %d", len(vehicleState.Snapshot().History))
	}
}

func TestPreviousAVLReport(t *testing.T) {
	vehicleState := NewVehicleState("bus-1", 10)

	if vehicleState.PreviousAVLReport(100) != nil {
		t.Error("expected no previous report without history")
	}

	// ~208m, ~69m and ~7m west of the final position
	vehicleState.AddAVLReport(report("bus-1", 0, -0.093))
	vehicleState.AddAVLReport(report("bus-1", 30, -0.091))
	vehicleState.AddAVLReport(report("bus-1", 60, -0.0901))
	vehicleState.AddAVLReport(report("bus-1", 90, -0.09))

	previous := vehicleState.PreviousAVLReport(100)
	if previous == nil {
		t.Fatal("expected a previous report")
	}
	if previous.Location.Longitude() != -0.093 {
		t.Errorf("expected the report 208m away, got %s", previous.String())
	}

	previous = vehicleState.PreviousAVLReport(50)
	if previous == nil || previous.Location.Longitude() != -0.091 {
		t.Error("expected the most recent report at least 50m away")
	}

	if vehicleState.PreviousAVLReport(500) != nil {
		t.Error("expected no report 500m away")
	}
}

func TestReportsForMatchingUnderConcurrentUpdates(t *testing.T) {
	vehicleState := NewVehicleState("bus-1", 10)
	vehicleState.AddAVLReport(report("bus-1", 0, -0.1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		// ~70m east every 10 seconds
		for i := 1; i <= 500; i++ {
			vehicleState.AddAVLReport(report("bus-1", i*10, -0.1+float64(i)*0.001))
		}
	}()

	for i := 0; i < 500; i++ {
		current, previous := vehicleState.ReportsForMatching(100)
		if current == nil || previous == nil {
			continue
		}

		if current == previous || !previous.RecordedAt.Before(current.RecordedAt) {
			t.Fatalf("previous report %s is not older than current %s", previous.String(), current.String())
		}
		if current.Location.Distance(&previous.Location) < 100 {
			t.Fatalf("previous report %s is within 100m of %s", previous.String(), current.String())
		}
	}

	wg.Wait()

	current, previous := vehicleState.ReportsForMatching(100)
	if current.Location.Longitude() != vehicleState.AVLReport().Location.Longitude() || previous == nil {
		t.Error("expected the newest report and one far enough back")
	}
}
