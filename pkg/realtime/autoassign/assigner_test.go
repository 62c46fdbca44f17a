package autoassign

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/travigo/assigner/pkg/autoassigner"
	"github.com/travigo/assigner/pkg/blocks"
	"github.com/travigo/assigner/pkg/ctdf"
)

var serviceDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute, second int) time.Time {
	return serviceDay.Add(time.Duration(hour*3600+minute*60+second) * time.Second)
}

func testRegistry() *blocks.Registry {
	registry := blocks.NewRegistry()
	registry.Add(&ctdf.Block{
		PrimaryIdentifier: "block-1",
		Timezone:          "UTC",
		StartTime:         at(7, 50, 0),
		EndTime:           at(9, 0, 0),
		Trips: []*ctdf.Trip{
			{
				PrimaryIdentifier: "block-1-trip-1",
				StartTime:         8 * 3600,
				EndTime:           8*3600 + 600,
				Path: []*ctdf.StopPath{
					{StopRef: "stop-a", ArrivalTime: 8 * 3600, DepartureTime: 8 * 3600},
					{
						StopRef:       "stop-b",
						ArrivalTime:   8*3600 + 600,
						DepartureTime: 8*3600 + 600,
						Track:         []ctdf.Location{ctdf.NewPoint(-0.10, 51.5), ctdf.NewPoint(-0.08, 51.5)},
					},
				},
			},
		},
	})

	return registry
}

func position(vehicleID string, t time.Time, longitude float64) *ctdf.AVLReport {
	return &ctdf.AVLReport{VehicleID: vehicleID, RecordedAt: t, Location: ctdf.NewPoint(longitude, 51.5)}
}

func enabledConfig() autoassigner.Config {
	config := autoassigner.DefaultConfig
	config.Enabled = true
	return config
}

type memoryAssignmentCache struct {
	mu          sync.Mutex
	assignments map[string]string
}

func newMemoryAssignmentCache() *memoryAssignmentCache {
	return &memoryAssignmentCache{assignments: map[string]string{}}
}

func (c *memoryAssignmentCache) Get(ctx context.Context, vehicleID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignments[vehicleID]
}

func (c *memoryAssignmentCache) Set(ctx context.Context, vehicleID string, blockRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignments[vehicleID] = blockRef
	return nil
}

func (c *memoryAssignmentCache) Delete(ctx context.Context, vehicleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assignments, vehicleID)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []AutoAssignElasticEvent
}

func (l *eventLog) record(event AutoAssignElasticEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []AutoAssignElasticEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AutoAssignElasticEvent{}, l.events...)
}

func TestReplayAssignsVehicle(t *testing.T) {
	reports := []*ctdf.AVLReport{
		position("bus-1", at(8, 4, 0), -0.0922),
		position("bus-1", at(8, 6, 0), -0.09),
		position("bus-1", at(8, 7, 0), -0.088),
	}

	events, vehicles, err := Replay(context.Background(), enabledConfig(), testRegistry(), reports)
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 {
		t.Fatalf("expected a single binding, got %d events", len(events))
	}

	event := events[0]
	if !event.Success || event.Source != AssignmentSourceAuto {
		t.Errorf("expected successful auto assignment, got %+v", event)
	}
	if event.BlockRef != "block-1" || event.TripRef != "block-1-trip-1" {
		t.Errorf("unexpected binding %+v", event)
	}
	if event.TemporalDifferenceSeconds != -60 {
		t.Errorf("expected 60s late, got %f", event.TemporalDifferenceSeconds)
	}

	vehicleState, _ := vehicles.GetVehicleState(context.Background(), "bus-1")
	if vehicleState.BlockRef() != "block-1" {
		t.Errorf("expected bus-1 on block-1, got %q", vehicleState.BlockRef())
	}
}

func TestProcessReportBlockAlreadyClaimed(t *testing.T) {
	ctx := context.Background()

	claimer := autoassigner.NewMemoryClaimer()
	if err := claimer.Claim(ctx, "block-1", "bus-9"); err != nil {
		t.Fatal(err)
	}

	events := &eventLog{}
	assigner := NewAssigner(enabledConfig(), testRegistry(), claimer)
	assigner.RecordEvent = events.record

	for _, report := range []*ctdf.AVLReport{position("bus-1", at(8, 4, 0), -0.0922), position("bus-1", at(8, 6, 0), -0.09)} {
		if err := assigner.ProcessReport(ctx, report); err != nil {
			t.Fatal(err)
		}
	}

	recorded := events.all()
	if len(recorded) != 1 || recorded[0].Success || recorded[0].FailReason != "BLOCK_CLAIMED" {
		t.Fatalf("expected a failed claim event, got %+v", recorded)
	}

	vehicleState, _ := assigner.Vehicles.GetVehicleState(ctx, "bus-1")
	if vehicleState.IsAssigned() {
		t.Error("vehicle should not be bound to a claimed block")
	}
}

func TestProcessReportFeedAssignment(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name             string
		ignoreIncoming   bool
		assignmentID     string
		expectedBlockRef string
	}{
		{name: "active block", assignmentID: "block-1", expectedBlockRef: "block-1"},
		{name: "ignored", ignoreIncoming: true, assignmentID: "block-1", expectedBlockRef: ""},
		{name: "unknown block", assignmentID: "block-9", expectedBlockRef: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := autoassigner.DefaultConfig
			config.IgnoreIncomingAssignments = test.ignoreIncoming

			events := &eventLog{}
			assigner := NewAssigner(config, testRegistry(), autoassigner.NewMemoryClaimer())
			assigner.RecordEvent = events.record

			report := position("bus-1", at(8, 6, 0), -0.09)
			report.AssignmentID = test.assignmentID

			if err := assigner.ProcessReport(ctx, report); err != nil {
				t.Fatal(err)
			}

			vehicleState, _ := assigner.Vehicles.GetVehicleState(ctx, "bus-1")
			if vehicleState.BlockRef() != test.expectedBlockRef {
				t.Errorf("expected block %q, got %q", test.expectedBlockRef, vehicleState.BlockRef())
			}

			if test.expectedBlockRef != "" {
				recorded := events.all()
				if len(recorded) != 1 || recorded[0].Source != AssignmentSourceFeed {
					t.Errorf("expected a feed binding event, got %+v", recorded)
				}
			}
		})
	}
}

func TestProcessReportCachedAssignmentAndBlockEnd(t *testing.T) {
	ctx := context.Background()

	claimer := autoassigner.NewMemoryClaimer()
	cache := newMemoryAssignmentCache()
	cache.Set(ctx, "bus-1", "block-1")

	events := &eventLog{}
	assigner := NewAssigner(autoassigner.DefaultConfig, testRegistry(), claimer)
	assigner.AssignmentCache = cache
	assigner.RecordEvent = events.record

	if err := assigner.ProcessReport(ctx, position("bus-1", at(8, 6, 0), -0.09)); err != nil {
		t.Fatal(err)
	}

	recorded := events.all()
	if len(recorded) != 1 || recorded[0].Source != AssignmentSourceCache {
		t.Fatalf("expected a cached binding event, got %+v", recorded)
	}

	// The block has finished so the vehicle is released
	if err := assigner.ProcessReport(ctx, position("bus-1", at(9, 30, 0), -0.09)); err != nil {
		t.Fatal(err)
	}

	vehicleState, _ := assigner.Vehicles.GetVehicleState(ctx, "bus-1")
	if vehicleState.IsAssigned() {
		t.Error("vehicle should be unassigned once its block ends")
	}
	if cache.Get(ctx, "bus-1") != "" {
		t.Error("cached assignment should be cleared")
	}
	if err := claimer.Claim(ctx, "block-1", "bus-2"); err != nil {
		t.Errorf("claim should be released, got %v", err)
	}
}

func TestProcessReportIgnoresOlderReports(t *testing.T) {
	ctx := context.Background()

	events := &eventLog{}
	assigner := NewAssigner(autoassigner.DefaultConfig, testRegistry(), autoassigner.NewMemoryClaimer())
	assigner.RecordEvent = events.record

	assigner.ProcessReport(ctx, position("bus-1", at(8, 6, 0), -0.09))

	older := position("bus-1", at(8, 5, 0), -0.09)
	older.AssignmentID = "block-1"
	if err := assigner.ProcessReport(ctx, older); err != nil {
		t.Fatal(err)
	}

	if len(events.all()) != 0 {
		t.Error("older report should not be processed")
	}
}

func TestProcessReportWaitsForVehicle(t *testing.T) {
	ctx := context.Background()
	assigner := NewAssigner(autoassigner.DefaultConfig, testRegistry(), autoassigner.NewMemoryClaimer())

	unlock := assigner.lockVehicle("bus-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		assigner.ProcessReport(ctx, position("bus-1", at(8, 6, 0), -0.09))
	}()

	select {
	case <-done:
		t.Fatal("report processed while the vehicle was locked")
	case <-time.After(50 * time.Millisecond):
	}

	// Other vehicles are not held up
	if err := assigner.ProcessReport(ctx, position("bus-2", at(8, 6, 0), -0.09)); err != nil {
		t.Fatal(err)
	}

	unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("report not processed after the vehicle was unlocked")
	}
}

func TestReleaseStaleAssignments(t *testing.T) {
	ctx := context.Background()

	claimer := autoassigner.NewMemoryClaimer()
	cache := newMemoryAssignmentCache()

	assigner := NewAssigner(autoassigner.DefaultConfig, testRegistry(), claimer)
	assigner.AssignmentCache = cache

	report := position("bus-1", at(8, 6, 0), -0.09)
	report.AssignmentID = "block-1"
	if err := assigner.ProcessReport(ctx, report); err != nil {
		t.Fatal(err)
	}
	assigner.Vehicles.AddSchedBasedVehicle("sched-1", "block-2")

	if released := assigner.ReleaseStaleAssignments(ctx, at(8, 15, 0)); released != 0 {
		t.Fatalf("expected nothing released after 9 minutes, got %d", released)
	}

	if released := assigner.ReleaseStaleAssignments(ctx, at(8, 30, 0)); released != 1 {
		t.Fatalf("expected 1 released, got %d", released)
	}

	vehicleState, _ := assigner.Vehicles.GetVehicleState(ctx, "bus-1")
	if vehicleState.IsAssigned() {
		t.Error("vehicle should be unassigned after going quiet")
	}
	if cache.Get(ctx, "bus-1") != "" {
		t.Error("cached assignment should be cleared")
	}
	if err := claimer.Claim(ctx, "block-1", "bus-2"); err != nil {
		t.Errorf("claim should be released, got %v", err)
	}

	placeholder, _ := assigner.Vehicles.GetVehicleState(ctx, "sched-1")
	if placeholder.BlockRef() != "block-2" {
		t.Error("schedule based vehicles should keep their block")
	}
}

func TestReleaseStaleAssignmentsDisabled(t *testing.T) {
	ctx := context.Background()

	config := autoassigner.DefaultConfig
	config.StaleAssignmentSeconds = 0
	assigner := NewAssigner(config, testRegistry(), autoassigner.NewMemoryClaimer())

	report := position("bus-1", at(8, 6, 0), -0.09)
	report.AssignmentID = "block-1"
	assigner.ProcessReport(ctx, report)

	if released := assigner.ReleaseStaleAssignments(ctx, at(8, 59, 0)); released != 0 {
		t.Errorf("expected nothing released when disabled, got %d", released)
	}
}
