package gtfsrt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/travigo/assigner/pkg/ctdf"
	"google.golang.org/protobuf/proto"
)

type fakePublisher struct {
	payloads [][]byte
}

func (f *fakePublisher) PublishBytes(payload ...[]byte) error {
	f.payloads = append(f.payloads, payload...)
	return nil
}

func testFeed(now time.Time) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("1"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("bus-1")},
					Position:  &gtfs.Position{Latitude: proto.Float32(51.5), Longitude: proto.Float32(-0.1), Bearing: proto.Float32(90)},
					Timestamp: proto.Uint64(uint64(now.Add(-time.Minute).Unix())),
				},
			},
			{
				Id: proto.String("2"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:   &gtfs.VehicleDescriptor{Label: proto.String("bus-2")},
					Position:  &gtfs.Position{Latitude: proto.Float32(51.6), Longitude: proto.Float32(-0.2)},
					Timestamp: proto.Uint64(uint64(now.Add(-time.Hour).Unix())),
				},
			},
			{
				Id: proto.String("3"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("bus-3")},
				},
			},
			{
				Id: proto.String("bus-4"),
				Vehicle: &gtfs.VehiclePosition{
					Position: &gtfs.Position{Latitude: proto.Float32(51.7), Longitude: proto.Float32(-0.3)},
				},
			},
		},
	}
}

func TestConvertFeed(t *testing.T) {
	now := time.Unix(1700000000, 0)

	reports := ConvertFeed(testFeed(now), "test", now)

	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}

	if reports[0].VehicleID != "bus-1" {
		t.Errorf("expected bus-1, got %s", reports[0].VehicleID)
	}
	if !reports[0].RecordedAt.Equal(now.Add(-time.Minute)) {
		t.Errorf("unexpected recorded at %s", reports[0].RecordedAt)
	}
	if reports[0].Heading != 90 {
		t.Errorf("expected heading 90, got %f", reports[0].Heading)
	}
	if reports[0].Source != "test" {
		t.Errorf("expected source test, got %s", reports[0].Source)
	}

	// Falls back to the entity id and the header timestamp
	if reports[1].VehicleID != "bus-4" {
		t.Errorf("expected bus-4, got %s", reports[1].VehicleID)
	}
	if !reports[1].RecordedAt.Equal(now) {
		t.Errorf("expected header timestamp, got %s", reports[1].RecordedAt)
	}
}

func TestPollPublishesReports(t *testing.T) {
	now := time.Now()
	body, err := proto.Marshal(testFeed(now))
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	publisher := &fakePublisher{}
	poller := &Poller{
		URL:      server.URL,
		Interval: time.Second,
		Queue:    publisher,
	}

	published, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if published != 2 || len(publisher.payloads) != 2 {
		t.Fatalf("expected 2 published reports, got %d", published)
	}

	var report ctdf.AVLReport
	if err := json.Unmarshal(publisher.payloads[0], &report); err != nil {
		t.Fatal(err)
	}
	if report.VehicleID != "bus-1" || !report.Location.IsPoint() {
		t.Errorf("unexpected report %s", report.String())
	}
}

func TestPollClientErrorIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	poller := &Poller{
		URL:      server.URL,
		Interval: time.Second,
		Queue:    &fakePublisher{},
	}

	if _, err := poller.Poll(context.Background()); err == nil {
		t.Error("expected error for missing feed")
	}
	if requests.Load() != 1 {
		t.Errorf("expected a single request, got %d", requests.Load())
	}
}
