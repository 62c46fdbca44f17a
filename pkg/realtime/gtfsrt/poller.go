package gtfsrt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"google.golang.org/protobuf/proto"
)

const maxReportAge = 20 * time.Minute

// Publisher is satisfied by rmq.Queue
type Publisher interface {
	PublishBytes(payload ...[]byte) error
}

// Poller downloads a GTFS-RT vehicle positions feed on an interval and publishes every fresh
// position to the queue as an AVL report
type Poller struct {
	URL      string
	Interval time.Duration
	Source   string

	Queue  Publisher
	Client *http.Client
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if published, err := p.Poll(ctx); err != nil {
			log.Error().Err(err).Str("url", p.URL).Msg("Failed to poll GTFS-RT feed")
		} else {
			log.Info().Str("url", p.URL).Int("reports", published).Msg("Polled GTFS-RT feed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and returns how many reports were published
func (p *Poller) Poll(ctx context.Context) (int, error) {
	body, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return 0, fmt.Errorf("parsing GTFS-RT protobuf: %w", err)
	}

	reports := ConvertFeed(feed, p.Source, time.Now())

	payloads := make([][]byte, 0, len(reports))
	for _, report := range reports {
		payload, err := json.Marshal(report)
		if err != nil {
			return 0, err
		}
		payloads = append(payloads, payload)
	}

	if len(payloads) == 0 {
		return 0, nil
	}

	if err := p.Queue.PublishBytes(payloads...); err != nil {
		return 0, fmt.Errorf("publishing AVL reports: %w", err)
	}

	return len(payloads), nil
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/x-protobuf")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("feed returned status %d", resp.StatusCode)
		} else if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("feed returned status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.MaxElapsedTime = p.Interval

	err := backoff.RetryNotify(operation, backoff.WithContext(retryBackoff, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("url", p.URL).Str("retryIn", wait.String()).Msg("Retrying GTFS-RT feed download")
	})

	return body, err
}

// ConvertFeed turns the vehicle positions in a feed into AVL reports. Positions without a vehicle
// or a location, and ones older than 20 minutes, are skipped.
func ConvertFeed(feed *gtfs.FeedMessage, source string, now time.Time) []*ctdf.AVLReport {
	var reports []*ctdf.AVLReport

	for _, entity := range feed.GetEntity() {
		vehiclePosition := entity.GetVehicle()
		if vehiclePosition == nil || vehiclePosition.GetPosition() == nil {
			continue
		}

		vehicleID := vehiclePosition.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = vehiclePosition.GetVehicle().GetLabel()
		}
		if vehicleID == "" {
			vehicleID = entity.GetId()
		}
		if vehicleID == "" {
			continue
		}

		recordedAt := now
		if vehiclePosition.Timestamp != nil {
			recordedAt = time.Unix(int64(vehiclePosition.GetTimestamp()), 0)
		} else if feed.GetHeader().Timestamp != nil {
			recordedAt = time.Unix(int64(feed.GetHeader().GetTimestamp()), 0)
		}

		if now.Sub(recordedAt) > maxReportAge {
			continue
		}

		position := vehiclePosition.GetPosition()

		report := &ctdf.AVLReport{
			VehicleID:  vehicleID,
			RecordedAt: recordedAt.UTC(),
			Location:   ctdf.NewPoint(float64(position.GetLongitude()), float64(position.GetLatitude())),
			Source:     source,
		}

		if position.Speed != nil {
			report.Speed = float64(position.GetSpeed())
		}
		if position.Bearing != nil {
			report.Heading = float64(position.GetBearing())
		}

		reports = append(reports, report)
	}

	return reports
}
