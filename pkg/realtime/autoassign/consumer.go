package autoassign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/redis_client"
)

const QueueName = "position-reports"

const numConsumers = 5
const batchSize = 200
const maxVehicleWorkers = 50

func StartConsumers(assigner *Assigner) {
	log.Info().Msg("Starting auto assign consumers")

	queue, err := redis_client.QueueConnection.OpenQueue(QueueName)
	if err != nil {
		panic(err)
	}
	if err := queue.StartConsuming(numConsumers*batchSize, 1*time.Second); err != nil {
		panic(err)
	}

	for i := 0; i < numConsumers; i++ {
		go startConsumer(queue, assigner, i)
	}
}

func startConsumer(queue rmq.Queue, assigner *Assigner, id int) {
	log.Info().Msgf("Starting auto assign consumer %d", id)

	if _, err := queue.AddBatchConsumer(fmt.Sprintf("%s-%d", QueueName, id), batchSize, 2*time.Second, NewBatchConsumer(id, assigner)); err != nil {
		panic(err)
	}
}

type BatchConsumer struct {
	id       int
	assigner *Assigner
}

func NewBatchConsumer(id int, assigner *Assigner) *BatchConsumer {
	return &BatchConsumer{id: id, assigner: assigner}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	var deliveries []rmq.Delivery
	var reports []*ctdf.AVLReport

	for _, delivery := range batch {
		var report *ctdf.AVLReport
		if err := json.Unmarshal([]byte(delivery.Payload()), &report); err != nil || report == nil || report.VehicleID == "" {
			log.Error().Err(err).Msg("Failed to decode AVL report, rejecting")

			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject AVL report")
			}
			continue
		}

		deliveries = append(deliveries, delivery)
		reports = append(reports, report)
	}

	startTime := time.Now()
	consumer.ProcessReports(context.Background(), reports)
	log.Debug().Int("consumer", consumer.id).Int("length", len(reports)).Str("time", time.Since(startTime).String()).Msg("Processed AVL report batch")

	for _, delivery := range deliveries {
		if err := delivery.Ack(); err != nil {
			log.Error().Err(err).Msg("Failed to ack AVL report")
		}
	}
}

// ProcessReports runs each vehicles reports in order on its own worker, vehicles in parallel
func (consumer *BatchConsumer) ProcessReports(ctx context.Context, reports []*ctdf.AVLReport) {
	var vehicleOrder []string
	vehicleReports := map[string][]*ctdf.AVLReport{}

	for _, report := range reports {
		if _, exists := vehicleReports[report.VehicleID]; !exists {
			vehicleOrder = append(vehicleOrder, report.VehicleID)
		}
		vehicleReports[report.VehicleID] = append(vehicleReports[report.VehicleID], report)
	}

	p := pool.New().WithMaxGoroutines(maxVehicleWorkers)

	for _, vehicleID := range vehicleOrder {
		p.Go(func() {
			for _, report := range vehicleReports[vehicleID] {
				if err := consumer.assigner.ProcessReport(ctx, report); err != nil {
					log.Error().Err(err).Str("vehicleId", vehicleID).Msg("Failed to process AVL report")
				}
			}
		})
	}

	p.Wait()
}
