package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/util"
)

const defaultMaxQueueFraction = 0.4
const defaultQueueCapacity = 10000

// ReadyCounter returns how many items are waiting in the queue
type ReadyCounter func() (int64, error)

// QueueMonitor triggers when the queue fills past MaxQueueFraction of its capacity, meaning the
// consumers are not keeping up
type QueueMonitor struct {
	QueueName        string
	Capacity         int64
	MaxQueueFraction float64

	readyCount ReadyCounter

	mu     sync.RWMutex
	status Status
}

type Status struct {
	Type       string
	Triggered  bool
	Message    string
	Value      float64
	LastCheck  time.Time
	ReadyCount int64
}

func NewQueueMonitor(queueName string, capacity int64, maxQueueFraction float64, readyCount ReadyCounter) *QueueMonitor {
	return &QueueMonitor{
		QueueName:        queueName,
		Capacity:         capacity,
		MaxQueueFraction: maxQueueFraction,
		readyCount:       readyCount,
		status:           Status{Type: "Queue"},
	}
}

// NewQueueMonitorFromEnvironment reads ASSIGNER_MONITORING_MAX_QUEUE_FRACTION and
// ASSIGNER_MONITORING_QUEUE_CAPACITY and watches queueName on the rmq connection
func NewQueueMonitorFromEnvironment(connection rmq.Connection, queueName string) *QueueMonitor {
	env := util.GetEnvironmentVariables()

	maxQueueFraction := defaultMaxQueueFraction
	if val := env["ASSIGNER_MONITORING_MAX_QUEUE_FRACTION"]; val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			maxQueueFraction = parsed
		}
	}

	capacity := int64(defaultQueueCapacity)
	if val := env["ASSIGNER_MONITORING_QUEUE_CAPACITY"]; val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil && parsed > 0 {
			capacity = parsed
		}
	}

	return NewQueueMonitor(queueName, capacity, maxQueueFraction, RMQReadyCounter(connection, queueName))
}

func RMQReadyCounter(connection rmq.Connection, queueName string) ReadyCounter {
	return func() (int64, error) {
		stats, err := connection.CollectStats([]string{queueName})
		if err != nil {
			return 0, err
		}

		return stats.QueueStats[queueName].ReadyCount, nil
	}
}

// Check samples the queue and updates the status, logging when it starts or stops being triggered
func (m *QueueMonitor) Check() (bool, error) {
	readyCount, err := m.readyCount()
	if err != nil {
		return false, err
	}

	queueLevel := float64(readyCount) / float64(m.Capacity)
	triggered := queueLevel > m.MaxQueueFraction

	message := fmt.Sprintf("Queue %s fraction=%.2f while max allowed fraction=%.2f, and items in queue=%d.",
		m.QueueName, queueLevel, m.MaxQueueFraction, readyCount)

	m.mu.Lock()
	wasTriggered := m.status.Triggered
	m.status.Triggered = triggered
	m.status.Message = message
	m.status.Value = queueLevel
	m.status.ReadyCount = readyCount
	m.status.LastCheck = time.Now()
	m.mu.Unlock()

	if triggered && !wasTriggered {
		log.Warn().Str("queue", m.QueueName).Float64("level", queueLevel).Msg(message)
	} else if !triggered && wasTriggered {
		log.Info().Str("queue", m.QueueName).Float64("level", queueLevel).Msg("Queue monitoring no longer triggered. " + message)
	}

	return triggered, nil
}

func (m *QueueMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

// Run checks the queue every interval until ctx is done
func (m *QueueMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(); err != nil {
				log.Error().Err(err).Str("queue", m.QueueName).Msg("Failed to check queue level")
			}
		}
	}
}
