package vehiclestate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Manager is the registry of every known vehicle and which block each one is bound to
type Manager struct {
	mu sync.RWMutex

	vehicles      map[string]*VehicleState
	blockVehicles map[string]map[string]struct{}

	historySize int
}

func NewManager(historySize int) *Manager {
	return &Manager{
		vehicles:      map[string]*VehicleState{},
		blockVehicles: map[string]map[string]struct{}{},
		historySize:   historySize,
	}
}

// Update records a new report and returns the vehicles state. The bool is false if the report
// was not newer than the current one.
func (m *Manager) Update(report *ctdf.AVLReport) (*VehicleState, bool) {
	vehicleState := m.getOrCreate(report.VehicleID)

	return vehicleState, vehicleState.AddAVLReport(report)
}

func (m *Manager) getOrCreate(vehicleID string) *VehicleState {
	m.mu.RLock()
	vehicleState, exists := m.vehicles[vehicleID]
	m.mu.RUnlock()

	if exists {
		return vehicleState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if vehicleState, exists = m.vehicles[vehicleID]; !exists {
		vehicleState = NewVehicleState(vehicleID, m.historySize)
		m.vehicles[vehicleID] = vehicleState
	}

	return vehicleState
}

// GetVehicleState returns nil when the vehicle is unknown
func (m *Manager) GetVehicleState(ctx context.Context, vehicleID string) (*VehicleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.vehicles[vehicleID], nil
}

func (m *Manager) GetVehiclesByBlockID(ctx context.Context, blockRef string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vehicleIDs := make([]string, 0, len(m.blockVehicles[blockRef]))
	for vehicleID := range m.blockVehicles[blockRef] {
		vehicleIDs = append(vehicleIDs, vehicleID)
	}
	slices.Sort(vehicleIDs)

	return vehicleIDs, nil
}

// SetBlockAssignment binds the vehicle to blockRef, replacing any previous binding
func (m *Manager) SetBlockAssignment(vehicleID string, blockRef string, assignedAt time.Time) {
	vehicleState := m.getOrCreate(vehicleID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeFromBlockIndex(vehicleID, vehicleState.BlockRef())

	if m.blockVehicles[blockRef] == nil {
		m.blockVehicles[blockRef] = map[string]struct{}{}
	}
	m.blockVehicles[blockRef][vehicleID] = struct{}{}

	vehicleState.setBlock(blockRef, assignedAt)

	log.Debug().Str("vehicleId", vehicleID).Str("blockId", blockRef).Msg("Vehicle bound to block")
}

func (m *Manager) UnassignBlock(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vehicleState, exists := m.vehicles[vehicleID]
	if !exists {
		return
	}

	m.removeFromBlockIndex(vehicleID, vehicleState.BlockRef())
	vehicleState.setBlock("", time.Time{})
}

// AddSchedBasedVehicle registers a placeholder vehicle that only exists to give schedule based
// predictions for a block with no real vehicle
func (m *Manager) AddSchedBasedVehicle(vehicleID string, blockRef string) {
	vehicleState := m.getOrCreate(vehicleID)

	vehicleState.mu.Lock()
	vehicleState.forSchedBasedPreds = true
	vehicleState.mu.Unlock()

	m.SetBlockAssignment(vehicleID, blockRef, time.Now())
}

// VehicleStates returns every known vehicle ordered by vehicle id
func (m *Manager) VehicleStates() []*VehicleState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vehicleStates := make([]*VehicleState, 0, len(m.vehicles))
	for _, vehicleState := range m.vehicles {
		vehicleStates = append(vehicleStates, vehicleState)
	}
	slices.SortFunc(vehicleStates, func(a, b *VehicleState) int {
		return strings.Compare(a.vehicleID, b.vehicleID)
	})

	return vehicleStates
}

func (m *Manager) removeFromBlockIndex(vehicleID string, blockRef string) {
	if blockRef == "" {
		return
	}

	delete(m.blockVehicles[blockRef], vehicleID)
	if len(m.blockVehicles[blockRef]) == 0 {
		delete(m.blockVehicles, blockRef)
	}
}
