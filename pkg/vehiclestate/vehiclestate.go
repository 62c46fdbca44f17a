package vehiclestate

import (
	"sync"
	"time"

	"github.com/travigo/assigner/pkg/ctdf"
)

const DefaultHistorySize = 20

// VehicleState is the live status of a single vehicle. It is safe for concurrent use.
type VehicleState struct {
	mu sync.RWMutex

	vehicleID string

	// history[0] is the current report, newest first
	history     []*ctdf.AVLReport
	historySize int

	forSchedBasedPreds bool

	blockRef   string
	assignedAt time.Time
}

// Snapshot is a point in time copy of a VehicleState for output
type Snapshot struct {
	VehicleID string `groups:"basic"`

	AVLReport *ctdf.AVLReport   `groups:"basic"`
	History   []*ctdf.AVLReport `groups:"detailed"`

	ForSchedBasedPreds bool `groups:"basic"`

	BlockRef   string    `groups:"basic"`
	AssignedAt time.Time `groups:"basic"`
}

func NewVehicleState(vehicleID string, historySize int) *VehicleState {
	if historySize < 2 {
		historySize = DefaultHistorySize
	}

	return &VehicleState{
		vehicleID:   vehicleID,
		historySize: historySize,
	}
}

func (v *VehicleState) VehicleID() string {
	return v.vehicleID
}

// AVLReport returns the current report or nil if the vehicle has never reported
func (v *VehicleState) AVLReport() *ctdf.AVLReport {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.history) == 0 {
		return nil
	}
	return v.history[0]
}

// PreviousAVLReport returns the most recent earlier report that is at least minDistance metres away
// from the current one, or nil if there is none
func (v *VehicleState) PreviousAVLReport(minDistance float64) *ctdf.AVLReport {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.previousAVLReport(minDistance)
}

// ReportsForMatching returns the current report and PreviousAVLReport from the same point in time,
// so a report arriving in between can not pair the current report with itself
func (v *VehicleState) ReportsForMatching(minDistance float64) (*ctdf.AVLReport, *ctdf.AVLReport) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.history) == 0 {
		return nil, nil
	}

	return v.history[0], v.previousAVLReport(minDistance)
}

func (v *VehicleState) previousAVLReport(minDistance float64) *ctdf.AVLReport {
	if len(v.history) < 2 {
		return nil
	}

	current := v.history[0]
	if !current.Location.IsPoint() {
		return nil
	}

	for _, report := range v.history[1:] {
		if !report.Location.IsPoint() {
			continue
		}

		if current.Location.Distance(&report.Location) >= minDistance {
			return report
		}
	}

	return nil
}

// AddAVLReport makes report the current report. Reports older than the current one are ignored.
func (v *VehicleState) AddAVLReport(report *ctdf.AVLReport) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.history) > 0 && !report.RecordedAt.After(v.history[0].RecordedAt) {
		return false
	}

	v.history = append([]*ctdf.AVLReport{report}, v.history...)
	if len(v.history) > v.historySize {
		v.history = v.history[:v.historySize]
	}

	return true
}

func (v *VehicleState) IsForSchedBasedPreds() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.forSchedBasedPreds
}

func (v *VehicleState) BlockRef() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.blockRef
}

func (v *VehicleState) IsAssigned() bool {
	return v.BlockRef() != ""
}

func (v *VehicleState) setBlock(blockRef string, assignedAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.blockRef = blockRef
	v.assignedAt = assignedAt
}

func (v *VehicleState) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snapshot := Snapshot{
		VehicleID:          v.vehicleID,
		History:            append([]*ctdf.AVLReport{}, v.history...),
		ForSchedBasedPreds: v.forSchedBasedPreds,
		BlockRef:           v.blockRef,
		AssignedAt:         v.assignedAt,
	}
	if len(v.history) > 0 {
		snapshot.AVLReport = v.history[0]
	}

	return snapshot
}
