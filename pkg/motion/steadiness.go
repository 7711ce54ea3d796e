package motion

import (
	"fmt"
	"sync"
)

// RegionState is the state of a region in the steadiness state machine.
// The only transition is RegionStateSteady -> RegionStateUnsteady.
type RegionState uint8

const (
	RegionStateSteady = RegionState(iota)
	RegionStateUnsteady
)

func (s RegionState) String() string {
	switch s {
	case RegionStateSteady:
		return "steady"
	case RegionStateUnsteady:
		return "unsteady"
	default:
		return fmt.Sprintf("unknown_region_state_%d", uint8(s))
	}
}

// SteadinessMask tracks the state of every region. It is safe for
// concurrent use.
type SteadinessMask struct {
	locker sync.RWMutex
	states []RegionState
}

// NewSteadinessMask returns a mask for regions 1..count, all steady.
func NewSteadinessMask(count int) *SteadinessMask {
	return &SteadinessMask{
		states: make([]RegionState, count),
	}
}

// Len returns the amount of regions.
func (m *SteadinessMask) Len() int {
	m.locker.RLock()
	defer m.locker.RUnlock()
	return len(m.states)
}

// MarkUnsteady moves the region into the unsteady state. It returns
// true if the region was steady before.
func (m *SteadinessMask) MarkUnsteady(id int) bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	if id <= 0 || id > len(m.states) {
		return false
	}
	if m.states[id-1] == RegionStateUnsteady {
		return false
	}
	m.states[id-1] = RegionStateUnsteady
	return true
}

func (m *SteadinessMask) State(id int) RegionState {
	m.locker.RLock()
	defer m.locker.RUnlock()
	if id <= 0 || id > len(m.states) {
		return RegionStateUnsteady
	}
	return m.states[id-1]
}

func (m *SteadinessMask) IsSteady(id int) bool {
	return m.State(id) == RegionStateSteady
}

// SteadyIDs returns the IDs of regions that never changed state.
func (m *SteadinessMask) SteadyIDs() []int {
	m.locker.RLock()
	defer m.locker.RUnlock()
	var ids []int
	for idx, state := range m.states {
		if state == RegionStateSteady {
			ids = append(ids, idx+1)
		}
	}
	return ids
}

// Snapshot returns a copy of the states, indexed by ID-1.
func (m *SteadinessMask) Snapshot() []RegionState {
	m.locker.RLock()
	defer m.locker.RUnlock()
	result := make([]RegionState, len(m.states))
	copy(result, m.states)
	return result
}
