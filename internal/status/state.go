package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/smolnikov/molva/internal/bus"
)

// State is a connection lifecycle state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closed     State = "CLOSED"
	Errored    State = "ERRORED"
)

// validTransitions defines allowed lifecycle transitions. Reconnecting after
// a close or error goes back through Connecting; the hosting app decides when.
var validTransitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Open, Closed, Errored},
	Open:       {Closed, Errored},
	Closed:     {Connecting},
	Errored:    {Connecting, Closed},
}

// Machine tracks and enforces connection lifecycle transitions. It is the
// process-wide source of the "connected" flag consumed by the UI.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Connected reports whether the transport is open.
func (m *Machine) Connected() bool {
	return m.Current() == Open
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed from the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "conn.status_changed",
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

// StatusChange is the payload for conn.status_changed events.
type StatusChange struct {
	From State
	To   State
}
