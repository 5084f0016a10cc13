// Package monitor tracks whether each watched universe is receiving data or
// has gone quiet long enough to be blanked.
package monitor

import (
	"time"
)

// DefaultTimeout is how long a universe may go without data before blanking.
const DefaultTimeout = 2500 * time.Millisecond

// State of one watched universe.
type State uint8

const (
	// StateActive means data is arriving and the light follows it.
	StateActive State = iota

	// StateBlanked means no recent data; the light is forced off.
	StateBlanked
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateBlanked:
		return "BLANKED"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	state    State
	last     time.Time
	received bool
}

// Monitor is a timeout state machine per universe. It is driven entirely by
// the now values passed in and is not safe for concurrent use.
type Monitor struct {
	timeout      time.Duration
	blankOnStart bool
	entries      map[uint16]*entry

	onStateChange func(universe uint16, oldState, newState State)
}

// New creates a monitor. A zero timeout disables timing out.
func New(timeout time.Duration, blankOnStart bool) *Monitor {
	if timeout < 0 {
		timeout = 0
	}
	return &Monitor{
		timeout:      timeout,
		blankOnStart: blankOnStart,
		entries:      make(map[uint16]*entry),
	}
}

// Timeout returns the configured timeout.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

// OnStateChange sets a callback invoked on every Active/Blanked transition.
func (m *Monitor) OnStateChange(fn func(universe uint16, oldState, newState State)) {
	m.onStateChange = fn
}

// Watch starts tracking a universe in its initial state. Watching an already
// tracked universe is a no-op.
func (m *Monitor) Watch(universe uint16) {
	if _, ok := m.entries[universe]; ok {
		return
	}
	st := StateActive
	if m.blankOnStart {
		st = StateBlanked
	}
	m.entries[universe] = &entry{state: st}
}

// Forget stops tracking a universe. It reads as blanked afterwards.
func (m *Monitor) Forget(universe uint16) {
	delete(m.entries, universe)
}

// MarkReceived records a data packet for the universe, activating it.
func (m *Monitor) MarkReceived(universe uint16, now time.Time) {
	e, ok := m.entries[universe]
	if !ok {
		return
	}
	e.last = now
	e.received = true
	m.set(universe, e, StateActive)
}

// Terminate blanks the universe immediately, as when its source signals end of
// stream.
func (m *Monitor) Terminate(universe uint16) {
	if e, ok := m.entries[universe]; ok {
		m.set(universe, e, StateBlanked)
	}
}

// IsBlanked evaluates the timeout at now and reports whether the universe is
// blanked. Unknown universes are blanked.
func (m *Monitor) IsBlanked(universe uint16, now time.Time) bool {
	e, ok := m.entries[universe]
	if !ok {
		return true
	}
	if e.state == StateActive && m.timeout > 0 && e.received && now.Sub(e.last) > m.timeout {
		m.set(universe, e, StateBlanked)
	}
	return e.state == StateBlanked
}

// State returns the last evaluated state. Unknown universes are blanked.
func (m *Monitor) State(universe uint16) State {
	if e, ok := m.entries[universe]; ok {
		return e.state
	}
	return StateBlanked
}

// LastReceived returns when data was last marked, zero if never.
func (m *Monitor) LastReceived(universe uint16) time.Time {
	if e, ok := m.entries[universe]; ok {
		return e.last
	}
	return time.Time{}
}

func (m *Monitor) set(universe uint16, e *entry, st State) {
	if e.state == st {
		return
	}
	old := e.state
	e.state = st
	if m.onStateChange != nil {
		m.onStateChange(universe, old, st)
	}
}
