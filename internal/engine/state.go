package engine

import "sync/atomic"

// State is a coordinator phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDiffing
	StateCommitting
	StatePartiallyFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDiffing:
		return "diffing"
	case StateCommitting:
		return "committing"
	case StatePartiallyFailed:
		return "partially_failed"
	}
	return "unknown"
}

// StateObserver is told about every transition, in order, from the goroutine
// running the cycle.
type StateObserver func(from, to State)

type machine struct {
	state    atomic.Int32
	observer StateObserver
}

func (m *machine) current() State {
	return State(m.state.Load())
}

// start claims the machine for a cycle. It fails if a cycle is active.
func (m *machine) start() bool {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateFetching)) {
		return false
	}
	m.notify(StateIdle, StateFetching)
	return true
}

func (m *machine) move(to State) {
	from := State(m.state.Swap(int32(to)))
	if from != to {
		m.notify(from, to)
	}
}

func (m *machine) notify(from, to State) {
	if m.observer != nil {
		m.observer(from, to)
	}
}
