package link

import "sync/atomic"

// State is the position of a session in its transaction cycle.
type State uint32

const (
	// StateClosed means no port is open.
	StateClosed State = iota
	// StateIdle means the port is open and no transaction is running.
	StateIdle
	// StateSending means request bytes are being written.
	StateSending
	// StateWaiting means the session is collecting reply bytes.
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateWaiting:
		return "Waiting"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) get() State {
	return State(st.state.Load())
}

func (st *atomicState) set(s State) {
	st.state.Store(uint32(s))
}
