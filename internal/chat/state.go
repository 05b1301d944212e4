// Package chat runs the live per-thread chat channel.
//
// Connection lifecycle:
//
//	connecting ──► open ──► closing ──► closed
//	    │                                  ▲
//	    └──────────────────────────────────┘
//
// A connection that fails authentication or authorization on connecting goes
// straight to closed. closed is terminal.
package chat

import (
	"fmt"
	"sync"
)

// State is a connection lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StateConnecting: {StateOpen, StateClosing, StateClosed},
	StateOpen:       {StateClosing},
	StateClosing:    {StateClosed},
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// lifecycle guards the state of one connection.
type lifecycle struct {
	mu    sync.Mutex
	state State
}

func newLifecycle() *lifecycle { return &lifecycle{state: StateConnecting} }

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// advance moves to the next state, failing on a transition the graph forbids.
func (l *lifecycle) advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !IsTransitionAllowed(l.state, to) {
		return fmt.Errorf("chat: invalid transition %s -> %s", l.state, to)
	}
	l.state = to
	return nil
}
