package agent

// State is a runner lifecycle state. The lifecycle only ever moves forward:
// INIT -> RUNNING -> CLOSING -> CLOSED, with INIT -> CLOSING when startup
// fails. No state is ever revisited.
type State string

const (
	// StateInit is the construction state; the agent has not started yet.
	StateInit State = "INIT"
	// StateRunning is the duty-cycle state; DoWork and Idle alternate here.
	StateRunning State = "RUNNING"
	// StateClosing is the teardown state; OnClose runs here exactly once.
	StateClosing State = "CLOSING"
	// StateClosed is the terminal state.
	StateClosed State = "CLOSED"
)

// ValidTransitions defines the forward-only lifecycle edges.
var ValidTransitions = map[State][]State{
	StateInit:    {StateRunning, StateClosing},
	StateRunning: {StateClosing},
	StateClosing: {StateClosed},
	StateClosed:  {},
}

// IsValidTransition checks whether moving from one state to another is allowed.
func IsValidTransition(from, to State) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is the final lifecycle state.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// IsValid reports whether s is one of the lifecycle states.
func (s State) IsValid() bool {
	switch s {
	case StateInit, StateRunning, StateClosing, StateClosed:
		return true
	}
	return false
}

// AllStates returns the lifecycle states in forward order.
func AllStates() []State {
	return []State{StateInit, StateRunning, StateClosing, StateClosed}
}
