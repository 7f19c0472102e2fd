// Package eventlog provides a structured journal of runner lifecycle events
// written to daily rotated JSONL files.
package eventlog

import (
	"fmt"
	"time"
)

// Event kinds recorded in the journal.
const (
	KindStarted    = "started"
	KindTransition = "transition"
	KindFailure    = "failure"
	KindRestart    = "restart"
	KindClosed     = "closed"
)

// Event is one journal record. State carries the runner lifecycle state at
// the time of the event; Detail is free-form context such as an error string.
type Event struct {
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id"`
	Role      string    `json:"role"`
	Kind      string    `json:"kind"`
	State     string    `json:"state,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// IsValidKind reports whether kind is one of the journal event kinds.
func IsValidKind(kind string) bool {
	switch kind {
	case KindStarted, KindTransition, KindFailure, KindRestart, KindClosed:
		return true
	}
	return false
}

func newEvent(kind, runID, role string) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Role:      role,
		Kind:      kind,
	}
}

// Started records that a runner began its duty cycle.
func Started(runID, role string) Event {
	e := newEvent(KindStarted, runID, role)
	e.State = "RUNNING"
	return e
}

// Transition records a lifecycle state change.
func Transition(runID, role, from, to string) Event {
	e := newEvent(KindTransition, runID, role)
	e.State = to
	e.Detail = fmt.Sprintf("%s → %s", from, to)
	return e
}

// Failure records an error observed during the duty cycle.
func Failure(runID, role, state string, err error) Event {
	e := newEvent(KindFailure, runID, role)
	e.State = state
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// Restart records a supervisor restart attempt.
func Restart(runID, role string, attempt int) Event {
	e := newEvent(KindRestart, runID, role)
	e.Detail = fmt.Sprintf("attempt %d", attempt)
	return e
}

// Closed records that a runner reached its terminal state.
func Closed(runID, role, detail string) Event {
	e := newEvent(KindClosed, runID, role)
	e.State = "CLOSED"
	e.Detail = detail
	return e
}
