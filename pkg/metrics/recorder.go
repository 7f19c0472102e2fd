// Package metrics provides duty-cycle metrics recording and querying.
package metrics

import "time"

// Cycle outcome labels.
const (
	OutcomeWorked = "worked"
	OutcomeIdled  = "idled"
)

// Error kind labels produced by the instrumenting decorator.
const (
	ErrorKindTerminated = "terminated"
	ErrorKindCanceled   = "canceled"
	ErrorKindFailure    = "failure"
)

// Recorder defines the interface for recording duty-cycle metrics.
type Recorder interface {
	// ObserveCycle records one completed duty cycle: how much work it did
	// and how long the DoWork call took.
	ObserveCycle(role string, workCount int, duration time.Duration)

	// IncError increments the failure counter for a role by error kind.
	IncError(role, kind string)

	// SetState publishes the runner's lifecycle state as a gauge.
	SetState(role, state string)

	// IncRestart increments the supervisor restart counter for a role.
	IncRestart(role string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveCycle does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCycle(_ string, _ int, _ time.Duration) {
	// No-op
}

// IncError does nothing in the no-op recorder.
func (n *NoopRecorder) IncError(_, _ string) {
	// No-op
}

// SetState does nothing in the no-op recorder.
func (n *NoopRecorder) SetState(_, _ string) {
	// No-op
}

// IncRestart does nothing in the no-op recorder.
func (n *NoopRecorder) IncRestart(_ string) {
	// No-op
}
