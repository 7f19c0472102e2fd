// Package agent provides the duty-cycle execution core: the Agent contract,
// a Runner that drives one agent on one dedicated goroutine, an Invoker for
// embedding an agent in a caller-owned loop, and a Composite for treating
// several agents as one.
//
// A duty cycle is one DoWork call followed by an idle step sized by how much
// work the call reported. The Runner owns its agent and idle strategy
// exclusively for its lifetime and guarantees:
//
//   - OnStart runs once, before the first DoWork; if it fails, DoWork never
//     runs at all.
//   - OnClose runs exactly once on every exit path, including startup
//     failure, agent-requested termination, handler-decided stops, external
//     stop requests and context cancellation.
//   - The lifecycle moves strictly forward through INIT, RUNNING, CLOSING
//     and CLOSED; no state is ever revisited.
//   - Termination requests are observed at the top of every cycle, so the
//     reaction latency is bounded by one DoWork plus one idle step.
package agent

// Agent is one unit of repeatable work driven by a Runner or an Invoker.
//
// Implementations are called from a single goroutine; they need no internal
// locking for state touched only by OnStart, DoWork and OnClose.
type Agent interface {
	// OnStart runs once before the first DoWork. Returning an error aborts
	// the run: DoWork is never called, OnClose still is.
	OnStart() error

	// DoWork performs one duty cycle and returns the amount of work done.
	// Negative counts are treated as zero. A returned error matching
	// ErrTerminateAgent requests a clean shutdown; any other error is
	// reported to the runner's error handler.
	DoWork() (int, error)

	// OnClose releases the agent's resources. It is called exactly once per
	// run, on every exit path, and must tolerate a preceding OnStart that
	// failed partway through.
	OnClose() error

	// RoleName names the agent for logs and diagnostics only.
	RoleName() string
}

// Decision tells the runner how to proceed after a DoWork failure.
type Decision int

const (
	// Continue keeps the duty cycle going after one idle step.
	Continue Decision = iota
	// Stop ends the run; the runner closes and reports the failure.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ErrorHandler decides whether a duty-cycle failure stops the run. Handlers
// run on the runner's goroutine and must not panic; keep them fast, the
// cycle is paused while they decide. Startup and close failures are also
// reported here, with the decision ignored since there is no cycle left to
// continue.
type ErrorHandler func(err error) Decision
