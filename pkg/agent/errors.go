package agent

import "errors"

// Sentinel errors for runner and invoker lifecycle handling. Match with
// errors.Is; all of them may arrive wrapped.
var (
	// ErrTerminateAgent is returned (directly or wrapped) by an agent's
	// DoWork to request a clean shutdown of its runner. It is a control
	// signal, not a failure: it never reaches the error handler and leaves
	// no recorded failure behind.
	ErrTerminateAgent = errors.New("agent requested termination")

	// ErrRunnerReused is returned by Run when a runner is started a second
	// time. A runner drives exactly one forward pass through its lifecycle;
	// build a new runner to run the agent again.
	ErrRunnerReused = errors.New("runner already used")

	// ErrInvalidTransition is returned when a lifecycle transition would
	// move backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvokerStarted is returned by Invoker.Start after a successful start.
	ErrInvokerStarted = errors.New("invoker already started")

	// ErrInvokerClosed is returned by Invoker.Start after the invoker closed.
	ErrInvokerClosed = errors.New("invoker already closed")

	// ErrEmptyComposite is returned when building a composite with no members.
	ErrEmptyComposite = errors.New("composite needs at least one agent")
)
