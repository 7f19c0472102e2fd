package agent

import (
	"errors"

	"metronome/pkg/logx"
)

// Invoker embeds an agent's duty cycle into a caller-owned loop instead of a
// dedicated goroutine. The caller decides when cycles happen and how to wait
// between them; the invoker keeps the same start-once, close-once and
// termination semantics as a Runner.
//
// An Invoker belongs to a single goroutine and is not safe for concurrent use.
type Invoker struct {
	agent   Agent
	handler ErrorHandler
	logger  *logx.Logger
	started bool
	closed  bool
	lastErr error
}

// NewInvoker builds an invoker around agent. A nil handler logs failures and
// continues. Panics on a nil agent.
func NewInvoker(agent Agent, handler ErrorHandler) *Invoker {
	if agent == nil {
		panic("agent: NewInvoker requires a non-nil Agent")
	}
	logger := logx.NewLogger(agent.RoleName())
	if handler == nil {
		handler = NewLoggingHandler(logger)
	}
	return &Invoker{
		agent:   agent,
		handler: handler,
		logger:  logger,
	}
}

// Start runs OnStart once. If OnStart fails the invoker closes immediately
// (OnClose still runs) and the failure is returned. Starting twice returns
// ErrInvokerStarted; starting after Close returns ErrInvokerClosed.
func (iv *Invoker) Start() error {
	if iv.closed {
		return ErrInvokerClosed
	}
	if iv.started {
		return ErrInvokerStarted
	}

	if err := iv.agent.OnStart(); err != nil {
		iv.lastErr = err
		iv.handler(err)
		iv.Close()
		return err
	}
	iv.started = true
	return nil
}

// Invoke performs one duty cycle and returns the work count. Before Start
// and after Close it does nothing and returns zero. Agent-requested
// termination closes the invoker; other failures go to the handler, and a
// Stop decision closes the invoker as well.
func (iv *Invoker) Invoke() int {
	if !iv.started || iv.closed {
		return 0
	}

	workCount, err := iv.agent.DoWork()
	if workCount < 0 {
		workCount = 0
	}
	if err != nil {
		if errors.Is(err, ErrTerminateAgent) {
			iv.logger.Debug("Agent requested termination")
			iv.Close()
			return workCount
		}
		iv.lastErr = err
		if iv.handler(err) == Stop {
			iv.Close()
		}
		return workCount
	}
	return workCount
}

// Close runs OnClose once. Subsequent calls return nil.
func (iv *Invoker) Close() error {
	if iv.closed {
		return nil
	}
	iv.closed = true

	if err := iv.agent.OnClose(); err != nil {
		iv.lastErr = err
		iv.handler(err)
		return err
	}
	return nil
}

// Closed reports whether the invoker has closed.
func (iv *Invoker) Closed() bool {
	return iv.closed
}

// Err returns the last failure observed, nil if none.
func (iv *Invoker) Err() error {
	return iv.lastErr
}
