package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"metronome/pkg/idle"
	"metronome/pkg/logx"
)

// Runner drives one Agent's duty cycle on the goroutine that calls Run.
// It owns the agent and the idle strategy exclusively; neither may be shared
// with another runner. A runner is single-use: once Run returns the runner
// is CLOSED for good and a fresh one must be built to run the agent again.
type Runner struct {
	agent    Agent
	strategy idle.Strategy
	handler  ErrorHandler
	logger   *logx.Logger
	signal   *TerminationSignal

	mu      sync.Mutex
	state   State
	lastErr error

	started atomic.Bool
	done    chan struct{}
}

// NewLoggingHandler returns the default error handler: log the failure and
// keep the duty cycle going.
func NewLoggingHandler(logger *logx.Logger) ErrorHandler {
	return func(err error) Decision {
		logger.Error("Duty cycle failure: %v", err)
		return Continue
	}
}

// NewRunner builds a runner around agent. A nil strategy takes the default
// backoff strategy; a nil handler logs failures and continues. Panics on a
// nil agent since there is nothing sensible to run.
func NewRunner(agent Agent, strategy idle.Strategy, handler ErrorHandler) *Runner {
	if agent == nil {
		panic("agent: NewRunner requires a non-nil Agent")
	}
	logger := logx.NewLogger(agent.RoleName())
	if strategy == nil {
		strategy = idle.Default()
	}
	if handler == nil {
		handler = NewLoggingHandler(logger)
	}
	return &Runner{
		agent:    agent,
		strategy: strategy,
		handler:  handler,
		logger:   logger,
		signal:   NewTerminationSignal(),
		state:    StateInit,
		done:     make(chan struct{}),
	}
}

// BindSignal installs a shared termination signal so one Request can stop
// several runners. Must be called before Run.
func (r *Runner) BindSignal(sig *TerminationSignal) error {
	if sig == nil {
		return nil
	}
	if r.started.Load() {
		return ErrRunnerReused
	}
	r.signal = sig
	return nil
}

// Signal returns the termination signal this runner watches.
func (r *Runner) Signal() *TerminationSignal {
	return r.signal
}

// Stop requests termination. Safe from any goroutine, idempotent, returns
// immediately; the runner observes the request at the top of its next cycle.
func (r *Runner) Stop() {
	r.signal.Request()
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the last failure the runner observed: a startup failure, the
// most recent DoWork failure (even one the handler elected to continue
// past), or a close failure. Nil after a clean run. Stable once Done is
// closed.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Done returns a channel closed once the runner reaches CLOSED.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Run executes the duty cycle until the agent requests termination, the
// handler stops on a failure, the termination signal is set, or ctx is
// canceled. It returns the failure that ended the run: the OnStart error or
// the DoWork error the handler stopped on. Clean exits, including
// agent-requested termination, return nil.
//
// OnClose runs exactly once before Run returns, on every path.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerReused
	}
	defer close(r.done)
	defer r.closeAgent()

	r.logger.Debug("Runner starting: %s", r.agent.RoleName())
	if err := r.agent.OnStart(); err != nil {
		r.recordFailure(err)
		r.handler(err)
		return err
	}
	if err := r.transitionTo(StateRunning); err != nil {
		return err
	}

	for {
		if r.signal.Requested() {
			r.logger.Debug("Termination requested, ending duty cycle")
			return nil
		}
		if ctx.Err() != nil {
			r.logger.Debug("Context canceled, ending duty cycle")
			return nil
		}

		workCount, err := r.agent.DoWork()
		if err != nil {
			if errors.Is(err, ErrTerminateAgent) {
				r.logger.Debug("Agent requested termination")
				return nil
			}
			r.recordFailure(err)
			if r.handler(err) == Stop {
				return err
			}
			r.strategy.Idle(0)
			continue
		}
		if workCount < 0 {
			workCount = 0
		}
		r.strategy.Idle(workCount)
	}
}

// closeAgent runs the teardown half of the lifecycle. It is reached exactly
// once per run, after the error handler has had its say.
func (r *Runner) closeAgent() {
	if err := r.transitionTo(StateClosing); err != nil {
		r.logger.Warn("Closing transition rejected: %v", err)
	}
	if err := r.agent.OnClose(); err != nil {
		r.recordFailure(err)
		r.handler(err)
	}
	if err := r.transitionTo(StateClosed); err != nil {
		r.logger.Warn("Closed transition rejected: %v", err)
	}
}

func (r *Runner) transitionTo(next State) error {
	r.mu.Lock()
	current := r.state
	if !IsValidTransition(current, next) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, next)
	}
	r.state = next
	r.mu.Unlock()

	r.logger.Debug("🔄 Runner transition: %s → %s", current, next)
	return nil
}

func (r *Runner) recordFailure(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}
