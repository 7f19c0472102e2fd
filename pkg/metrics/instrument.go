package metrics

import (
	"context"
	"errors"
	"time"

	"metronome/pkg/agent"
)

// instrumentedAgent wraps an agent and reports every duty cycle to a Recorder.
type instrumentedAgent struct {
	inner agent.Agent
	rec   Recorder
	role  string
}

// Instrument decorates an agent so that every DoWork call is timed and
// counted through the given recorder. A nil recorder returns the agent
// unchanged. The wrapper keeps the inner agent's role name so metric labels
// line up with runner diagnostics.
func Instrument(a agent.Agent, rec Recorder) agent.Agent {
	if rec == nil {
		return a
	}
	return &instrumentedAgent{
		inner: a,
		rec:   rec,
		role:  a.RoleName(),
	}
}

func (ia *instrumentedAgent) OnStart() error {
	if err := ia.inner.OnStart(); err != nil {
		ia.rec.IncError(ia.role, ErrorKindFailure)
		return err
	}
	return nil
}

func (ia *instrumentedAgent) DoWork() (int, error) {
	start := time.Now()
	workCount, err := ia.inner.DoWork()
	ia.rec.ObserveCycle(ia.role, workCount, time.Since(start))
	if err != nil {
		ia.rec.IncError(ia.role, errorKind(err))
	}
	return workCount, err
}

func (ia *instrumentedAgent) OnClose() error {
	if err := ia.inner.OnClose(); err != nil {
		ia.rec.IncError(ia.role, ErrorKindFailure)
		return err
	}
	return nil
}

func (ia *instrumentedAgent) RoleName() string {
	return ia.inner.RoleName()
}

// errorKind classifies a duty-cycle error for the errors_total kind label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, agent.ErrTerminateAgent):
		return ErrorKindTerminated
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	default:
		return ErrorKindFailure
	}
}
