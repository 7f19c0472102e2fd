// Package testkit provides test doubles and assertions for duty-cycle code:
// scriptable agents, a collecting error handler, and runner assertions.
package testkit

import (
	"sync"
	"sync/atomic"

	"metronome/pkg/agent"
)

// Step is one scripted DoWork result.
type Step struct {
	Work int
	Err  error
}

// ScriptedAgent replays a fixed script of DoWork results and counts every
// lifecycle call. Once the script is exhausted it returns ExhaustedErr,
// which defaults to a termination request so runners wind down cleanly.
type ScriptedAgent struct {
	Role         string
	StartErr     error
	CloseErr     error
	Script       []Step
	ExhaustedErr error

	startCalls atomic.Int32
	workCalls  atomic.Int32
	closeCalls atomic.Int32
}

// NewScriptedAgent creates a scripted agent with the default exhaustion
// behavior of requesting termination.
func NewScriptedAgent(role string, script ...Step) *ScriptedAgent {
	return &ScriptedAgent{
		Role:         role,
		Script:       script,
		ExhaustedErr: agent.ErrTerminateAgent,
	}
}

// OnStart counts the call and returns the configured start error.
func (s *ScriptedAgent) OnStart() error {
	s.startCalls.Add(1)
	return s.StartErr
}

// DoWork replays the next script step, or ExhaustedErr once the script ends.
func (s *ScriptedAgent) DoWork() (int, error) {
	call := int(s.workCalls.Add(1)) - 1
	if call >= len(s.Script) {
		return 0, s.ExhaustedErr
	}
	step := s.Script[call]
	return step.Work, step.Err
}

// OnClose counts the call and returns the configured close error.
func (s *ScriptedAgent) OnClose() error {
	s.closeCalls.Add(1)
	return s.CloseErr
}

// RoleName returns the configured role.
func (s *ScriptedAgent) RoleName() string {
	return s.Role
}

// StartCalls returns how many times OnStart ran.
func (s *ScriptedAgent) StartCalls() int {
	return int(s.startCalls.Load())
}

// WorkCalls returns how many times DoWork ran.
func (s *ScriptedAgent) WorkCalls() int {
	return int(s.workCalls.Load())
}

// CloseCalls returns how many times OnClose ran.
func (s *ScriptedAgent) CloseCalls() int {
	return int(s.closeCalls.Load())
}

// CollectingHandler is an error handler that records every error it sees.
// It answers Continue until StopAfter errors have been observed; a zero
// StopAfter means it always continues.
type CollectingHandler struct {
	StopAfter int

	mu   sync.Mutex
	seen []error
}

// Handle implements agent.ErrorHandler.
func (c *CollectingHandler) Handle(err error) agent.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = append(c.seen, err)
	if c.StopAfter > 0 && len(c.seen) >= c.StopAfter {
		return agent.Stop
	}
	return agent.Continue
}

// Seen returns a copy of the errors observed so far.
func (c *CollectingHandler) Seen() []error {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]error, len(c.seen))
	copy(out, c.seen)
	return out
}

// Count returns how many errors the handler has observed.
func (c *CollectingHandler) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
