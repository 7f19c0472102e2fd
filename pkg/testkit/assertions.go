package testkit

import (
	"errors"
	"testing"
	"time"

	"metronome/pkg/agent"
)

// AssertState verifies the runner's lifecycle state.
func AssertState(t *testing.T, runner *agent.Runner, expected agent.State) {
	t.Helper()
	if got := runner.State(); got != expected {
		t.Errorf("Expected runner state %s, got %s", expected, got)
	}
}

// AssertClosedCleanly verifies the runner reached CLOSED without a recorded failure.
func AssertClosedCleanly(t *testing.T, runner *agent.Runner) {
	t.Helper()
	if got := runner.State(); got != agent.StateClosed {
		t.Errorf("Expected runner state %s, got %s", agent.StateClosed, got)
	}
	if err := runner.Err(); err != nil {
		t.Errorf("Expected no recorded failure, got %v", err)
	}
}

// AssertRecordedFailure verifies the runner's last observed failure matches target.
func AssertRecordedFailure(t *testing.T, runner *agent.Runner, target error) {
	t.Helper()
	err := runner.Err()
	if err == nil {
		t.Errorf("Expected recorded failure %v, got nil", target)
		return
	}
	if !errors.Is(err, target) {
		t.Errorf("Expected recorded failure %v, got %v", target, err)
	}
}

// AssertWorkCalls verifies how many duty cycles the agent ran.
func AssertWorkCalls(t *testing.T, a *ScriptedAgent, expected int) {
	t.Helper()
	if got := a.WorkCalls(); got != expected {
		t.Errorf("Expected %d DoWork calls, got %d", expected, got)
	}
}

// AssertClosedOnce verifies OnClose ran exactly once.
func AssertClosedOnce(t *testing.T, a *ScriptedAgent) {
	t.Helper()
	if got := a.CloseCalls(); got != 1 {
		t.Errorf("Expected OnClose to run exactly once, ran %d times", got)
	}
}

// WaitForDone blocks until the runner finishes or the timeout elapses.
func WaitForDone(t *testing.T, runner *agent.Runner, timeout time.Duration) {
	t.Helper()
	select {
	case <-runner.Done():
	case <-time.After(timeout):
		t.Fatalf("Timed out after %s waiting for runner to finish", timeout)
	}
}
