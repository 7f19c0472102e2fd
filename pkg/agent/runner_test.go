package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAgent is a scriptable agent for runner tests. Counters are atomic so
// tests can observe progress while the runner goroutine is still working.
type fakeAgent struct {
	role     string
	startErr error
	closeErr error
	work     func(call int) (int, error)

	startCalls atomic.Int32
	workCalls  atomic.Int32
	closeCalls atomic.Int32
}

func (f *fakeAgent) OnStart() error {
	f.startCalls.Add(1)
	return f.startErr
}

func (f *fakeAgent) DoWork() (int, error) {
	call := int(f.workCalls.Add(1))
	if f.work == nil {
		return 0, nil
	}
	return f.work(call)
}

func (f *fakeAgent) OnClose() error {
	f.closeCalls.Add(1)
	return f.closeErr
}

func (f *fakeAgent) RoleName() string {
	if f.role == "" {
		return "fake"
	}
	return f.role
}

// countingStrategy records every workCount passed to Idle. It yields on
// empty cycles so runner loops in tests do not monopolize the scheduler.
type countingStrategy struct {
	counts []int
	resets int
}

func (s *countingStrategy) Idle(workCount int) {
	s.counts = append(s.counts, workCount)
	if workCount <= 0 {
		runtime.Gosched()
	}
}

func (s *countingStrategy) Reset() {
	s.resets++
}

// emptyIdles counts the recorded empty-cycle idles.
func (s *countingStrategy) emptyIdles() int {
	n := 0
	for _, c := range s.counts {
		if c <= 0 {
			n++
		}
	}
	return n
}

func startRunner(r *Runner) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background())
	}()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Runner did not finish within bounded time")
		return nil
	}
}

func TestRunnerStopsOnExternalSignal(t *testing.T) {
	fake := &fakeAgent{role: "idler"}
	r := NewRunner(fake, &countingStrategy{}, nil)

	errCh := startRunner(r)

	// Let the duty cycle turn over a few times before stopping.
	deadline := time.Now().Add(5 * time.Second)
	for fake.workCalls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("Runner never performed work cycles")
		}
		runtime.Gosched()
	}

	r.Stop()

	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Expected nil from externally stopped run, got %v", err)
	}
	select {
	case <-r.Done():
	default:
		t.Error("Expected Done to be closed after Run returned")
	}
	if state := r.State(); state != StateClosed {
		t.Errorf("Expected CLOSED, got %s", state)
	}
	if n := fake.closeCalls.Load(); n != 1 {
		t.Errorf("Expected OnClose once, got %d", n)
	}
	if err := r.Err(); err != nil {
		t.Errorf("Expected no recorded failure, got %v", err)
	}
}

func TestRunnerAgentRequestedTermination(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"direct sentinel", ErrTerminateAgent},
		{"wrapped sentinel", fmt.Errorf("drained queue: %w", ErrTerminateAgent)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAgent{
				work: func(call int) (int, error) {
					if call == 3 {
						return 0, tt.err
					}
					return 1, nil
				},
			}
			r := NewRunner(fake, &countingStrategy{}, nil)

			if err := waitRun(t, startRunner(r)); err != nil {
				t.Errorf("Expected nil from agent-requested termination, got %v", err)
			}
			if n := fake.workCalls.Load(); n != 3 {
				t.Errorf("Expected exactly 3 DoWork calls, got %d", n)
			}
			if n := fake.closeCalls.Load(); n != 1 {
				t.Errorf("Expected OnClose once, got %d", n)
			}
			if err := r.Err(); err != nil {
				t.Errorf("Termination is not a failure, but recorded %v", err)
			}
			if state := r.State(); state != StateClosed {
				t.Errorf("Expected CLOSED, got %s", state)
			}
		})
	}
}

func TestRunnerContinuesPastTransientFailures(t *testing.T) {
	transient := errors.New("upstream hiccup")
	fake := &fakeAgent{
		work: func(call int) (int, error) {
			switch {
			case call <= 2:
				return 0, transient
			case call == 5:
				return 0, ErrTerminateAgent
			default:
				return 2, nil
			}
		},
	}
	strategy := &countingStrategy{}

	var handled []error
	handler := func(err error) Decision {
		handled = append(handled, err)
		return Continue
	}

	r := NewRunner(fake, strategy, handler)
	if err := waitRun(t, startRunner(r)); err != nil {
		t.Errorf("Expected nil after surviving transient failures, got %v", err)
	}

	if n := fake.workCalls.Load(); n != 5 {
		t.Errorf("Expected work to continue to call 5, got %d", n)
	}
	if len(handled) != 2 {
		t.Fatalf("Expected handler to see 2 failures, got %d", len(handled))
	}
	for _, err := range handled {
		if !errors.Is(err, transient) {
			t.Errorf("Handler saw unexpected error %v", err)
		}
	}
	// Each continued failure idles once with an empty cycle.
	if n := strategy.emptyIdles(); n != 2 {
		t.Errorf("Expected one empty idle per continued failure, got %d", n)
	}
	if err := r.Err(); !errors.Is(err, transient) {
		t.Errorf("Expected last observed failure recorded, got %v", err)
	}
}

func TestRunnerStopsWhenHandlerSaysStop(t *testing.T) {
	fatal := errors.New("wedged")
	fake := &fakeAgent{
		work: func(call int) (int, error) {
			if call == 2 {
				return 0, fatal
			}
			return 1, nil
		},
	}
	handler := func(error) Decision { return Stop }

	r := NewRunner(fake, &countingStrategy{}, handler)
	err := waitRun(t, startRunner(r))

	if !errors.Is(err, fatal) {
		t.Errorf("Expected Run to return the stopping failure, got %v", err)
	}
	if n := fake.workCalls.Load(); n != 2 {
		t.Errorf("Expected no work after the stop decision, got %d calls", n)
	}
	if n := fake.closeCalls.Load(); n != 1 {
		t.Errorf("Expected OnClose once, got %d", n)
	}
	if err := r.Err(); !errors.Is(err, fatal) {
		t.Errorf("Expected failure recorded, got %v", err)
	}
}

func TestRunnerOnStartFailure(t *testing.T) {
	startErr := errors.New("missing dependency")
	fake := &fakeAgent{startErr: startErr}

	var handled []error
	handler := func(err error) Decision {
		handled = append(handled, err)
		return Continue
	}

	r := NewRunner(fake, &countingStrategy{}, handler)
	err := waitRun(t, startRunner(r))

	if !errors.Is(err, startErr) {
		t.Errorf("Expected Run to return the start failure, got %v", err)
	}
	if n := fake.workCalls.Load(); n != 0 {
		t.Errorf("Expected DoWork never called after failed start, got %d", n)
	}
	if n := fake.closeCalls.Load(); n != 1 {
		t.Errorf("Expected OnClose once after failed start, got %d", n)
	}
	if len(handled) != 1 || !errors.Is(handled[0], startErr) {
		t.Errorf("Expected handler to see the start failure, got %v", handled)
	}
	if state := r.State(); state != StateClosed {
		t.Errorf("Expected CLOSED after failed start, got %s", state)
	}
	if err := r.Err(); !errors.Is(err, startErr) {
		t.Errorf("Expected start failure recorded, got %v", err)
	}
}

func TestRunnerOnCloseFailureStillCloses(t *testing.T) {
	closeErr := errors.New("flush failed")
	fake := &fakeAgent{
		closeErr: closeErr,
		work: func(int) (int, error) {
			return 0, ErrTerminateAgent
		},
	}

	var handled []error
	handler := func(err error) Decision {
		handled = append(handled, err)
		return Continue
	}

	r := NewRunner(fake, &countingStrategy{}, handler)
	if err := waitRun(t, startRunner(r)); err != nil {
		t.Errorf("Close failure must not change the run result, got %v", err)
	}

	if state := r.State(); state != StateClosed {
		t.Errorf("Expected CLOSED despite close failure, got %s", state)
	}
	if len(handled) != 1 || !errors.Is(handled[0], closeErr) {
		t.Errorf("Expected handler to see the close failure, got %v", handled)
	}
	if err := r.Err(); !errors.Is(err, closeErr) {
		t.Errorf("Expected close failure recorded, got %v", err)
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	fake := &fakeAgent{}
	r := NewRunner(fake, &countingStrategy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()

	cancel()

	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Expected nil from canceled run, got %v", err)
	}
	if n := fake.closeCalls.Load(); n != 1 {
		t.Errorf("Expected OnClose once, got %d", n)
	}
	if state := r.State(); state != StateClosed {
		t.Errorf("Expected CLOSED, got %s", state)
	}
}

func TestRunnerIsSingleUse(t *testing.T) {
	fake := &fakeAgent{
		work: func(int) (int, error) { return 0, ErrTerminateAgent },
	}
	r := NewRunner(fake, &countingStrategy{}, nil)

	if err := waitRun(t, startRunner(r)); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	err := r.Run(context.Background())
	if !errors.Is(err, ErrRunnerReused) {
		t.Errorf("Expected ErrRunnerReused, got %v", err)
	}
	if n := fake.closeCalls.Load(); n != 1 {
		t.Errorf("Rejected rerun must not close again, got %d close calls", n)
	}
}

func TestRunnerSharedSignal(t *testing.T) {
	sig := NewTerminationSignal()

	first := &fakeAgent{role: "first"}
	second := &fakeAgent{role: "second"}
	r1 := NewRunner(first, &countingStrategy{}, nil)
	r2 := NewRunner(second, &countingStrategy{}, nil)

	if err := r1.BindSignal(sig); err != nil {
		t.Fatalf("BindSignal failed: %v", err)
	}
	if err := r2.BindSignal(sig); err != nil {
		t.Fatalf("BindSignal failed: %v", err)
	}

	ch1 := startRunner(r1)
	ch2 := startRunner(r2)

	sig.Request()

	if err := waitRun(t, ch1); err != nil {
		t.Errorf("Expected nil from shared-signal stop, got %v", err)
	}
	if err := waitRun(t, ch2); err != nil {
		t.Errorf("Expected nil from shared-signal stop, got %v", err)
	}
	if !sig.Requested() {
		t.Error("Expected signal to stay requested")
	}

	// Binding after start is rejected.
	if err := r1.BindSignal(NewTerminationSignal()); !errors.Is(err, ErrRunnerReused) {
		t.Errorf("Expected ErrRunnerReused binding a started runner, got %v", err)
	}
}

func TestRunnerClampsNegativeWorkCounts(t *testing.T) {
	fake := &fakeAgent{
		work: func(call int) (int, error) {
			if call == 1 {
				return -5, nil
			}
			return 0, ErrTerminateAgent
		},
	}
	strategy := &countingStrategy{}

	r := NewRunner(fake, strategy, nil)
	if err := waitRun(t, startRunner(r)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(strategy.counts) != 1 || strategy.counts[0] != 0 {
		t.Errorf("Expected negative work clamped to a single Idle(0), got %v", strategy.counts)
	}
}

func TestNewRunnerNilAgentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil agent")
		}
	}()
	NewRunner(nil, nil, nil)
}

func TestTerminationSignalIdempotent(t *testing.T) {
	sig := NewTerminationSignal()
	if sig.Requested() {
		t.Error("Expected fresh signal to be unset")
	}
	sig.Request()
	sig.Request()
	if !sig.Requested() {
		t.Error("Expected signal to be set after Request")
	}
}
