// Package supervisor manages runner lifecycle, restart policies, and run
// bookkeeping. It launches one monitor goroutine per registered role, records
// every launch in the run database and the event journal, and applies the
// restart policy when a runner exits.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"metronome/pkg/agent"
	"metronome/pkg/eventlog"
	"metronome/pkg/idle"
	"metronome/pkg/logx"
	"metronome/pkg/metrics"
	"metronome/pkg/persistence"
)

// Builder constructs a fresh agent for one launch. The supervisor calls it
// before every launch so each run gets a clean instance; runners are
// single-use, so recycled agents would carry state between runs.
type Builder func() (agent.Agent, error)

// Supervisor manages runner lifecycle, restart policies, and run records.
// Register roles before Start; a supervisor drives one Start/Stop cycle.
type Supervisor struct {
	Logger          *logx.Logger
	Policy          RestartPolicy
	Backoff         BackoffConfig
	ShutdownHandler ShutdownHandler // Encapsulated shutdown for graceful termination and testing

	idleConfig    idle.Config
	recorder      metrics.Recorder
	journal       *eventlog.Writer
	ops           *persistence.DatabaseOperations
	controlStatus *atomic.Int64
	signal        *agent.TerminationSignal
	wg            sync.WaitGroup

	mu       sync.Mutex
	builders map[string]Builder
	order    []string
	running  bool
}

// NewSupervisor creates a supervisor whose runners idle per idleCfg.
// Metrics, journal and run store are optional and disabled until injected
// with the Set methods.
func NewSupervisor(idleCfg idle.Config) *Supervisor {
	logger := logx.NewLogger("supervisor")

	return &Supervisor{
		Logger:          logger,
		Policy:          DefaultRestartPolicy(),
		Backoff:         DefaultBackoffConfig,
		ShutdownHandler: NewDefaultShutdownHandler(logger), // Default to immediate shutdown
		idleConfig:      idleCfg,
		recorder:        metrics.Nop(),
		signal:          agent.NewTerminationSignal(),
		builders:        make(map[string]Builder),
	}
}

// SetRecorder installs a metrics recorder. A nil recorder disables metrics.
func (s *Supervisor) SetRecorder(rec metrics.Recorder) {
	if rec == nil {
		rec = metrics.Nop()
	}
	s.recorder = rec
}

// SetJournal installs the event journal writer. Without one, lifecycle
// events are only logged.
func (s *Supervisor) SetJournal(journal *eventlog.Writer) {
	s.journal = journal
}

// SetStore installs the run database operations. Without one, runs leave no
// persistent records.
func (s *Supervisor) SetStore(ops *persistence.DatabaseOperations) {
	s.ops = ops
}

// SetShutdownHandler allows injecting a custom shutdown handler.
// This is useful for testing (mock handler) or implementing graceful shutdown.
func (s *Supervisor) SetShutdownHandler(handler ShutdownHandler) {
	s.ShutdownHandler = handler
	s.Logger.Info("Custom shutdown handler installed")
}

// SetControlStatus installs a shared idle control word. When set, every
// runner idles through a controllable strategy reading this word, so the
// config watcher can retune idle behavior across all roles at runtime.
func (s *Supervisor) SetControlStatus(status *atomic.Int64) {
	s.controlStatus = status
}

// Signal returns the termination signal shared by all supervised runners.
func (s *Supervisor) Signal() *agent.TerminationSignal {
	return s.signal
}

// Register adds a role and its agent builder. Roles must be registered
// before Start and must be unique.
func (s *Supervisor) Register(role string, build Builder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot register role %s: supervisor already running", role)
	}
	if role == "" {
		return fmt.Errorf("cannot register role with empty name")
	}
	if build == nil {
		return fmt.Errorf("cannot register role %s: nil builder", role)
	}
	if _, exists := s.builders[role]; exists {
		return fmt.Errorf("role %s already registered", role)
	}

	s.builders[role] = build
	s.order = append(s.order, role)
	s.Logger.Info("Registered role: %s", role)
	return nil
}

// Start launches one monitor goroutine per registered role. Each monitor
// builds, runs, and per policy relaunches its role's agent until the role
// winds down. Use Wait to block until every monitor has finished.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Logger.Warn("Supervisor already running")
		return
	}
	s.running = true
	roles := make([]string, len(s.order))
	copy(roles, s.order)
	s.mu.Unlock()

	s.Logger.Info("🚀 Supervisor starting %d role(s)", len(roles))

	for _, role := range roles {
		s.mu.Lock()
		build := s.builders[role]
		s.mu.Unlock()

		s.wg.Add(1)
		go func(role string, build Builder) {
			defer s.wg.Done()
			s.monitor(ctx, role, build)
		}(role, build)
	}
}

// Stop requests termination of every supervised runner. Runners observe the
// request at the top of their next duty cycle; use Wait to block until they
// have all closed.
func (s *Supervisor) Stop(reason string) {
	s.Logger.Info("Supervisor stop requested: %s", reason)
	s.signal.Request()
}

// Wait blocks until every role's monitor goroutine has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// monitor is the per-role launch loop: build the agent, run it to
// completion, record the outcome, then consult the restart policy.
func (s *Supervisor) monitor(ctx context.Context, role string, build Builder) {
	attempts := 0
	lastRunID := ""

	for {
		a, err := build()
		if err != nil {
			s.Logger.Error("Failed to build agent for role %s: %v", role, err)
			s.journalEvent(eventlog.Failure(lastRunID, role, "", err))
			if !s.scheduleRestart(ctx, role, lastRunID, &attempts, err) {
				return
			}
			continue
		}

		run := persistence.NewRunRecord(role)
		lastRunID = run.ID
		if s.ops != nil {
			if err := s.ops.InsertRun(run); err != nil {
				s.Logger.Warn("Failed to record run %s: %v", run.ID, err)
			}
		}
		s.journalEvent(eventlog.Started(run.ID, role))

		runner := agent.NewRunner(metrics.Instrument(a, s.recorder), s.strategyForLaunch(), s.handlerFor(role, run.ID))
		if err := runner.BindSignal(s.signal); err != nil {
			s.Logger.Error("Failed to bind termination signal for role %s: %v", role, err)
		}

		s.markRunning(run.ID, role)
		startedAt := time.Now()
		runErr := runner.Run(ctx)
		s.recordExit(run.ID, role, string(runner.State()), runErr)

		if s.signal.Requested() || ctx.Err() != nil {
			s.Logger.Info("Role %s stopped: shutdown in progress", role)
			return
		}

		// A run that stayed up long enough counts as healthy and clears the
		// attempt counter, so a role that crashes once a day never hits the
		// restart cap.
		if time.Since(startedAt) >= healthyUptime {
			attempts = 0
		}

		if !s.scheduleRestart(ctx, role, run.ID, &attempts, runErr) {
			return
		}
	}
}

// markRunning records the transition into the duty cycle. The runner moves
// to RUNNING on its own goroutine right after OnStart succeeds; the row is
// updated optimistically here and corrected by recordExit either way.
func (s *Supervisor) markRunning(runID, role string) {
	if s.ops != nil {
		if err := s.ops.UpdateRunState(runID, persistence.RunStateRunning); err != nil {
			s.Logger.Warn("Failed to update run %s state: %v", runID, err)
		}
	}
	s.recorder.SetState(role, string(agent.StateRunning))
}

// recordExit persists the final state of a finished run and journals how it
// ended.
func (s *Supervisor) recordExit(runID, role, finalState string, runErr error) {
	failure := ""
	if runErr != nil {
		failure = runErr.Error()
	}

	if s.ops != nil {
		if err := s.ops.FinishRun(runID, finalState, failure, time.Now().UTC()); err != nil {
			s.Logger.Warn("Failed to finish run %s: %v", runID, err)
		}
	}
	s.recorder.SetState(role, finalState)

	if runErr != nil {
		s.Logger.Error("Role %s run %s failed: %v", role, runID, runErr)
		s.journalEvent(eventlog.Failure(runID, role, finalState, runErr))
	} else {
		s.Logger.Info("Role %s run %s closed cleanly", role, runID)
		s.journalEvent(eventlog.Closed(runID, role, ""))
	}
}

// scheduleRestart consults the restart policy after an exit and performs the
// chosen action. It returns false when the monitor should end: the policy
// ignored the exit, shutdown was triggered, the restart cap was exceeded, or
// the backoff sleep was interrupted.
func (s *Supervisor) scheduleRestart(ctx context.Context, role, runID string, attempts *int, runErr error) bool {
	failed := runErr != nil

	switch action := s.Policy.ActionFor(role, failed); action {
	case ActionIgnore:
		s.Logger.Info("Role %s exited, no restart configured", role)
		return false

	case ActionShutdown:
		reason := fmt.Sprintf("role %s exited", role)
		if failed {
			reason = fmt.Sprintf("role %s failed: %v", role, runErr)
		}
		s.ShutdownHandler.Shutdown(1, reason)
		return false

	case ActionRestart:
		// Handled below.

	default:
		s.Logger.Error("Unknown restart action %d for role %s", action, role)
		return false
	}

	*attempts++
	if s.Policy.MaxAttempts > 0 && *attempts > s.Policy.MaxAttempts {
		s.Logger.Error("Role %s exceeded %d restart attempts, giving up", role, s.Policy.MaxAttempts)
		return false
	}

	s.recorder.IncRestart(role)
	if s.ops != nil && runID != "" {
		if err := s.ops.IncrementRestarts(runID); err != nil {
			s.Logger.Warn("Failed to count restart for run %s: %v", runID, err)
		}
	}
	s.journalEvent(eventlog.Restart(runID, role, *attempts))

	delay := s.Backoff.DelayFor(*attempts)
	s.Logger.Info("Restarting role %s in %s (attempt %d)", role, delay, *attempts)
	if !sleepContext(ctx, delay) {
		return false
	}
	return !s.signal.Requested()
}

// strategyForLaunch builds a fresh idle strategy for one launch. Strategies
// hold per-runner escalation state and must never be shared between runners.
func (s *Supervisor) strategyForLaunch() idle.Strategy {
	if s.controlStatus != nil {
		return idle.NewControllable(s.controlStatus, s.idleConfig.SleepPeriod)
	}

	strategy, err := idle.FromConfig(s.idleConfig)
	if err != nil {
		s.Logger.Warn("Invalid idle configuration, using default strategy: %v", err)
		return idle.Default()
	}
	return strategy
}

// handlerFor builds the error handler for one run: log, journal, and keep
// the duty cycle going. Stop decisions come from the termination signal and
// the restart policy, not from individual duty-cycle failures.
func (s *Supervisor) handlerFor(role, runID string) agent.ErrorHandler {
	return func(err error) agent.Decision {
		s.Logger.Error("Role %s duty cycle failure: %v", role, err)
		s.journalEvent(eventlog.Failure(runID, role, "", err))
		return agent.Continue
	}
}

// journalEvent appends to the journal when one is configured. Journal write
// failures are logged and otherwise ignored; bookkeeping never takes a
// runner down.
func (s *Supervisor) journalEvent(event eventlog.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(event); err != nil {
		s.Logger.Warn("Failed to journal %s event: %v", event.Kind, err)
	}
}

// sleepContext sleeps for d unless ctx ends first. Reports whether the full
// delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
