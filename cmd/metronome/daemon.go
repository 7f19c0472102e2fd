package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"metronome/internal/supervisor"
	"metronome/pkg/agent"
	"metronome/pkg/config"
	"metronome/pkg/eventlog"
	"metronome/pkg/idle"
	"metronome/pkg/logx"
	"metronome/pkg/metrics"
	"metronome/pkg/persistence"
	"metronome/pkg/version"
)

const shutdownGrace = 30 * time.Second

// runDaemon contains the main daemon logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func runDaemon(configPath string, tee bool) int {
	if err := config.LoadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}

	// Initialize log file rotation before the daemon starts logging in
	// earnest. Config loading above logs to console only.
	logsDir := cfg.Log.Dir
	if logsDir == "" {
		logsDir = "logs"
	}
	if err := logx.InitializeLogFile(logsDir, 4, tee); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		return 1
	}
	defer logx.CloseLogFile()

	logx.SetDebugConfig(cfg.Log.Debug, logsDir)
	logx.SetDebugDomains(cfg.Log.Domains)

	logger := logx.NewLogger("metronome-main")
	logger.Info("🚀 Starting metronome %s", version.Version)

	exitCode := supervise(cfg, configPath, logger)

	logger.Info("Metronome stopped (exit code %d)", exitCode)
	return exitCode
}

// supervise wires storage, metrics, the supervisor, and the config watcher
// together and blocks until shutdown.
//
//nolint:cyclop // Startup wiring is sequential by nature
func supervise(cfg config.Config, configPath string, logger *logx.Logger) int {
	shutdownMgr := supervisor.NewShutdownManager()

	// Run database
	if err := persistence.Initialize(cfg.Storage.DBPath); err != nil {
		logger.Error("Failed to initialize database: %v", err)
		return 1
	}
	shutdownMgr.Register(supervisor.NewComponentFunc("database", func(_ context.Context) error {
		return persistence.Close()
	}), 5*time.Second)

	// Lifecycle journal
	journal, err := eventlog.NewWriter(cfg.Storage.JournalDir)
	if err != nil {
		logger.Error("Failed to open journal: %v", err)
		return 1
	}
	shutdownMgr.Register(supervisor.NewComponentFunc("journal", func(_ context.Context) error {
		return journal.Close()
	}), 5*time.Second)

	// Metrics
	recorder := metrics.Nop()
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPromRecorder()
		server := startMetricsServer(cfg.Metrics.Addr, logger)
		shutdownMgr.Register(supervisor.NewComponentFunc("metrics-server", func(ctx context.Context) error {
			return server.Shutdown(ctx)
		}), 5*time.Second)
	}

	// Shared idle control word, retuned by the config watcher at runtime.
	var controlStatus atomic.Int64
	status, _ := idle.StatusForName(cfg.Idle.Strategy)
	controlStatus.Store(int64(status))

	// Supervisor
	policy, err := supervisor.PolicyFromConfig(cfg.Restart)
	if err != nil {
		logger.Error("Invalid restart policy: %v", err)
		return 1
	}

	sup := supervisor.NewSupervisor(cfg.Idle.ToStrategyConfig())
	sup.Policy = policy
	sup.SetRecorder(recorder)
	sup.SetJournal(journal)
	sup.SetStore(persistence.Ops())
	sup.SetControlStatus(&controlStatus)

	shutdownCh := make(chan int, 1)
	sup.SetShutdownHandler(supervisor.NewGracefulShutdownHandler(logger, shutdownCh))

	for _, spec := range expandRoles(cfg.Runners) {
		spec := spec
		err := sup.Register(spec.name, func() (agent.Agent, error) {
			return newPulseAgent(spec.name, spec.interval), nil
		})
		if err != nil {
			logger.Error("Failed to register role: %v", err)
			return 1
		}
	}

	// Config hot reload
	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		logger.Error("Failed to create config watcher: %v", err)
		return 1
	}
	watcher.OnChange(func(next config.Config) {
		applyConfigChange(next, &controlStatus, logger)
	})
	if err := watcher.Start(); err != nil {
		logger.Error("Failed to start config watcher: %v", err)
		return 1
	}
	shutdownMgr.Register(supervisor.NewComponentFunc("config-watcher", func(_ context.Context) error {
		watcher.Stop()
		return nil
	}), time.Second)

	// Run until a signal arrives, the supervisor requests shutdown, or all
	// roles finish on their own.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup.Start(ctx)

	supDone := make(chan struct{})
	go func() {
		sup.Wait()
		close(supDone)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("📡 Signal received, shutting down")
		sup.Stop("signal received")
		<-supDone
	case code := <-shutdownCh:
		logger.Warn("Supervisor requested shutdown (exit code %d)", code)
		exitCode = code
		sup.Stop("fatal role failure")
		<-supDone
	case <-supDone:
		logger.Info("All roles finished")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := shutdownMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete: %v", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}

	return exitCode
}

// applyConfigChange reacts to a config reload: retune the shared idle
// control word and the debug log domains. Role changes need a restart.
func applyConfigChange(cfg config.Config, controlStatus *atomic.Int64, logger *logx.Logger) {
	status, ok := idle.StatusForName(cfg.Idle.Strategy)
	if !ok {
		logger.Warn("Reloaded config has unknown idle strategy %q, keeping current", cfg.Idle.Strategy)
	} else if controlStatus.Swap(int64(status)) != int64(status) {
		logger.Info("🔧 Idle strategy switched to %s", cfg.Idle.Strategy)
	}

	logx.SetDebugDomains(cfg.Log.Domains)
}

// roleSpec is one supervised runner: an expanded role name plus its pulse
// interval.
type roleSpec struct {
	name     string
	interval time.Duration
}

// expandRoles flattens runner configs into one spec per runner. A count
// above one yields numbered roles: pulse-1, pulse-2, and so on.
func expandRoles(runners []config.RunnerConfig) []roleSpec {
	var specs []roleSpec
	for _, rc := range runners {
		if rc.Count <= 1 {
			specs = append(specs, roleSpec{name: rc.Role, interval: rc.Interval.Std()})
			continue
		}
		for i := 1; i <= rc.Count; i++ {
			specs = append(specs, roleSpec{
				name:     fmt.Sprintf("%s-%d", rc.Role, i),
				interval: rc.Interval.Std(),
			})
		}
	}
	return specs
}
