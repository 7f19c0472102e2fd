package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"

	"metronome/pkg/config"
	"metronome/pkg/eventlog"
	"metronome/pkg/metrics"
	"metronome/pkg/persistence"
)

// loadCLIConfig loads the config for the read-only CLI modes.
func loadCLIConfig(configPath string) (config.Config, bool) {
	if err := config.LoadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return config.Config{}, false
	}
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return config.Config{}, false
	}
	return cfg, true
}

// runStatus prints recent runs from the run database and exits.
func runStatus(configPath string) int {
	cfg, ok := loadCLIConfig(configPath)
	if !ok {
		return 1
	}

	if _, err := os.Stat(cfg.Storage.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No run database at %s (has the daemon run yet?)\n", cfg.Storage.DBPath)
		return 1
	}

	db, err := persistence.InitializeDatabase(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	runs, err := persistence.NewDatabaseOperations(db).ListRecentRuns(20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}

	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	printRuns(os.Stdout, runs, pretty)
	return 0
}

// printRuns renders run records, decorated for terminals and plain
// otherwise.
func printRuns(w io.Writer, runs []*persistence.RunRecord, pretty bool) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	if pretty {
		fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════════╗")
		fmt.Fprintln(w, "║                           Recent Runs                            ║")
		fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════════╝")
		for _, run := range runs {
			fmt.Fprintf(w, "%s %s\n", stateGlyph(run), formatRun(run))
		}
		return
	}

	for _, run := range runs {
		fmt.Fprintln(w, formatRun(run))
	}
}

// formatRun renders one run as a single line.
func formatRun(run *persistence.RunRecord) string {
	uptime := time.Since(run.StartedAt)
	if run.FinishedAt != nil {
		uptime = run.FinishedAt.Sub(run.StartedAt)
	}

	line := fmt.Sprintf("%s  %-12s %-8s restarts=%d uptime=%s",
		run.StartedAt.Local().Format("2006-01-02 15:04:05"),
		run.Role, run.FinalState, run.Restarts,
		uptime.Round(time.Millisecond))
	if run.Failure != "" {
		line += "  failure=" + run.Failure
	}
	return line
}

func stateGlyph(run *persistence.RunRecord) string {
	switch {
	case run.Failure != "":
		return "❌"
	case run.FinalState == persistence.RunStateClosed:
		return "✅"
	case run.FinalState == persistence.RunStateRunning:
		return "🔄"
	default:
		return "⏳"
	}
}

// runStats queries per-role rates from Prometheus and exits.
func runStats(configPath string) int {
	cfg, ok := loadCLIConfig(configPath)
	if !ok {
		return 1
	}

	qs, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create query service: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := qs.GetAllRunnerStats(ctx, 5*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query %s: %v\n", cfg.Metrics.PrometheusURL, err)
		return 1
	}

	printStats(os.Stdout, stats)
	return 0
}

// printStats renders per-role rates sorted by role.
func printStats(w io.Writer, stats map[string]*metrics.RunnerStats) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No runner metrics found (is Prometheus scraping the daemon?)")
		return
	}

	roles := make([]string, 0, len(stats))
	for role := range stats {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	fmt.Fprintf(w, "%-16s %12s %12s %12s\n", "ROLE", "CYCLES/S", "WORK/S", "ERRORS/S")
	for _, role := range roles {
		s := stats[role]
		fmt.Fprintf(w, "%-16s %12.2f %12.2f %12.4f\n", role, s.CycleRate, s.WorkRate, s.ErrorRate)
	}
}

// runFollow tails the lifecycle journal, printing events as they land.
func runFollow(configPath string) int {
	cfg, ok := loadCLIConfig(configPath)
	if !ok {
		return 1
	}

	dir := cfg.Storage.JournalDir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No journal directory at %s (has the daemon run yet?)\n", dir)
		return 1
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create watcher: %v\n", err)
		return 1
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to watch journal directory: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Print what is already there, then follow.
	current, printed := printNewEvents(dir, "", 0)

	// The ticker covers day rollover and any coalesced write events.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case event, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				current, printed = printNewEvents(dir, current, printed)
			}
		case <-ticker.C:
			current, printed = printNewEvents(dir, current, printed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		}
	}
}

// printNewEvents prints journal events not shown yet. It re-reads the
// newest journal file each time; lifecycle journals stay small enough for
// that. A partially appended last line fails to parse and is retried on
// the next wakeup.
func printNewEvents(dir, current string, printed int) (string, int) {
	files, err := eventlog.ListJournalFiles(dir)
	if err != nil || len(files) == 0 {
		return current, printed
	}

	// Glob output is lexical, which for dated journal names is
	// chronological.
	newest := files[len(files)-1]
	if newest != current {
		current, printed = newest, 0
	}

	events, err := eventlog.ReadEvents(current)
	if err != nil {
		return current, printed
	}
	for _, event := range events[printed:] {
		fmt.Println(formatEvent(event))
	}
	return current, len(events)
}

// formatEvent renders one journal event as a single line.
func formatEvent(event eventlog.Event) string {
	line := fmt.Sprintf("%s  %-12s %-10s", event.Timestamp.Local().Format("15:04:05"), event.Role, event.Kind)
	if event.State != "" {
		line += " state=" + event.State
	}
	if event.Detail != "" {
		line += "  " + event.Detail
	}
	return line
}
