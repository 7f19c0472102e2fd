package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"metronome/pkg/config"
	"metronome/pkg/eventlog"
	"metronome/pkg/metrics"
	"metronome/pkg/persistence"
)

// TestExpandRoles tests runner config flattening.
func TestExpandRoles(t *testing.T) {
	tests := []struct {
		name     string
		runners  []config.RunnerConfig
		expected []string
	}{
		{
			"single role",
			[]config.RunnerConfig{{Role: "pulse", Count: 1}},
			[]string{"pulse"},
		},
		{
			"numbered roles",
			[]config.RunnerConfig{{Role: "pulse", Count: 3}},
			[]string{"pulse-1", "pulse-2", "pulse-3"},
		},
		{
			"zero count treated as one",
			[]config.RunnerConfig{{Role: "worker", Count: 0}},
			[]string{"worker"},
		},
		{
			"mixed roles",
			[]config.RunnerConfig{
				{Role: "pulse", Count: 2},
				{Role: "ticker", Count: 1},
			},
			[]string{"pulse-1", "pulse-2", "ticker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := expandRoles(tt.runners)
			if len(specs) != len(tt.expected) {
				t.Fatalf("expected %d specs, got %d", len(tt.expected), len(specs))
			}
			for i, name := range tt.expected {
				if specs[i].name != name {
					t.Errorf("spec[%d].name = %s, want %s", i, specs[i].name, name)
				}
			}
		})
	}
}

// TestExpandRolesKeepsInterval tests that intervals survive expansion.
func TestExpandRolesKeepsInterval(t *testing.T) {
	runners := []config.RunnerConfig{
		{Role: "pulse", Count: 2, Interval: config.Duration(time.Second)},
	}

	for _, spec := range expandRoles(runners) {
		if spec.interval != time.Second {
			t.Errorf("expected interval 1s, got %v", spec.interval)
		}
	}
}

// TestPulseAgentBeats tests the beat-per-interval contract.
func TestPulseAgentBeats(t *testing.T) {
	pulse := newPulseAgent("pulse", 20*time.Millisecond)

	if pulse.RoleName() != "pulse" {
		t.Errorf("expected role pulse, got %s", pulse.RoleName())
	}
	if err := pulse.OnStart(); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}

	// Immediately after start the interval has not elapsed.
	if work, err := pulse.DoWork(); err != nil || work != 0 {
		t.Errorf("expected no work right after start, got (%d, %v)", work, err)
	}

	time.Sleep(25 * time.Millisecond)
	if work, err := pulse.DoWork(); err != nil || work != 1 {
		t.Errorf("expected one beat after the interval, got (%d, %v)", work, err)
	}

	// The beat resets the clock.
	if work, err := pulse.DoWork(); err != nil || work != 0 {
		t.Errorf("expected no work right after a beat, got (%d, %v)", work, err)
	}

	if err := pulse.OnClose(); err != nil {
		t.Errorf("OnClose failed: %v", err)
	}
	if pulse.beats != 1 {
		t.Errorf("expected 1 beat, got %d", pulse.beats)
	}
}

// TestPulseAgentDefaultInterval tests the non-positive interval fallback.
func TestPulseAgentDefaultInterval(t *testing.T) {
	pulse := newPulseAgent("pulse", 0)
	if pulse.interval != config.DefaultInterval {
		t.Errorf("expected default interval %v, got %v", config.DefaultInterval, pulse.interval)
	}
}

// TestFormatRun tests the single-line run rendering.
func TestFormatRun(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	finished := started.Add(500 * time.Millisecond)

	run := &persistence.RunRecord{
		ID:         "run-1",
		Role:       "pulse",
		StartedAt:  started,
		FinishedAt: &finished,
		FinalState: persistence.RunStateClosed,
		Restarts:   2,
	}

	line := formatRun(run)
	for _, want := range []string{"pulse", "CLOSED", "restarts=2", "uptime=500ms"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected line to contain %q, got: %s", want, line)
		}
	}
	if strings.Contains(line, "failure=") {
		t.Errorf("expected no failure column for clean run, got: %s", line)
	}

	run.Failure = "queue stalled"
	if line := formatRun(run); !strings.Contains(line, "failure=queue stalled") {
		t.Errorf("expected failure column, got: %s", line)
	}
}

// TestPrintRuns tests plain versus decorated output.
func TestPrintRuns(t *testing.T) {
	run := &persistence.RunRecord{
		ID:         "run-1",
		Role:       "pulse",
		StartedAt:  time.Now(),
		FinalState: persistence.RunStateRunning,
	}

	var plain bytes.Buffer
	printRuns(&plain, []*persistence.RunRecord{run}, false)
	if strings.Contains(plain.String(), "Recent Runs") {
		t.Error("plain output should not include the header box")
	}
	if !strings.Contains(plain.String(), "pulse") {
		t.Errorf("plain output missing run line: %s", plain.String())
	}

	var pretty bytes.Buffer
	printRuns(&pretty, []*persistence.RunRecord{run}, true)
	if !strings.Contains(pretty.String(), "Recent Runs") {
		t.Error("decorated output should include the header box")
	}
	if !strings.Contains(pretty.String(), "🔄") {
		t.Errorf("decorated output missing state glyph: %s", pretty.String())
	}

	var empty bytes.Buffer
	printRuns(&empty, nil, false)
	if !strings.Contains(empty.String(), "No runs recorded.") {
		t.Errorf("expected empty notice, got: %s", empty.String())
	}
}

// TestFormatEvent tests the single-line journal event rendering.
func TestFormatEvent(t *testing.T) {
	event := eventlog.Started("run-1", "pulse")
	line := formatEvent(event)
	for _, want := range []string{"pulse", "started", "state=RUNNING"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected line to contain %q, got: %s", want, line)
		}
	}

	event = eventlog.Restart("run-1", "pulse", 2)
	if line := formatEvent(event); !strings.Contains(line, "attempt 2") {
		t.Errorf("expected restart detail, got: %s", line)
	}
}

// TestPrintStats tests the per-role rate table rendering.
func TestPrintStats(t *testing.T) {
	var empty bytes.Buffer
	printStats(&empty, nil)
	if !strings.Contains(empty.String(), "No runner metrics found") {
		t.Errorf("expected empty notice, got: %s", empty.String())
	}

	stats := map[string]*metrics.RunnerStats{
		"ticker": {Role: "ticker", CycleRate: 120.5, WorkRate: 1.25, ErrorRate: 0},
		"pulse":  {Role: "pulse", CycleRate: 980.0, WorkRate: 2.5, ErrorRate: 0.0125},
	}

	var out bytes.Buffer
	printStats(&out, stats)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines: %s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "CYCLES/S") {
		t.Errorf("expected header line, got: %s", lines[0])
	}

	// Roles render in sorted order.
	if !strings.HasPrefix(lines[1], "pulse") {
		t.Errorf("expected pulse row first, got: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "ticker") {
		t.Errorf("expected ticker row second, got: %s", lines[2])
	}
	if !strings.Contains(lines[1], "980.00") || !strings.Contains(lines[1], "0.0125") {
		t.Errorf("expected formatted rates, got: %s", lines[1])
	}
}

// TestHandleHealthz tests the liveness endpoint.
func TestHandleHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handleHealthz(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405 for POST, got %d", rec.Code)
	}
}
