package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewWriter(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	currentFile := writer.CurrentJournalFile()
	if currentFile == "" {
		t.Error("No current journal file set")
	}

	if _, err := os.Stat(currentFile); os.IsNotExist(err) {
		t.Error("Current journal file does not exist")
	}
}

func TestNewWriterCreatesDirectory(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "journal")

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	if _, err := os.Stat(tmpDir); os.IsNotExist(err) {
		t.Error("Journal directory was not created")
	}
}

func TestAppend(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	err = writer.Append(Started("run-001", "pulse"))
	if err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	data, err := os.ReadFile(writer.CurrentJournalFile())
	if err != nil {
		t.Fatalf("Failed to read journal file: %v", err)
	}

	if len(data) == 0 {
		t.Error("Journal file is empty")
	}

	if data[len(data)-1] != '\n' {
		t.Error("Journal line should end with newline")
	}
}

func TestAppendAndReadBack(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	appended := []Event{
		Started("run-001", "pulse"),
		Transition("run-001", "pulse", "INIT", "RUNNING"),
		Failure("run-001", "pulse", "RUNNING", errors.New("queue stalled")),
		Restart("run-001", "pulse", 2),
		Closed("run-001", "pulse", "clean exit"),
	}

	for i, event := range appended {
		if err := writer.Append(event); err != nil {
			t.Fatalf("Failed to append event %d: %v", i, err)
		}
	}

	events, err := ReadEvents(writer.CurrentJournalFile())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}

	if len(events) != len(appended) {
		t.Fatalf("Expected %d events, got %d", len(appended), len(events))
	}

	for i, event := range events {
		if event.Kind != appended[i].Kind {
			t.Errorf("Event %d kind mismatch: expected %s, got %s", i, appended[i].Kind, event.Kind)
		}
		if event.RunID != "run-001" {
			t.Errorf("Event %d run ID mismatch: got %s", i, event.RunID)
		}
		if event.Timestamp.IsZero() {
			t.Errorf("Event %d has zero timestamp", i)
		}
	}

	if events[1].Detail != "INIT → RUNNING" {
		t.Errorf("Transition detail mismatch: got %q", events[1].Detail)
	}
	if events[2].Detail != "queue stalled" {
		t.Errorf("Failure detail mismatch: got %q", events[2].Detail)
	}
	if events[3].Detail != "attempt 2" {
		t.Errorf("Restart detail mismatch: got %q", events[3].Detail)
	}
}

func TestDailyRotation(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Append(Started("run-001", "pulse")); err != nil {
		t.Fatalf("Failed to append first event: %v", err)
	}

	initialFile := writer.CurrentJournalFile()

	// Force a rotation to a different date.
	writer.mu.Lock()
	err = writer.rotate("2025-12-25")
	writer.mu.Unlock()
	if err != nil {
		t.Fatalf("Failed to manually rotate: %v", err)
	}

	rotatedFile := writer.CurrentJournalFile()
	if rotatedFile == initialFile {
		t.Fatalf("Expected journal file to rotate away from %s", initialFile)
	}
	if filepath.Base(rotatedFile) != "journal-2025-12-25.jsonl" {
		t.Errorf("Unexpected rotated file name: %s", rotatedFile)
	}

	// The original file keeps its event.
	events, err := ReadEvents(initialFile)
	if err != nil {
		t.Fatalf("Failed to read original file: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event in original file, got %d", len(events))
	}
}

func TestReadEventsEmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "empty.jsonl")

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create empty file: %v", err)
	}
	file.Close()

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("Failed to read empty file: %v", err)
	}

	if len(events) != 0 {
		t.Errorf("Expected 0 events from empty file, got %d", len(events))
	}
}

func TestReadEventsRejectsGarbage(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "garbage.jsonl")

	if err := os.WriteFile(path, []byte("not json at all\n"), 0644); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}

	if _, err := ReadEvents(path); err == nil {
		t.Error("Expected error reading garbage journal, got nil")
	}
}

func TestListJournalFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"journal-2025-01-01.jsonl",
		"journal-2025-01-02.jsonl",
		"journal-2025-01-03.jsonl",
		"other-file.txt", // Should be ignored
	}

	for _, filename := range testFiles {
		path := filepath.Join(tmpDir, filename)
		file, err := os.Create(path)
		if err != nil {
			t.Fatalf("Failed to create test file %s: %v", filename, err)
		}
		file.Close()
	}

	journalFiles, err := ListJournalFiles(tmpDir)
	if err != nil {
		t.Fatalf("Failed to list journal files: %v", err)
	}

	if len(journalFiles) != 3 {
		t.Errorf("Expected 3 journal files, got %d", len(journalFiles))
	}

	for _, file := range journalFiles {
		matched, err := filepath.Match("journal-*.jsonl", filepath.Base(file))
		if err != nil {
			t.Fatalf("Failed to match pattern: %v", err)
		}
		if !matched {
			t.Errorf("File %s doesn't match expected pattern", file)
		}
	}
}

func TestWriterClose(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	if err := writer.Append(Started("run-001", "pulse")); err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	if writer.currentFile != nil {
		t.Error("Expected current file to be nil after close")
	}

	// Appending after close reopens today's file.
	if err := writer.Append(Closed("run-001", "pulse", "late event")); err != nil {
		t.Fatalf("Appending after close should reopen the journal, got error: %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(id int) {
			event := Restart("run-001", "pulse", id)
			if appendErr := writer.Append(event); appendErr != nil {
				t.Errorf("Failed to append event %d: %v", id, appendErr)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	events, err := ReadEvents(writer.CurrentJournalFile())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}

	if len(events) != 10 {
		t.Errorf("Expected 10 events, got %d", len(events))
	}
}

func TestIsValidKind(t *testing.T) {
	for _, kind := range []string{KindStarted, KindTransition, KindFailure, KindRestart, KindClosed} {
		if !IsValidKind(kind) {
			t.Errorf("Expected %q to be a valid kind", kind)
		}
	}

	if IsValidKind("rebooted") {
		t.Error("Expected unknown kind to be invalid")
	}
}
