package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends journal events to daily rotated JSONL files. It is safe for
// concurrent use.
type Writer struct {
	journalDir  string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewWriter creates a journal writer rooted at journalDir, creating the
// directory and today's journal file if needed.
func NewWriter(journalDir string) (*Writer, error) {
	if err := os.MkdirAll(journalDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	writer := &Writer{
		journalDir: journalDir,
	}

	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal file: %w", err)
	}

	return writer, nil
}

// Append writes one event to the current journal file, rotating first when
// the date has changed since the last write.
func (w *Writer) Append(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate journal file: %w", err)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.currentFile.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	newDate := time.Now().UTC().Format("2006-01-02")

	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}

	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current journal file: %w", err)
		}
	}

	path := filepath.Join(w.journalDir, journalFileName(newDate))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate

	return nil
}

// Close closes the current journal file. Appending after Close reopens a
// fresh file for the current date.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
	}

	return nil
}

// CurrentJournalFile returns the path of the journal file currently being
// written, or "" if the writer is closed.
func (w *Writer) CurrentJournalFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}

	return filepath.Join(w.journalDir, journalFileName(w.currentDate))
}

func journalFileName(date string) string {
	return fmt.Sprintf("journal-%s.jsonl", date)
}

// ReadEvents reads and parses every event in one journal file.
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	var events []Event

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}

	return events, nil
}

// ListJournalFiles returns the paths of all journal files under journalDir.
func ListJournalFiles(journalDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(journalDir, "journal-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}

	return files, nil
}
