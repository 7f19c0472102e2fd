package eventlog

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func ExampleWriter_usage() {
	// Create a temporary directory for this example
	tmpDir, err := os.MkdirTemp("", "eventlog_example")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	fmt.Println("=== Journal Demo ===")

	writer, err := NewWriter(tmpDir)
	if err != nil {
		fmt.Printf("Failed to create writer: %v\n", err)
		return
	}
	defer writer.Close()

	// Simulate one supervised runner lifetime with journaled events.

	// 1. The runner starts its duty cycle
	writer.Append(Started("run-001", "pulse"))
	fmt.Printf("📝 Journaled started: pulse (run-001)\n")

	// 2. Lifecycle transition into the steady state
	writer.Append(Transition("run-001", "pulse", "INIT", "RUNNING"))
	fmt.Printf("📝 Journaled transition: INIT → RUNNING\n")

	// 3. A transient failure the error handler chose to ride out
	writer.Append(Failure("run-001", "pulse", "RUNNING", errors.New("upstream timeout")))
	fmt.Printf("📝 Journaled failure: upstream timeout\n")

	// 4. The supervisor restarts the runner
	writer.Append(Restart("run-002", "pulse", 1))
	fmt.Printf("📝 Journaled restart: attempt 1 (run-002)\n")

	// 5. The runner winds down cleanly
	writer.Append(Closed("run-002", "pulse", "termination requested"))
	fmt.Printf("📝 Journaled closed: pulse (run-002)\n")

	// Read back all journaled events
	events, err := ReadEvents(writer.CurrentJournalFile())
	if err != nil {
		fmt.Printf("Failed to read events: %v\n", err)
		return
	}

	fmt.Printf("\n📋 Journal Summary: %d events recorded\n", len(events))

	for i, event := range events {
		fmt.Printf("  %d. [%s] %s %s: %s\n",
			i+1,
			event.Timestamp.Format("15:04:05"),
			event.Role,
			event.Kind,
			event.Detail)
	}

	fmt.Printf("\n💾 Journal file: %s\n", writer.CurrentJournalFile())
	fmt.Println("=== End Demo ===")
}

func TestJournalUsage(t *testing.T) {
	ExampleWriter_usage()
}
