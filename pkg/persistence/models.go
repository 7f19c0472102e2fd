package persistence

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord represents one runner lifetime: from the moment the supervisor
// launched it until it reached a terminal state.
type RunRecord struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	FinalState string     `json:"final_state"`
	Failure    string     `json:"failure,omitempty"`
	Restarts   int        `json:"restarts"`
}

// Runner lifecycle states as stored in the runs table.
const (
	RunStateInit    = "INIT"
	RunStateRunning = "RUNNING"
	RunStateClosing = "CLOSING"
	RunStateClosed  = "CLOSED"
)

// ValidRunStates returns all states a run row may carry.
func ValidRunStates() []string {
	return []string{
		RunStateInit,
		RunStateRunning,
		RunStateClosing,
		RunStateClosed,
	}
}

// IsValidRunState checks if a state string is valid for the runs table.
func IsValidRunState(state string) bool {
	for _, validState := range ValidRunStates() {
		if state == validState {
			return true
		}
	}
	return false
}

// NewRunRecord creates a run record for a freshly launched runner.
func NewRunRecord(role string) *RunRecord {
	return &RunRecord{
		ID:         GenerateRunID(),
		Role:       role,
		StartedAt:  time.Now().UTC(),
		FinalState: RunStateInit,
	}
}

// GenerateRunID generates a new UUID for a run.
func GenerateRunID() string {
	return uuid.New().String()
}
