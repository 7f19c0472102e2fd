package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run ID does not exist in the database.
var ErrRunNotFound = errors.New("run not found")

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// InsertRun records a freshly launched runner.
func (ops *DatabaseOperations) InsertRun(run *RunRecord) error {
	query := `
		INSERT INTO runs (id, role, started_at, final_state, failure, restarts)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query,
		run.ID, run.Role, run.StartedAt, run.FinalState, run.Failure, run.Restarts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunState records a lifecycle transition for a live run.
func (ops *DatabaseOperations) UpdateRunState(runID, state string) error {
	if !IsValidRunState(state) {
		return fmt.Errorf("invalid run state %q for run %s", state, runID)
	}

	query := `UPDATE runs SET final_state = ? WHERE id = ?`

	result, err := ops.db.Exec(query, state, runID)
	if err != nil {
		return fmt.Errorf("failed to update state for run %s: %w", runID, err)
	}
	return requireRowAffected(result, runID)
}

// FinishRun closes out a run with its terminal state and, when the run
// failed, the failure description.
func (ops *DatabaseOperations) FinishRun(runID, finalState, failure string, finishedAt time.Time) error {
	if !IsValidRunState(finalState) {
		return fmt.Errorf("invalid final state %q for run %s", finalState, runID)
	}

	query := `
		UPDATE runs
		SET finished_at = ?, final_state = ?, failure = ?
		WHERE id = ?
	`

	result, err := ops.db.Exec(query, finishedAt, finalState, failure, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return requireRowAffected(result, runID)
}

// IncrementRestarts bumps the restart counter for a run.
func (ops *DatabaseOperations) IncrementRestarts(runID string) error {
	query := `UPDATE runs SET restarts = restarts + 1 WHERE id = ?`

	result, err := ops.db.Exec(query, runID)
	if err != nil {
		return fmt.Errorf("failed to increment restarts for run %s: %w", runID, err)
	}
	return requireRowAffected(result, runID)
}

// GetRun retrieves a single run by ID.
func (ops *DatabaseOperations) GetRun(runID string) (*RunRecord, error) {
	query := `
		SELECT id, role, started_at, finished_at, final_state, failure, restarts
		FROM runs
		WHERE id = ?
	`

	run := &RunRecord{}
	err := ops.db.QueryRow(query, runID).Scan(
		&run.ID, &run.Role, &run.StartedAt, &run.FinishedAt,
		&run.FinalState, &run.Failure, &run.Restarts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRecentRuns returns the most recently started runs across all roles.
func (ops *DatabaseOperations) ListRecentRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	return ops.queryRuns(`
		SELECT id, role, started_at, finished_at, final_state, failure, restarts
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, "recent runs", limit)
}

// ListRunsByRole returns the most recently started runs for one role.
func (ops *DatabaseOperations) ListRunsByRole(role string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	return ops.queryRuns(`
		SELECT id, role, started_at, finished_at, final_state, failure, restarts
		FROM runs
		WHERE role = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, fmt.Sprintf("runs for role %s", role), role, limit)
}

// queryRuns runs a SELECT over the runs table and scans the result rows.
func (ops *DatabaseOperations) queryRuns(query, description string, args ...any) ([]*RunRecord, error) {
	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", description, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			// Log error but don't override the main error
			_ = closeErr
		}
	}()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		err := rows.Scan(
			&run.ID, &run.Role, &run.StartedAt, &run.FinishedAt,
			&run.FinalState, &run.Failure, &run.Restarts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// requireRowAffected converts a zero-row UPDATE into ErrRunNotFound.
func requireRowAffected(result sql.Result, runID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for run %s: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
