package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deskflow/kernel/internal/store"
)

// StepExecutionRepo persists workflow_step_execution rows, one per
// (execution, step). Start inserts the row as running, or resets an
// existing row to running and clears its completion time and error; Finish
// writes the terminal status. Neither refuses to rewrite a row that has
// already reached a terminal status.
type StepExecutionRepo struct {
	db *sql.DB
}

func (r *StepExecutionRepo) Start(ctx context.Context, executionID, stepID, stepType string, retryCount int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_step_execution (execution_id, step_id, step_type, status, retry_count, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, step_id) DO UPDATE SET status = excluded.status, retry_count = excluded.retry_count, started_at = excluded.started_at, completed_at = NULL, error_message = NULL`,
		executionID, stepID, stepType, store.StepRunning, retryCount, now,
	)
	if err != nil {
		return fmt.Errorf("start step_execution: %w", err)
	}
	return nil
}

func (r *StepExecutionRepo) Finish(ctx context.Context, executionID, stepID string, status store.StepExecutionStatus, resultJSON, errMessage string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_step_execution SET status = ?, completed_at = ?, result_json = ?, error_message = ?
		 WHERE execution_id = ? AND step_id = ?`,
		status, now, resultJSON, errMessage, executionID, stepID,
	)
	return err
}

func (r *StepExecutionRepo) ListByExecution(ctx context.Context, executionID string) ([]store.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, step_type, status, retry_count, started_at, completed_at, result_json, error_message
		 FROM workflow_step_execution WHERE execution_id = ? ORDER BY id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.StepExecution
	for rows.Next() {
		var se store.StepExecution
		var startedAt, completedAt sql.NullTime
		var resultJSON, errMsg sql.NullString
		if err := rows.Scan(&se.ID, &se.ExecutionID, &se.StepID, &se.StepType, &se.Status, &se.RetryCount, &startedAt, &completedAt, &resultJSON, &errMsg); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			se.StartedAt = startedAt.Time
		}
		if completedAt.Valid {
			se.CompletedAt = &completedAt.Time
		}
		se.ResultJSON = resultJSON.String
		se.ErrorMessage = errMsg.String
		out = append(out, se)
	}
	return out, rows.Err()
}
