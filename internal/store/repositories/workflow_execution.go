package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deskflow/kernel/internal/store"
)

// WorkflowExecutionRepo persists workflow_execution rows. Unlike the
// fail-safe audit repositories, these writes return real errors: every
// state transition must be durable before the engine makes its next
// in-memory transition.
type WorkflowExecutionRepo struct {
	db *sql.DB
}

func (r *WorkflowExecutionRepo) Create(ctx context.Context, we store.WorkflowExecution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_execution (execution_id, workflow_id, status, started_at, initial_context) VALUES (?, ?, ?, ?, ?)`,
		we.ExecutionID, we.WorkflowID, we.Status, we.StartedAt, we.InitialContext,
	)
	if err != nil {
		return fmt.Errorf("insert workflow_execution: %w", err)
	}
	return nil
}

func (r *WorkflowExecutionRepo) UpdateStatus(ctx context.Context, executionID string, status store.WorkflowExecutionStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_execution SET status = ?, error_message = ? WHERE execution_id = ?`,
		status, errMessage, executionID,
	)
	return err
}

func (r *WorkflowExecutionRepo) Finish(ctx context.Context, executionID string, status store.WorkflowExecutionStatus, errMessage string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_execution SET status = ?, completed_at = ?, error_message = ? WHERE execution_id = ?`,
		status, now, errMessage, executionID,
	)
	return err
}

func (r *WorkflowExecutionRepo) Get(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, execution_id, workflow_id, status, started_at, completed_at, initial_context, error_message
		 FROM workflow_execution WHERE execution_id = ?`, executionID)
	return scanWorkflowExecution(row)
}

func (r *WorkflowExecutionRepo) ListByStatus(ctx context.Context, statuses ...store.WorkflowExecutionStatus) ([]store.WorkflowExecution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT id, execution_id, workflow_id, status, started_at, completed_at, initial_context, error_message FROM workflow_execution WHERE status IN (`
	args := make([]interface{}, 0, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, st)
	}
	query += ")"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.WorkflowExecution
	for rows.Next() {
		we, err := scanWorkflowExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *we)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflowExecution(row *sql.Row) (*store.WorkflowExecution, error) {
	return scanWorkflowExecutionGeneric(row)
}

func scanWorkflowExecutionRows(rows *sql.Rows) (*store.WorkflowExecution, error) {
	return scanWorkflowExecutionGeneric(rows)
}

func scanWorkflowExecutionGeneric(s rowScanner) (*store.WorkflowExecution, error) {
	var we store.WorkflowExecution
	var completedAt sql.NullTime
	var initialContext, errMsg sql.NullString
	if err := s.Scan(&we.ID, &we.ExecutionID, &we.WorkflowID, &we.Status, &we.StartedAt, &completedAt, &initialContext, &errMsg); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		we.CompletedAt = &completedAt.Time
	}
	we.InitialContext = initialContext.String
	we.ErrorMessage = errMsg.String
	return &we, nil
}
