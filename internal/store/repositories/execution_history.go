package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

// ExecutionHistoryRepo persists task lifecycle rows. Persistence errors
// here are logged and swallowed: the scheduler stays available even if
// the database write fails.
type ExecutionHistoryRepo struct {
	db *sql.DB
}

// Start records a new task in "pending" status, returning its id or -1 on
// failure.
func (r *ExecutionHistoryRepo) Start(ctx context.Context, operationType, module string) int64 {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO execution_history (operation_type, module, started_at, status) VALUES (?, ?, ?, ?)`,
		operationType, module, time.Now().UTC(), store.TaskPending,
	)
	if err != nil {
		logging.Error("execution_history: start insert failed: %v", err)
		return -1
	}
	id, err := res.LastInsertId()
	if err != nil {
		logging.Error("execution_history: last insert id failed: %v", err)
		return -1
	}
	return id
}

func (r *ExecutionHistoryRepo) MarkRunning(ctx context.Context, id int64) {
	if _, err := r.db.ExecContext(ctx, `UPDATE execution_history SET status = ? WHERE id = ?`, store.TaskRunning, id); err != nil {
		logging.Error("execution_history: mark running failed: %v", err)
	}
}

func (r *ExecutionHistoryRepo) Complete(ctx context.Context, id int64, outputSummary string) {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`UPDATE execution_history SET status = ?, completed_at = ?, output_summary = ? WHERE id = ?`,
		store.TaskCompleted, now, outputSummary, id,
	); err != nil {
		logging.Error("execution_history: complete failed: %v", err)
	}
}

func (r *ExecutionHistoryRepo) Fail(ctx context.Context, id int64, errMessage string) {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`UPDATE execution_history SET status = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		store.TaskFailed, now, errMessage, id,
	); err != nil {
		logging.Error("execution_history: fail update failed: %v", err)
	}
}

// List returns the most recent n tasks, newest first. Returns an empty
// slice (never nil-with-error) on a query failure.
func (r *ExecutionHistoryRepo) List(ctx context.Context, limit int) []store.Task {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation_type, module, started_at, completed_at, status, input_summary, output_summary, error_message, contract_id
		 FROM execution_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		logging.Error("execution_history: list query failed: %v", err)
		return []store.Task{}
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		var t store.Task
		var completedAt sql.NullTime
		var inputSummary, outputSummary, errMsg sql.NullString
		var contractID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.OperationType, &t.Module, &t.StartedAt, &completedAt, &t.Status, &inputSummary, &outputSummary, &errMsg, &contractID); err != nil {
			logging.Error("execution_history: row scan failed: %v", err)
			continue
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		t.InputSummary = inputSummary.String
		t.OutputSummary = outputSummary.String
		t.ErrorMessage = errMsg.String
		if contractID.Valid {
			t.ContractID = &contractID.Int64
		}
		out = append(out, t)
	}
	if out == nil {
		out = []store.Task{}
	}
	return out
}
