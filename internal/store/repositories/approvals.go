package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deskflow/kernel/internal/store"
)

// ApprovalRepo persists workflow_approval rows. Approval records are
// append-only after resolution; the decision column transitions
// null -> an allowed word exactly once, enforced here via a conditional
// UPDATE that only succeeds while decision IS NULL (compare-and-set).
type ApprovalRepo struct {
	db *sql.DB
}

func (r *ApprovalRepo) Create(ctx context.Context, a store.Approval) error {
	now := time.Now().UTC()
	if a.RequestedAt.IsZero() {
		a.RequestedAt = now
	}
	if a.TimeoutPolicy == "" {
		a.TimeoutPolicy = store.ApprovalTimeoutWait
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_approval (execution_id, step_id, prompt, allowed_actions, requested_at, timeout_policy, timeout_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ExecutionID, a.StepID, a.Prompt, strings.Join(a.AllowedActions, ","), a.RequestedAt, a.TimeoutPolicy, a.TimeoutAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow_approval: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) Get(ctx context.Context, executionID, stepID string) (*store.Approval, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, execution_id, step_id, prompt, allowed_actions, decision, actor_id, comment, requested_at, resolved_at, timeout_policy, timeout_at
		 FROM workflow_approval WHERE execution_id = ? AND step_id = ?`, executionID, stepID)
	return scanApproval(row)
}

// Resolve performs the one-time null -> decision transition. It returns
// (false, nil) without error if the approval was already resolved by a
// concurrent caller, so the caller can surface APPROVAL_ALREADY_RESOLVED.
func (r *ApprovalRepo) Resolve(ctx context.Context, executionID, stepID, decision, actor, comment string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE workflow_approval SET decision = ?, actor_id = ?, comment = ?, resolved_at = ?
		 WHERE execution_id = ? AND step_id = ? AND decision IS NULL`,
		decision, actor, comment, now, executionID, stepID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ApprovalRepo) ListPending(ctx context.Context) ([]store.Approval, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, prompt, allowed_actions, decision, actor_id, comment, requested_at, resolved_at, timeout_policy, timeout_at
		 FROM workflow_approval WHERE decision IS NULL ORDER BY requested_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListExpired returns pending approvals whose timeout_policy=fail deadline
// has passed, for the auto-reject ticker.
func (r *ApprovalRepo) ListExpired(ctx context.Context, now time.Time) ([]store.Approval, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, prompt, allowed_actions, decision, actor_id, comment, requested_at, resolved_at, timeout_policy, timeout_at
		 FROM workflow_approval WHERE decision IS NULL AND timeout_policy = ? AND timeout_at IS NOT NULL AND timeout_at <= ?`,
		store.ApprovalTimeoutFail, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanApproval(s rowScanner) (*store.Approval, error) {
	var a store.Approval
	var decision, actor, comment, allowed sql.NullString
	var resolvedAt, timeoutAt sql.NullTime
	if err := s.Scan(&a.ID, &a.ExecutionID, &a.StepID, &a.Prompt, &allowed, &decision, &actor, &comment, &a.RequestedAt, &resolvedAt, &a.TimeoutPolicy, &timeoutAt); err != nil {
		return nil, err
	}
	if allowed.String != "" {
		a.AllowedActions = strings.Split(allowed.String, ",")
	}
	if decision.Valid {
		d := decision.String
		a.Decision = &d
	}
	a.ActorID = actor.String
	a.Comment = comment.String
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if timeoutAt.Valid {
		a.TimeoutAt = &timeoutAt.Time
	}
	return &a, nil
}
