package workflow

import (
	"context"
	"time"

	"github.com/deskflow/kernel/internal/logging"
)

const timeoutActor = "system:timeout"

// StartApprovalTimeoutTicker polls for approvals whose timeout_policy is
// "fail" and whose deadline has passed, auto-rejecting each one: approvals
// deferred past their deadline are rejected by the system rather than
// left pending forever.
func (e *Engine) StartApprovalTimeoutTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.rejectExpiredApprovals(ctx)
			case <-e.stopTimeout:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopApprovalTimeoutTicker stops the background ticker started by
// StartApprovalTimeoutTicker.
func (e *Engine) StopApprovalTimeoutTicker() {
	close(e.stopTimeout)
}

func (e *Engine) rejectExpiredApprovals(ctx context.Context) {
	expired, err := e.approvalRepo.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		logging.Error("workflow: failed to list expired approvals: %v", err)
		return
	}
	for _, a := range expired {
		logging.Info("workflow: auto-rejecting expired approval %s/%s", a.ExecutionID, a.StepID)
		if err := e.ResolveApproval(ctx, a.ExecutionID, a.StepID, "REJECT", timeoutActor, "auto-rejected: timeout_policy=fail deadline passed"); err != nil {
			logging.Error("workflow: failed to auto-reject expired approval %s/%s: %v", a.ExecutionID, a.StepID, err)
		}
	}
}
