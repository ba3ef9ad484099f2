package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

func isApproveDecision(decision string) bool {
	return strings.HasPrefix(strings.ToUpper(decision), "APPROVE")
}

// ResolveApproval applies decision to the named step's pending approval.
// Resolving an already-resolved approval is idempotent and reports
// APPROVAL_ALREADY_RESOLVED rather than silently succeeding twice.
func (e *Engine) ResolveApproval(ctx context.Context, executionID, stepID, decision, actor, comment string) error {
	resolved, err := e.approvalRepo.Resolve(ctx, executionID, stepID, decision, actor, comment)
	if err != nil {
		return kerrors.Internal("resolve approval", err)
	}
	if !resolved {
		return kerrors.New(kerrors.KindInputInvalid, kerrors.CodeApprovalAlreadyResolved, fmt.Sprintf("approval %s/%s was already resolved", executionID, stepID))
	}

	if e.bus != nil {
		e.bus.Publish(TopicApprovalResolved, map[string]interface{}{"executionId": executionID, "stepId": stepID, "decision": decision, "actor": actor})
	}

	e.mu.RLock()
	re, ok := e.active[executionID]
	e.mu.RUnlock()
	if !ok {
		logging.Error("workflow: resolved approval %s/%s but execution is not active in this process", executionID, stepID)
		return nil
	}

	step, ok := re.def.StepByID(stepID)
	if !ok {
		return kerrors.New(kerrors.KindInternal, kerrors.CodeInternalError, fmt.Sprintf("resolved approval references unknown step %q", stepID))
	}

	if isApproveDecision(decision) {
		result := map[string]interface{}{"decision": decision, "actor": actor, "comment": comment}
		resultJSON, _ := json.Marshal(result)
		if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepCompleted, string(resultJSON), ""); err != nil {
			logging.Error("workflow: failed to persist approval step completion for %s/%s: %v", re.execID, step.ID, err)
		}
		re.recordSuccess(stepID, result)
	} else {
		errMessage := fmt.Sprintf("approval rejected by %s", actor)
		if comment != "" {
			errMessage = fmt.Sprintf("%s: %s", errMessage, comment)
		}
		switch step.OnFailure {
		case OnFailureSkip:
			if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepSkipped, "", errMessage); err != nil {
				logging.Error("workflow: failed to persist approval step skip for %s/%s: %v", re.execID, step.ID, err)
			}
			re.recordSuccess(stepID, nil)
		default: // OnFailureFail
			if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepFailed, "", errMessage); err != nil {
				logging.Error("workflow: failed to persist approval step failure for %s/%s: %v", re.execID, step.ID, err)
			}
			re.recordFailure(stepID)
			e.cascadeFailure(ctx, re, stepID)
		}
	}

	if err := e.execRepo.UpdateStatus(ctx, executionID, store.WFRunning, ""); err != nil {
		logging.Error("workflow: failed to persist resumed-running status for %s: %v", executionID, err)
	}

	go e.drive(context.Background(), re)
	return nil
}

// ListPendingApprovals returns every unresolved approval across every
// execution, for GET_PENDING_APPROVALS.
func (e *Engine) ListPendingApprovals(ctx context.Context) ([]store.Approval, error) {
	approvals, err := e.approvalRepo.ListPending(ctx)
	if err != nil {
		return nil, kerrors.Internal("list pending approvals", err)
	}
	return approvals, nil
}
