package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

const (
	stepCompleted      = "completed"
	stepSkipped        = "skipped"
	stepPaused         = "paused"
	stepFailedWorkflow = "failed-workflow"
)

func (re *runningExecution) scope() templateScope {
	re.mu.Lock()
	defer re.mu.Unlock()
	results := make(map[string]interface{}, len(re.results))
	for k, v := range re.results {
		results[k] = v
	}
	return templateScope{initial: re.initial, results: results, variables: re.vars}
}

// executeStep resolves a step's input, runs it to a terminal state (task
// steps dispatch with retry; approval steps pause), and persists every
// transition before returning.
func (e *Engine) executeStep(ctx context.Context, re *runningExecution, step *StepDefinition) (string, error) {
	if step.Type == StepTypeApproval {
		return e.executeApprovalStep(ctx, re, step)
	}
	return e.executeTaskStep(ctx, re, step)
}

func (e *Engine) executeTaskStep(ctx context.Context, re *runningExecution, step *StepDefinition) (string, error) {
	input := resolveInput(step.Input, re.scope())

	var lastErr error
	attempts := step.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := e.stepRepo.Start(ctx, re.execID, step.ID, string(step.Type), attempt-1); err != nil {
			logging.Error("workflow: failed to persist step start for %s/%s: %v", re.execID, step.ID, err)
		}

		result, err := e.dispatch(ctx, step.Operation, input)
		if err == nil {
			resultJSON, _ := json.Marshal(result)
			if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepCompleted, string(resultJSON), ""); err != nil {
				logging.Error("workflow: failed to persist step completion for %s/%s: %v", re.execID, step.ID, err)
			}
			re.recordSuccess(step.ID, result)
			return stepCompleted, nil
		}

		lastErr = err
		if attempt < attempts && step.Retry.BackoffMillis > 0 {
			time.Sleep(time.Duration(step.Retry.BackoffMillis) * time.Millisecond)
		}
	}

	return e.failStep(ctx, re, step, lastErr.Error())
}

func (e *Engine) executeApprovalStep(ctx context.Context, re *runningExecution, step *StepDefinition) (string, error) {
	if err := e.stepRepo.Start(ctx, re.execID, step.ID, string(step.Type), 0); err != nil {
		logging.Error("workflow: failed to persist approval step start for %s/%s: %v", re.execID, step.ID, err)
	}

	policy := store.ApprovalTimeoutWait
	var timeoutAt *time.Time
	if strings.EqualFold(step.TimeoutPolicy, string(store.ApprovalTimeoutFail)) {
		policy = store.ApprovalTimeoutFail
		if step.TimeoutSeconds > 0 {
			t := time.Now().UTC().Add(time.Duration(step.TimeoutSeconds) * time.Second)
			timeoutAt = &t
		}
	}

	a := store.Approval{
		ExecutionID:    re.execID,
		StepID:         step.ID,
		Prompt:         step.Prompt,
		AllowedActions: step.AllowedActions,
		TimeoutPolicy:  policy,
		TimeoutAt:      timeoutAt,
	}
	if err := e.approvalRepo.Create(ctx, a); err != nil {
		logging.Error("workflow: failed to persist approval record for %s/%s: %v", re.execID, step.ID, err)
		return stepFailedWorkflow, err
	}

	if err := e.execRepo.UpdateStatus(ctx, re.execID, store.WFPausedForApproval, ""); err != nil {
		logging.Error("workflow: failed to persist paused-for-approval status for %s: %v", re.execID, err)
	}
	if e.bus != nil {
		e.bus.Publish(TopicWorkflowPausedForApproval, map[string]interface{}{"executionId": re.execID, "stepId": step.ID})
	}
	return stepPaused, nil
}

func (e *Engine) failStep(ctx context.Context, re *runningExecution, step *StepDefinition, errMessage string) (string, error) {
	switch step.OnFailure {
	case OnFailureSkip:
		if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepSkipped, "", errMessage); err != nil {
			logging.Error("workflow: failed to persist step skip for %s/%s: %v", re.execID, step.ID, err)
		}
		re.recordSuccess(step.ID, nil)
		return stepSkipped, nil
	default: // OnFailureFail
		if err := e.stepRepo.Finish(ctx, re.execID, step.ID, store.StepFailed, "", errMessage); err != nil {
			logging.Error("workflow: failed to persist step failure for %s/%s: %v", re.execID, step.ID, err)
		}
		re.recordFailure(step.ID)
		e.cascadeFailure(ctx, re, step.ID)
		return stepFailedWorkflow, kerrors.New(kerrors.KindTransientWorker, kerrors.CodeEngineError, errMessage)
	}
}

// cascadeFailure marks every step transitively dependent on a failed step
// as failed, without ever running them.
func (e *Engine) cascadeFailure(ctx context.Context, re *runningExecution, failedStepID string) {
	if re.graph == nil {
		return
	}
	for _, depID := range re.graph.descendants(failedStepID) {
		re.mu.Lock()
		already := re.failed[depID] || re.done[depID]
		re.mu.Unlock()
		if already {
			continue
		}
		re.recordFailure(depID)
		if err := e.stepRepo.Start(ctx, re.execID, depID, "task", 0); err != nil {
			logging.Error("workflow: failed to persist cascaded step start for %s/%s: %v", re.execID, depID, err)
		}
		if err := e.stepRepo.Finish(ctx, re.execID, depID, store.StepFailed, "", "ancestor step failed"); err != nil {
			logging.Error("workflow: failed to persist cascaded step failure for %s/%s: %v", re.execID, depID, err)
		}
	}
}

func (re *runningExecution) recordSuccess(stepID string, result interface{}) {
	re.mu.Lock()
	defer re.mu.Unlock()
	re.done[stepID] = true
	if result != nil {
		re.results[stepID] = result
	}
	if re.graph != nil {
		re.graph.satisfy(stepID)
	}
}

func (re *runningExecution) recordFailure(stepID string) {
	re.mu.Lock()
	defer re.mu.Unlock()
	re.failed[stepID] = true
	re.done[stepID] = true
	re.fatal = true
	if re.graph != nil {
		re.graph.satisfy(stepID)
	}
}
