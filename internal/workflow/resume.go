package workflow

import (
	"context"
	"encoding/json"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

// ResumeInProgress rebuilds in-memory driver state for every execution left
// running, paused, or paused-for-approval by a previous process and
// continues each from its persisted frontier, then auto-rejects any
// approval whose timeout_policy=fail deadline has already passed. It must
// be called exactly once, at kernel start, before any new workflow is
// started.
func (e *Engine) ResumeInProgress(ctx context.Context) error {
	executions, err := e.execRepo.ListByStatus(ctx, store.WFRunning, store.WFPaused, store.WFPausedForApproval)
	if err != nil {
		return err
	}

	for _, we := range executions {
		if err := e.resumeOne(ctx, we); err != nil {
			logging.Error("workflow: failed to resume execution %s: %v", we.ExecutionID, err)
		}
	}
	e.rejectExpiredApprovals(ctx)
	return nil
}

func (e *Engine) resumeOne(ctx context.Context, we store.WorkflowExecution) error {
	def, err := e.definition(we.WorkflowID)
	if err != nil {
		return err
	}

	var initial map[string]interface{}
	if we.InitialContext != "" {
		if err := json.Unmarshal([]byte(we.InitialContext), &initial); err != nil {
			logging.Error("workflow: execution %s has unparseable initial context: %v", we.ExecutionID, err)
			initial = map[string]interface{}{}
		}
	} else {
		initial = map[string]interface{}{}
	}

	re := &runningExecution{
		def:     def,
		execID:  we.ExecutionID,
		initial: initial,
		results: map[string]interface{}{},
		vars:    map[string]interface{}{},
		done:    map[string]bool{},
		failed:  map[string]bool{},
	}
	if def.IsDAG() {
		re.graph = buildGraphState(def)
	}

	steps, err := e.stepRepo.ListByExecution(ctx, we.ExecutionID)
	if err != nil {
		return err
	}

	for _, se := range steps {
		switch se.Status {
		case store.StepCompleted:
			var result interface{}
			if se.ResultJSON != "" {
				if err := json.Unmarshal([]byte(se.ResultJSON), &result); err != nil {
					result = nil
				}
			}
			re.recordSuccess(se.StepID, result)
		case store.StepSkipped:
			re.recordSuccess(se.StepID, nil)
		case store.StepFailed:
			re.recordFailure(se.StepID)
		case store.StepRunning:
			// A step left "running" across a restart was interrupted
			// mid-flight; it is re-entered from scratch since no result
			// was ever durably recorded for it.
		}
	}

	if !def.IsDAG() {
		for re.nextSeq < len(def.Steps) && re.done[def.Steps[re.nextSeq].ID] {
			re.nextSeq++
		}
	}

	e.mu.Lock()
	e.active[re.execID] = re
	e.mu.Unlock()

	if we.Status == store.WFPausedForApproval {
		logging.Info("workflow: execution %s resumed in paused-for-approval state, awaiting resolution", re.execID)
		return nil
	}

	logging.Info("workflow: resuming execution %s for workflow %s", re.execID, we.WorkflowID)
	go e.drive(context.Background(), re)
	return nil
}
