package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

const (
	TopicWorkflowStarted           = "workflow.started"
	TopicWorkflowCompleted         = "workflow.completed"
	TopicWorkflowFailed            = "workflow.failed"
	TopicWorkflowPausedForApproval = "workflow.paused_for_approval"
	TopicApprovalResolved          = "workflow.approval_resolved"
)

// Dispatcher routes a task step's resolved input to wherever the operation
// actually runs (a local handler or a worker subprocess via Router +
// Supervisor) and returns its result. The engine has no opinion about what
// is on the other end.
type Dispatcher func(ctx context.Context, operation string, input map[string]interface{}) (map[string]interface{}, error)

// runningExecution is the in-memory driver state for one active execution.
// Only executions this process is actively running are kept here; a
// resumed execution is reconstructed by ResumeInProgress.
type runningExecution struct {
	mu       sync.Mutex
	def      *Definition
	execID   string
	initial  map[string]interface{}
	results  map[string]interface{}
	vars     map[string]interface{}
	graph    *graphState // nil for sequential definitions
	done     map[string]bool
	failed   map[string]bool
	fatal    bool // set once a failed step's on-failure policy is "fail"
	nextSeq  int // next index into Steps for sequential execution
}

// Engine is the Workflow Engine: definition registry, durable execution
// driver, approval pause/resume, and trigger wiring.
type Engine struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	active      map[string]*runningExecution

	execRepo     *repositories.WorkflowExecutionRepo
	stepRepo     *repositories.StepExecutionRepo
	approvalRepo *repositories.ApprovalRepo

	bus      *eventbus.Bus
	dispatch Dispatcher

	triggers *triggerTable

	stopTimeout chan struct{}
}

func New(execRepo *repositories.WorkflowExecutionRepo, stepRepo *repositories.StepExecutionRepo, approvalRepo *repositories.ApprovalRepo, bus *eventbus.Bus, dispatch Dispatcher) *Engine {
	e := &Engine{
		definitions:  map[string]*Definition{},
		active:       map[string]*runningExecution{},
		execRepo:     execRepo,
		stepRepo:     stepRepo,
		approvalRepo: approvalRepo,
		bus:          bus,
		dispatch:     dispatch,
		stopTimeout:  make(chan struct{}),
	}
	e.triggers = newTriggerTable(e, bus)
	return e
}

// RegisterDefinition loads a validated definition into the registry. Called
// once at kernel start for each definition found on disk.
func (e *Engine) RegisterDefinition(d *Definition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[d.ID] = d
}

func (e *Engine) definition(workflowID string) (*Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.definitions[workflowID]
	if !ok {
		return nil, kerrors.New(kerrors.KindInputInvalid, kerrors.CodeWorkflowNotFound, fmt.Sprintf("workflow %q is not registered", workflowID))
	}
	return d, nil
}

// StartWorkflow validates the definition is known, writes a running
// execution record, and launches the executor. It returns the new
// execution id as soon as the record is durable; execution proceeds
// asynchronously.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID string, initialContext map[string]interface{}) (string, error) {
	def, err := e.definition(workflowID)
	if err != nil {
		return "", err
	}

	execID := uuid.NewString()
	initialJSON, err := json.Marshal(initialContext)
	if err != nil {
		return "", kerrors.Internal("marshal initial context", err)
	}

	we := store.WorkflowExecution{
		ExecutionID:    execID,
		WorkflowID:     workflowID,
		Status:         store.WFRunning,
		StartedAt:      time.Now().UTC(),
		InitialContext: string(initialJSON),
	}
	if err := e.execRepo.Create(ctx, we); err != nil {
		return "", kerrors.Internal("persist workflow_execution", err)
	}

	re := &runningExecution{
		def:     def,
		execID:  execID,
		initial: initialContext,
		results: map[string]interface{}{},
		vars:    map[string]interface{}{},
		done:    map[string]bool{},
		failed:  map[string]bool{},
	}
	if def.IsDAG() {
		re.graph = buildGraphState(def)
	}

	e.mu.Lock()
	e.active[execID] = re
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(TopicWorkflowStarted, map[string]interface{}{"executionId": execID, "workflowId": workflowID})
	}

	go e.drive(context.Background(), re)

	return execID, nil
}

// drive runs an execution until it completes, fails, or pauses for
// approval. It is safe to call again (from resolveApproval or
// resumeInProgress) on the same runningExecution to continue past a pause.
func (e *Engine) drive(ctx context.Context, re *runningExecution) {
	var outcome string
	var err error
	if re.graph != nil {
		outcome, err = e.runDAG(ctx, re)
	} else {
		outcome, err = e.runSequential(ctx, re)
	}

	switch outcome {
	case outcomePaused:
		return // stays in e.active; ResolveApproval resumes it
	case outcomeCompleted:
		e.finish(ctx, re, store.WFCompleted, "")
	case outcomeFailed:
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		e.finish(ctx, re, store.WFFailed, msg)
	}
}

const (
	outcomeCompleted = "completed"
	outcomeFailed     = "failed"
	outcomePaused     = "paused"
)

func (e *Engine) finish(ctx context.Context, re *runningExecution, status store.WorkflowExecutionStatus, errMessage string) {
	if err := e.execRepo.Finish(ctx, re.execID, status, errMessage); err != nil {
		logging.Error("workflow: failed to persist final status for execution %s: %v", re.execID, err)
	}
	e.mu.Lock()
	delete(e.active, re.execID)
	e.mu.Unlock()

	if e.bus == nil {
		return
	}
	if status == store.WFCompleted {
		e.bus.Publish(TopicWorkflowCompleted, map[string]interface{}{"executionId": re.execID, "workflowId": re.def.ID})
	} else {
		e.bus.Publish(TopicWorkflowFailed, map[string]interface{}{"executionId": re.execID, "workflowId": re.def.ID, "error": errMessage})
	}
}

// runSequential executes def.Steps in declaration order starting from
// re.nextSeq, honoring retry/on-failure policy per step.
func (e *Engine) runSequential(ctx context.Context, re *runningExecution) (string, error) {
	// A step already failed under the "fail" policy (a rejected approval,
	// or a failure recorded before a restart) ends the workflow here.
	if re.hasFatalFailure() {
		return outcomeFailed, fmt.Errorf("workflow failed: a step failed")
	}
	for re.nextSeq < len(re.def.Steps) {
		step := re.def.Steps[re.nextSeq]
		if re.done[step.ID] {
			re.nextSeq++
			continue
		}

		outcome, err := e.executeStep(ctx, re, &step)
		switch outcome {
		case stepCompleted, stepSkipped:
			re.done[step.ID] = true
			re.nextSeq++
		case stepPaused:
			return outcomePaused, nil
		case stepFailedWorkflow:
			return outcomeFailed, err
		}
	}
	return outcomeCompleted, nil
}

// runDAG runs scheduling ticks until every step is done/failed or the
// execution pauses for an approval.
func (e *Engine) runDAG(ctx context.Context, re *runningExecution) (string, error) {
	maxPar := re.def.MaxParallelism
	if maxPar <= 0 {
		maxPar = len(re.def.Steps)
	}
	sem := semaphore.NewWeighted(int64(maxPar))

	for {
		frontier := re.graph.frontier(re.done)
		if len(frontier) == 0 {
			if e.allResolved(re) {
				if len(re.failed) > 0 {
					return outcomeFailed, fmt.Errorf("one or more steps failed")
				}
				return outcomeCompleted, nil
			}
			// Nothing schedulable and not all resolved means every
			// remaining step is blocked behind a failed ancestor; those
			// were already cascaded in executeStep's failure handling.
			return outcomeFailed, fmt.Errorf("workflow stalled with unresolved steps")
		}

		var approvalStep *StepDefinition
		var taskSteps []*StepDefinition
		for _, id := range frontier {
			sd, _ := re.def.StepByID(id)
			if sd.Type == StepTypeApproval {
				if approvalStep == nil {
					approvalStep = sd
				}
				continue
			}
			taskSteps = append(taskSteps, sd)
		}

		if len(taskSteps) > 0 {
			var wg sync.WaitGroup
			for _, sd := range taskSteps {
				sd := sd
				_ = sem.Acquire(ctx, 1)
				wg.Add(1)
				go func() {
					defer sem.Release(1)
					defer wg.Done()
					e.executeStep(ctx, re, sd)
				}()
			}
			wg.Wait()
		}

		if approvalStep != nil && len(taskSteps) == 0 {
			outcome, _ := e.executeStep(ctx, re, approvalStep)
			if outcome == stepPaused {
				return outcomePaused, nil
			}
		}

		if re.hasFatalFailure() {
			return outcomeFailed, fmt.Errorf("workflow failed: step failure cascade")
		}
	}
}

func (re *runningExecution) hasFatalFailure() bool {
	re.mu.Lock()
	defer re.mu.Unlock()
	return len(re.failed) > 0 && re.fatal
}

func (e *Engine) allResolved(re *runningExecution) bool {
	re.mu.Lock()
	defer re.mu.Unlock()
	for _, s := range re.def.Steps {
		if !re.done[s.ID] && !re.failed[s.ID] {
			return false
		}
	}
	return true
}
