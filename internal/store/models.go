// Package store owns the kernel's only shared mutable resource: a single
// embedded SQL database, opened with deferred-commit transactions, plus the
// typed records persisted in it.
package store

import "time"

// TaskStatus is the lifecycle state of a Task record.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is the execution_history row for one scheduled operation.
type Task struct {
	ID            int64
	OperationType string
	Module        string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        TaskStatus
	InputSummary  string
	OutputSummary string
	ErrorMessage  string
	ContractID    *int64
}

// ActivitySeverity classifies an activity_log row.
type ActivitySeverity string

const (
	SeverityInfo     ActivitySeverity = "info"
	SeverityWarning  ActivitySeverity = "warning"
	SeverityError    ActivitySeverity = "error"
	SeveritySecurity ActivitySeverity = "security"
)

// ActivityLogEntry is a structured event row.
type ActivityLogEntry struct {
	ID           int64
	Timestamp    time.Time
	Action       string
	EntityType   string
	EntityID     string
	Severity     ActivitySeverity
	Module       string
	ShortMessage string
	Metadata     string // opaque JSON
}

// WorkflowExecutionStatus is the lifecycle state of a workflow run.
type WorkflowExecutionStatus string

const (
	WFRunning           WorkflowExecutionStatus = "running"
	WFPaused            WorkflowExecutionStatus = "paused"
	WFPausedForApproval WorkflowExecutionStatus = "paused-for-approval"
	WFCompleted         WorkflowExecutionStatus = "completed"
	WFFailed            WorkflowExecutionStatus = "failed"
)

// WorkflowExecution is the workflow_execution row.
type WorkflowExecution struct {
	ID             int64
	ExecutionID    string // UUID, public correlation id
	WorkflowID     string
	Status         WorkflowExecutionStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	InitialContext string // opaque JSON
	ErrorMessage   string
}

// StepExecutionStatus is the lifecycle state of a single step run.
type StepExecutionStatus string

const (
	StepRunning   StepExecutionStatus = "running"
	StepCompleted StepExecutionStatus = "completed"
	StepFailed    StepExecutionStatus = "failed"
	StepSkipped   StepExecutionStatus = "skipped"
)

// StepExecution is the workflow_step_execution row.
type StepExecution struct {
	ID          int64
	ExecutionID string
	StepID      string
	StepType    string
	Status      StepExecutionStatus
	RetryCount  int
	StartedAt   time.Time
	CompletedAt *time.Time
	ResultJSON  string // opaque JSON result, present once completed
	ErrorMessage string
}

// ApprovalTimeoutPolicy governs whether an unresolved approval auto-rejects.
type ApprovalTimeoutPolicy string

const (
	ApprovalTimeoutWait ApprovalTimeoutPolicy = "wait"
	ApprovalTimeoutFail ApprovalTimeoutPolicy = "fail"
)

// Approval is the workflow_approval row.
type Approval struct {
	ID             int64
	ExecutionID    string
	StepID         string
	Prompt         string
	AllowedActions []string // CSV on disk
	Decision       *string  // nil until resolved
	ActorID        string
	Comment        string
	RequestedAt    time.Time
	ResolvedAt     *time.Time
	TimeoutPolicy  ApprovalTimeoutPolicy
	TimeoutAt      *time.Time
}

// GuardrailDecisionKind is the verdict the policy evaluator returns.
type GuardrailDecisionKind string

const (
	DecisionAllow GuardrailDecisionKind = "allow"
	DecisionFlag  GuardrailDecisionKind = "flag"
	DecisionBlock GuardrailDecisionKind = "block"
)

// SuggestionAudit is the ai_suggestion_audit row.
type SuggestionAudit struct {
	ID           int64
	SuggestionID string
	Context      string
	Type         string
	Confidence   float64
	CreatedAt    time.Time
}

// GuardrailAudit is the ai_guardrail_audit row.
type GuardrailAudit struct {
	ID         int64
	SubjectID  string
	Kind       GuardrailDecisionKind
	Reason     string
	CreatedAt  time.Time
}

// DraftAudit is the ai_draft_audit row.
type DraftAudit struct {
	ID          int64
	DraftID     string
	Kind        string
	ContentHash string
	CreatedAt   time.Time
}

// Contract and PaymentStage are opaque domain storage: the kernel imposes
// no invariants on their values beyond the fixed column shape.
type Contract struct {
	ID             int64
	ContractNumber string
	ContractName   string
	Data           string // opaque JSON blob owned by worker business logic
}

type PaymentStage struct {
	ID         int64
	ContractID int64
	StageName  string
	Data       string
}
