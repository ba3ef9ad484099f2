// Package repositories groups one repository type per table behind a
// single Repositories container — each repo issues its own SQL against
// the shared *sql.DB it is handed at construction.
package repositories

import "database/sql"

// Repositories bundles every table-scoped repository the kernel needs.
type Repositories struct {
	ExecutionHistory *ExecutionHistoryRepo
	ActivityLog      *ActivityLogRepo
	Contracts        *ContractsRepo
	WorkflowExec     *WorkflowExecutionRepo
	StepExec         *StepExecutionRepo
	Approvals        *ApprovalRepo
	SuggestionAudit  *SuggestionAuditRepo
	GuardrailAudit   *GuardrailAuditRepo
	DraftAudit       *DraftAuditRepo
}

func New(conn *sql.DB) *Repositories {
	return &Repositories{
		ExecutionHistory: &ExecutionHistoryRepo{db: conn},
		ActivityLog:      &ActivityLogRepo{db: conn},
		Contracts:        &ContractsRepo{db: conn},
		WorkflowExec:     &WorkflowExecutionRepo{db: conn},
		StepExec:         &StepExecutionRepo{db: conn},
		Approvals:        &ApprovalRepo{db: conn},
		SuggestionAudit:  &SuggestionAuditRepo{db: conn},
		GuardrailAudit:   &GuardrailAuditRepo{db: conn},
		DraftAudit:       &DraftAuditRepo{db: conn},
	}
}
