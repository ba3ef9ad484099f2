package advisor

import (
	"context"
	"fmt"

	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

// Advisor computes analytic suggestions over persisted execution history
// and workflow state. It never mutates anything; GetSuggestions is its only
// entry point and every suggestion it emits has already passed Guardrail
// before this function returns.
type Advisor struct {
	history    *repositories.ExecutionHistoryRepo
	suggestion *repositories.SuggestionAuditRepo
	guardrail  *Guardrail
}

func NewAdvisor(history *repositories.ExecutionHistoryRepo, suggestion *repositories.SuggestionAuditRepo, guardrail *Guardrail) *Advisor {
	return &Advisor{history: history, suggestion: suggestion, guardrail: guardrail}
}

// GetSuggestions analyzes recent execution history for a context (e.g. a
// workflow id or "global") and returns the Guardrail-filtered result.
func (a *Advisor) GetSuggestions(ctx context.Context, context_ string) []Suggestion {
	tasks := a.history.List(ctx, 200)

	var failedCount, totalCount int
	for _, t := range tasks {
		totalCount++
		if t.Status == store.TaskFailed {
			failedCount++
		}
	}

	var suggestions []Suggestion
	if totalCount > 0 {
		failureRate := float64(failedCount) / float64(totalCount)
		if failureRate > 0.2 {
			s := a.buildFailureRateSuggestion(context_, failureRate, failedCount, totalCount)
			suggestions = append(suggestions, s)
		}
	}

	for _, s := range suggestions {
		a.suggestion.Record(ctx, store.SuggestionAudit{SuggestionID: s.ID, Context: s.Context, Type: s.Type, Confidence: s.Confidence})
	}

	return a.guardrail.ApplyToSuggestions(ctx, suggestions)
}

func (a *Advisor) buildFailureRateSuggestion(context_ string, failureRate float64, failed, total int) Suggestion {
	confidence := failureRate
	if confidence > 1 {
		confidence = 1
	}
	return Suggestion{
		ID:      fmt.Sprintf("suggestion-failure-rate-%s", context_),
		Type:    "elevated-failure-rate",
		Context: context_,
		Title:   "Elevated task failure rate",
		Message: fmt.Sprintf("%d of the last %d recorded tasks failed (%.0f%%).", failed, total, failureRate*100),
		Confidence: confidence,
		Level:      levelFor(confidence),
		Explanation: Explanation{
			Summary:        "Recent execution history shows a higher-than-usual proportion of failed tasks.",
			ReasoningSteps: []string{"Queried the most recent execution_history rows.", "Computed the ratio of failed to total tasks."},
			EvidenceRefs:   []string{"execution_history"},
		},
		Limitations: Limitations{
			Assumptions: []string{"The sampled window (last 200 tasks) is representative of current behavior."},
			MissingData: []string{"Root cause of individual failures is not analyzed here."},
		},
	}
}
