package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

// GuardrailConfig is the declarative policy document loaded at start.
type GuardrailConfig struct {
	MinConfidence          float64  `json:"minConfidence"`
	BlockedTypes           []string `json:"blockedTypes"`
	MaxSuggestionsPerContext int    `json:"maxSuggestionsPerContext"`
}

func defaultGuardrailConfig() GuardrailConfig {
	return GuardrailConfig{MinConfidence: 0.3, MaxSuggestionsPerContext: 5}
}

// LoadGuardrailConfig reads the policy document from path, falling back to
// a conservative default if the file doesn't exist.
func LoadGuardrailConfig(path string) (GuardrailConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultGuardrailConfig(), nil
	}
	if err != nil {
		return GuardrailConfig{}, err
	}
	cfg := defaultGuardrailConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GuardrailConfig{}, fmt.Errorf("parse guardrail config: %w", err)
	}
	return cfg, nil
}

// Guardrail is a pure policy evaluator: no method here mutates anything
// outside its own audit trail.
type Guardrail struct {
	cfg   GuardrailConfig
	audit *repositories.GuardrailAuditRepo
}

func NewGuardrail(cfg GuardrailConfig, audit *repositories.GuardrailAuditRepo) *Guardrail {
	return &Guardrail{cfg: cfg, audit: audit}
}

func (g *Guardrail) blocked(t string) bool {
	for _, b := range g.cfg.BlockedTypes {
		if b == t {
			return true
		}
	}
	return false
}

// Evaluate returns allow/flag/block and a reason, and audits the decision
// unconditionally — every decision is audited, never only the blocked ones.
func (g *Guardrail) Evaluate(ctx context.Context, subjectID string, suggestionType string, confidence float64) (store.GuardrailDecisionKind, string) {
	decision, reason := g.decide(subjectID, suggestionType, confidence)
	g.audit.Record(ctx, store.GuardrailAudit{SubjectID: subjectID, Kind: decision, Reason: reason})
	return decision, reason
}

func (g *Guardrail) decide(subjectID, suggestionType string, confidence float64) (store.GuardrailDecisionKind, string) {
	if g.blocked(suggestionType) {
		return store.DecisionBlock, fmt.Sprintf("suggestion type %q is on the blocked-type deny-list", suggestionType)
	}
	if confidence < g.cfg.MinConfidence {
		return store.DecisionFlag, fmt.Sprintf("confidence %.2f is below the minimum threshold %.2f", confidence, g.cfg.MinConfidence)
	}
	return store.DecisionAllow, "within policy"
}

// ApplyToSuggestions filters suggestions through Evaluate: a block drops
// the suggestion entirely, a flag marks it in place, an allow passes it
// through unchanged. It also enforces maxSuggestionsPerContext. No caller
// can bypass this — Advisor never returns suggestions directly.
func (g *Guardrail) ApplyToSuggestions(ctx context.Context, suggestions []Suggestion) []Suggestion {
	perContext := map[string]int{}
	out := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		decision, reason := g.Evaluate(ctx, s.ID, s.Type, s.Confidence)
		switch decision {
		case store.DecisionBlock:
			logging.Debug("advisor: guardrail blocked suggestion %s: %s", s.ID, reason)
			continue
		case store.DecisionFlag:
			s.Flagged = true
			s.FlagReason = reason
		}

		if g.cfg.MaxSuggestionsPerContext > 0 && perContext[s.Context] >= g.cfg.MaxSuggestionsPerContext {
			continue
		}
		perContext[s.Context]++
		out = append(out, s)
	}
	return out
}
