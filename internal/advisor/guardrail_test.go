package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

func newTestGuardrail(t *testing.T, cfg GuardrailConfig) (*Guardrail, *repositories.Repositories) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	repos := repositories.New(s.Conn())
	return NewGuardrail(cfg, repos.GuardrailAudit), repos
}

func TestGuardrailAllowsWithinPolicy(t *testing.T) {
	g, _ := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0.3})

	decision, reason := g.Evaluate(context.Background(), "s1", "elevated-failure-rate", 0.9)
	assert.Equal(t, store.DecisionAllow, decision)
	assert.NotEmpty(t, reason)
}

func TestGuardrailFlagsLowConfidence(t *testing.T) {
	g, _ := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0.5})

	decision, _ := g.Evaluate(context.Background(), "s1", "elevated-failure-rate", 0.2)
	assert.Equal(t, store.DecisionFlag, decision)
}

func TestGuardrailBlocksBlockedType(t *testing.T) {
	g, _ := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0.3, BlockedTypes: []string{"dangerous-type"}})

	decision, _ := g.Evaluate(context.Background(), "s1", "dangerous-type", 0.99)
	assert.Equal(t, store.DecisionBlock, decision)
}

func TestGuardrailEveryDecisionIsAudited(t *testing.T) {
	g, repos := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0.3})
	ctx := context.Background()

	g.Evaluate(ctx, "subject-1", "elevated-failure-rate", 0.9)

	audit, err := repos.GuardrailAudit.Get(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, store.DecisionAllow, audit.Kind)
}

func TestApplyToSuggestionsDropsBlockedAndFlagsLowConfidence(t *testing.T) {
	g, _ := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0.5, BlockedTypes: []string{"blocked"}})

	in := []Suggestion{
		{ID: "a", Type: "elevated-failure-rate", Context: "global", Confidence: 0.9},
		{ID: "b", Type: "blocked", Context: "global", Confidence: 0.9},
		{ID: "c", Type: "elevated-failure-rate", Context: "global", Confidence: 0.1},
	}
	out := g.ApplyToSuggestions(context.Background(), in)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.False(t, out[0].Flagged)
	assert.Equal(t, "c", out[1].ID)
	assert.True(t, out[1].Flagged)
}

func TestApplyToSuggestionsEnforcesMaxPerContext(t *testing.T) {
	g, _ := newTestGuardrail(t, GuardrailConfig{MinConfidence: 0, MaxSuggestionsPerContext: 1})

	in := []Suggestion{
		{ID: "a", Type: "t", Context: "ctx-1", Confidence: 0.9},
		{ID: "b", Type: "t", Context: "ctx-1", Confidence: 0.9},
		{ID: "c", Type: "t", Context: "ctx-2", Confidence: 0.9},
	}
	out := g.ApplyToSuggestions(context.Background(), in)

	require.Len(t, out, 2)
	ids := []string{out[0].ID, out[1].ID}
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "c")
}

func TestLoadGuardrailConfigFallsBackToDefaultWhenFileMissing(t *testing.T) {
	cfg, err := LoadGuardrailConfig("/nonexistent/path/guardrail.json")
	require.NoError(t, err)
	assert.Equal(t, defaultGuardrailConfig(), cfg)
}
