package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

// Draft generates non-executable artifacts. Every artifact carries an
// immutable status = "draft-only" and a content hash; nothing it returns
// can be executed directly by any other component.
type Draft struct {
	audit     *repositories.DraftAuditRepo
	guardrail *Guardrail
}

func NewDraft(audit *repositories.DraftAuditRepo, guardrail *Guardrail) *Draft {
	return &Draft{audit: audit, guardrail: guardrail}
}

// Generate produces one artifact of kind from the given parameters. params
// is kind-specific free-form content (e.g. a workflow id to skeleton, a
// step id and proposed input for a parameter proposal).
func (d *Draft) Generate(ctx context.Context, kind DraftKind, params map[string]interface{}) (*Artifact, error) {
	content, err := d.render(kind, params)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(content))
	artifact := &Artifact{
		ID:          fmt.Sprintf("draft-%s-%s", kind, hex.EncodeToString(sum[:4])),
		Kind:        kind,
		Status:      "draft-only",
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	decision, reason := d.guardrail.Evaluate(ctx, artifact.ID, string(kind), 1.0)
	if decision == store.DecisionBlock {
		return nil, fmt.Errorf("draft blocked by guardrail: %s", reason)
	}

	d.audit.Record(ctx, store.DraftAudit{DraftID: artifact.ID, Kind: string(kind), ContentHash: artifact.ContentHash})
	return artifact, nil
}

func (d *Draft) render(kind DraftKind, params map[string]interface{}) (string, error) {
	switch kind {
	case DraftWorkflowSkeleton:
		return renderJSON(map[string]interface{}{
			"id":      params["workflowId"],
			"version": "0.1.0",
			"steps":   []interface{}{},
		})
	case DraftStepParameters:
		return renderJSON(map[string]interface{}{
			"stepId": params["stepId"],
			"input":  params["input"],
		})
	case DraftPolicyConfig:
		return renderJSON(map[string]interface{}{
			"minConfidence":            params["minConfidence"],
			"maxSuggestionsPerContext": params["maxSuggestionsPerContext"],
		})
	case DraftDocumentation:
		title, _ := params["title"].(string)
		body, _ := params["body"].(string)
		return fmt.Sprintf("# %s\n\n%s\n", title, body), nil
	default:
		return "", fmt.Errorf("unknown draft kind %q", kind)
	}
}

func renderJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
