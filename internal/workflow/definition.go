// Package workflow implements the Workflow Engine: sequential and DAG
// execution over persisted executions, human-approval pause/resume, event
// and cron triggers, and crash-safe resumption.
package workflow

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepType distinguishes a worker task step from a human-approval step.
type StepType string

const (
	StepTypeTask      StepType = "task"
	StepTypeApproval  StepType = "approval"
)

// OnFailurePolicy governs what happens when a step exhausts its retries.
type OnFailurePolicy string

const (
	OnFailureFail OnFailurePolicy = "fail"
	OnFailureSkip OnFailurePolicy = "skip"
)

// RetryPolicy bounds how many times a failed task step is retried and the
// backoff between attempts.
type RetryPolicy struct {
	MaxAttempts  int `json:"maxAttempts" yaml:"maxAttempts"`
	BackoffMillis int `json:"backoffMillis" yaml:"backoffMillis"`
}

func (r RetryPolicy) normalized() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 1
	}
	return r
}

// StepDefinition is one immutable step within a Definition.
type StepDefinition struct {
	ID         string                 `json:"id" yaml:"id"`
	Type       StepType               `json:"type" yaml:"type"`
	Operation  string                 `json:"operation,omitempty" yaml:"operation,omitempty"`
	Input      map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`
	Retry      RetryPolicy            `json:"retry,omitempty" yaml:"retry,omitempty"`
	OnFailure  OnFailurePolicy        `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
	DependsOn  []string               `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// Approval-only fields.
	Prompt         string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	AllowedActions []string `json:"allowedActions,omitempty" yaml:"allowedActions,omitempty"`
	TimeoutPolicy  string   `json:"timeoutPolicy,omitempty" yaml:"timeoutPolicy,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// Definition is an immutable workflow definition once loaded.
type Definition struct {
	ID             string           `json:"id" yaml:"id"`
	Version        string           `json:"version" yaml:"version"`
	MaxParallelism int              `json:"maxParallelism,omitempty" yaml:"maxParallelism,omitempty"`
	Steps          []StepDefinition `json:"steps" yaml:"steps"`
}

// IsDAG reports whether any step declares a dependency; declaring none
// means plain declaration-order sequential execution.
func (d *Definition) IsDAG() bool {
	for _, s := range d.Steps {
		if len(s.DependsOn) > 0 {
			return true
		}
	}
	return false
}

func (d *Definition) StepByID(id string) (*StepDefinition, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks structural invariants that have nothing to do with graph
// shape: unique step ids, every dependency refers to a real step, no
// self-edges. Cycle detection lives in dag.go since it needs the full graph.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("workflow definition missing id")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", d.ID)
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %q has a step with empty id", d.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("workflow %q has duplicate step id %q", d.ID, s.ID)
		}
		seen[s.ID] = true
		if s.Type == StepTypeTask && s.Operation == "" {
			return fmt.Errorf("workflow %q step %q: task step missing operation", d.ID, s.ID)
		}
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return fmt.Errorf("workflow %q step %q: self-dependency", d.ID, s.ID)
			}
			if !seen[dep] {
				return fmt.Errorf("workflow %q step %q: depends on unknown step %q", d.ID, s.ID, dep)
			}
		}
	}
	return ValidateAcyclic(d)
}

// ParseDefinitionJSON parses a workflow definition from JSON, normalizing
// retry policies and running full validation.
func ParseDefinitionJSON(raw []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	return finalize(&d)
}

// ParseDefinitionYAML parses a workflow definition authored in YAML — an
// authoring convenience beyond the wire protocol's JSON-only rule, since
// definitions are loaded from disk, never exchanged as protocol messages.
func ParseDefinitionYAML(raw []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	return finalize(&d)
}

func finalize(d *Definition) (*Definition, error) {
	for i := range d.Steps {
		d.Steps[i].Retry = d.Steps[i].Retry.normalized()
		if d.Steps[i].OnFailure == "" {
			d.Steps[i].OnFailure = OnFailureFail
		}
		if d.Steps[i].Type == "" {
			d.Steps[i].Type = StepTypeTask
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
