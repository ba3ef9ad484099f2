package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitionJSONNormalizesDefaults(t *testing.T) {
	raw := []byte(`{
		"id": "wf-a",
		"version": "1",
		"steps": [
			{"id": "s1", "operation": "EXPORT_PDF"}
		]
	}`)

	d, err := ParseDefinitionJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, StepTypeTask, d.Steps[0].Type)
	assert.Equal(t, OnFailureFail, d.Steps[0].OnFailure)
	assert.Equal(t, 1, d.Steps[0].Retry.MaxAttempts)
}

func TestIsDAGDetectsDependencies(t *testing.T) {
	seq, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING"},{"id":"b","operation":"PING"}]}`))
	require.NoError(t, err)
	assert.False(t, seq.IsDAG())

	dag, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING"},{"id":"b","operation":"PING","dependsOn":["a"]}]}`))
	require.NoError(t, err)
	assert.True(t, dag.IsDAG())
}

func TestValidateRejectsDuplicateStepID(t *testing.T) {
	_, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING"},{"id":"a","operation":"PING"}]}`))
	require.Error(t, err)
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	_, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING","dependsOn":["ghost"]}]}`))
	require.Error(t, err)
}

func TestValidateRejectsSelfDependency(t *testing.T) {
	_, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING","dependsOn":["a"]}]}`))
	require.Error(t, err)
}

func TestValidateRejectsTaskStepMissingOperation(t *testing.T) {
	_, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","type":"task"}]}`))
	require.Error(t, err)
}

func TestValidateRejectsEmptyDefinition(t *testing.T) {
	_, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[]}`))
	require.Error(t, err)
}

func TestParseDefinitionYAMLEquivalentToJSON(t *testing.T) {
	yamlSrc := []byte(`
id: wf-y
version: "1"
steps:
  - id: s1
    operation: PING
`)
	d, err := ParseDefinitionYAML(yamlSrc)
	require.NoError(t, err)
	assert.Equal(t, "wf-y", d.ID)
	assert.Len(t, d.Steps, 1)
}

func TestStepByIDLookup(t *testing.T) {
	d, err := ParseDefinitionJSON([]byte(`{"id":"w","steps":[{"id":"a","operation":"PING"}]}`))
	require.NoError(t, err)

	s, ok := d.StepByID("a")
	require.True(t, ok)
	assert.Equal(t, "PING", s.Operation)

	_, ok = d.StepByID("missing")
	assert.False(t, ok)
}
