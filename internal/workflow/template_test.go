package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveInputResolvesInitialAndStepResults(t *testing.T) {
	scope := templateScope{
		initial: map[string]interface{}{"customer": map[string]interface{}{"name": "Acme"}},
		results: map[string]interface{}{"fetch": map[string]interface{}{"total": 42.0}},
	}
	tmpl := map[string]interface{}{
		"name":   "${initial.customer.name}",
		"amount": "${fetch.total}",
		"fixed":  "literal-value",
	}

	out := resolveInput(tmpl, scope)
	assert.Equal(t, "Acme", out["name"])
	assert.Equal(t, 42.0, out["amount"])
	assert.Equal(t, "literal-value", out["fixed"])
}

func TestResolveValueRecursesIntoNestedObjectsAndArrays(t *testing.T) {
	scope := templateScope{variables: map[string]interface{}{"x": 7}}
	tmpl := map[string]interface{}{
		"nested": map[string]interface{}{"v": "${variables.x}"},
		"list":   []interface{}{"${variables.x}", "plain"},
	}

	out := resolveInput(tmpl, scope)
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, 7, nested["v"])

	list := out["list"].([]interface{})
	assert.Equal(t, 7, list[0])
	assert.Equal(t, "plain", list[1])
}

func TestResolveValueMissingReferenceYieldsNil(t *testing.T) {
	scope := templateScope{initial: map[string]interface{}{}}
	out := resolveInput(map[string]interface{}{"v": "${initial.missing}"}, scope)
	assert.Nil(t, out["v"])
}

func TestParseRefRequiresExactBraceForm(t *testing.T) {
	_, ok := parseRef("not-a-ref")
	assert.False(t, ok)

	_, ok = parseRef("${}")
	assert.False(t, ok)

	ref, ok := parseRef("${initial.foo}")
	assert.True(t, ok)
	assert.Equal(t, "initial.foo", ref)
}

func TestLookupRefStepResultFieldPath(t *testing.T) {
	scope := templateScope{results: map[string]interface{}{"step1": map[string]interface{}{"a": 1}}}
	v := lookupRef("step1.a", scope)
	assert.Equal(t, 1, v)
}

func TestLookupRefUnknownStepReturnsNil(t *testing.T) {
	scope := templateScope{results: map[string]interface{}{}}
	assert.Nil(t, lookupRef("missing.a", scope))
}
