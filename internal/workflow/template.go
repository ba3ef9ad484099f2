package workflow

import "strings"

// templateScope is everything a ${scope.key...} reference can resolve
// against: the execution's initial context, the step result cache, and
// named runtime variables.
type templateScope struct {
	initial   map[string]interface{}
	results   map[string]interface{}
	variables map[string]interface{}
}

// resolveInput walks a step's input template and resolves every
// ${scope.key[.key...]} string reference against scope. Scalars, nested
// objects, and arrays are all recursed. A missing reference resolves to
// JSON null (nil).
func resolveInput(tmpl map[string]interface{}, scope templateScope) map[string]interface{} {
	out := make(map[string]interface{}, len(tmpl))
	for k, v := range tmpl {
		out[k] = resolveValue(v, scope)
	}
	return out
}

func resolveValue(v interface{}, scope templateScope) interface{} {
	switch t := v.(type) {
	case string:
		if ref, ok := parseRef(t); ok {
			return lookupRef(ref, scope)
		}
		return t
	case map[string]interface{}:
		return resolveInput(t, scope)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = resolveValue(elem, scope)
		}
		return out
	default:
		return v
	}
}

// parseRef recognizes the exact form "${scope.key[.key...]}" with nothing
// else in the string; anything else is a literal.
func parseRef(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	inner := s[2 : len(s)-1]
	if inner == "" {
		return "", false
	}
	return inner, true
}

func lookupRef(ref string, scope templateScope) interface{} {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 {
		return nil
	}
	head := parts[0]
	path := parts[1:]

	switch head {
	case "initial":
		return walkPath(scope.initial, path)
	case "variables":
		return walkPath(scope.variables, path)
	default:
		if stepResult, ok := scope.results[head]; ok {
			if len(path) == 0 {
				return stepResult
			}
			if m, ok := stepResult.(map[string]interface{}); ok {
				return walkPath(m, path)
			}
			return nil
		}
		return nil
	}
}

func walkPath(m map[string]interface{}, path []string) interface{} {
	var cur interface{} = m
	for _, p := range path {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		v, ok := asMap[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}
