package graph

import (
	"sort"
)

// ContextField declares one invocation context value.
type ContextField struct {
	// Name is the context key.
	Name string

	// Required makes Invoke fail with a ContextValidationError when the
	// caller does not supply a non-nil value.
	Required bool

	// Default is used when the caller omits an optional field. It is
	// deep-copied per invocation.
	Default any
}

// ContextSchema declares the per-invocation context accepted by a graph.
//
// Context values are configuration for one invocation (a user ID, a model
// name, a feature flag). Unlike State they are read-only, never merged and
// never returned.
//
// Example:
//
//	g := graph.NewStateGraph(schema, graph.WithContextSchema(&graph.ContextSchema{
//	    Fields: []graph.ContextField{
//	        {Name: "user_id", Required: true},
//	        {Name: "model", Default: "small"},
//	    },
//	}))
type ContextSchema struct {
	Fields []ContextField
}

// Bind validates caller-supplied values and returns the immutable Values
// passed to nodes.
//
// A nil schema accepts any values. A declared schema requires every
// Required field, fills in defaults, and rejects undeclared keys.
func (cs *ContextSchema) Bind(values map[string]any) (Values, error) {
	bound := make(map[string]any, len(values))
	if cs == nil {
		for k, v := range values {
			bound[k] = deepCopyValue(v)
		}
		return Values{m: bound}, nil
	}

	declared := make(map[string]bool, len(cs.Fields))
	for _, f := range cs.Fields {
		declared[f.Name] = true
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !declared[k] {
			return Values{}, &ContextValidationError{Field: k, Reason: "undeclared context field"}
		}
	}

	for _, f := range cs.Fields {
		v, ok := values[f.Name]
		switch {
		case ok && v != nil:
			bound[f.Name] = deepCopyValue(v)
		case f.Required:
			return Values{}, &ContextValidationError{Field: f.Name, Reason: "required context field is missing"}
		case f.Default != nil:
			bound[f.Name] = deepCopyValue(f.Default)
		}
	}
	return Values{m: bound}, nil
}

func (cs *ContextSchema) validate() []Issue {
	if cs == nil {
		return nil
	}
	var issues []Issue
	seen := make(map[string]bool, len(cs.Fields))
	for _, f := range cs.Fields {
		switch {
		case f.Name == "":
			issues = append(issues, Issue{Code: CodeInvalidField, Message: "context field name cannot be empty"})
		case seen[f.Name]:
			issues = append(issues, Issue{Code: CodeInvalidField, Message: "duplicate context field: " + f.Name})
		}
		seen[f.Name] = true
	}
	return issues
}

// Values is the bound, read-only invocation context.
type Values struct {
	m map[string]any
}

// Get returns a context value. Mutable values are returned as copies.
func (v Values) Get(key string) (any, bool) {
	val, ok := v.m[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(val), true
}

// Keys returns the bound keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of bound values.
func (v Values) Len() int {
	return len(v.m)
}

// ContextValue returns a context value converted to T.
//
// Example:
//
//	userID, ok := graph.ContextValue[string](rt.Context, "user_id")
func ContextValue[T any](v Values, key string) (T, bool) {
	var zero T
	val, ok := v.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := val.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Runtime is the per-execution information passed to every node.
type Runtime struct {
	// RunID identifies the invocation.
	RunID string

	// Step is the scheduler step, starting at 1.
	Step int

	// Attempt is the current attempt of this node execution, starting at 1.
	Attempt int

	// Node is the name of the executing node.
	Node string

	// Context holds the bound invocation context.
	Context Values
}
