package graph

import (
	"fmt"
	"reflect"
	"sort"
)

// State is the shared workflow state: a mapping from field name to value.
//
// Nodes receive an isolated copy of State and return partial updates as
// State values. The engine merges those updates into the shared state
// through the per-field reducers declared in the Schema.
type State map[string]any

// Clone returns a deep copy of the state.
//
// Maps, slices and interface values are copied recursively so that a copy
// never shares mutable containers with the original. Struct values are
// copied by value and pointers are shared, so state values should be plain
// data (strings, numbers, slices, maps, value structs).
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = deepCopyValue(v)
	}
	return out
}

// Keys returns the field names present in the state in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a field converted to T.
//
// The second result is false when the field is missing or holds a value of
// a different type.
//
// Example:
//
//	path, _ := graph.Get[[]string](state, "execution_path")
func Get[T any](s State, key string) (T, bool) {
	var zero T
	v, ok := s[key]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// GetOr returns the value of a field converted to T, or def when the field
// is missing or has another type.
func GetOr[T any](s State, key string, def T) T {
	if v, ok := Get[T](s, key); ok {
		return v
	}
	return def
}

// deepCopyValue copies maps, slices and interfaces recursively.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	return copyValue(reflect.ValueOf(v)).Interface()
}

func copyValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem()))
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	default:
		return v
	}
}

// Field declares one state field and how updates to it are merged.
type Field struct {
	// Name is the state key.
	Name string

	// Reducer merges an incoming update into the current value.
	// If nil, Replace is used (last write wins).
	Reducer Reducer

	// Default seeds the field at the start of every invocation.
	// It is deep-copied per invocation. Nil leaves the field unset.
	Default any
}

// Schema is the fixed shape of a graph's state: its field names and their
// reducers.
//
// A Schema with no fields is open: any key is accepted and merged with
// Replace. A Schema with at least one field is closed: updates naming an
// undeclared field fail with a StateError wrapping ErrUnknownField.
//
// Example:
//
//	schema := graph.NewSchema(
//	    graph.Field{Name: "input"},
//	    graph.Field{Name: "execution_path", Reducer: graph.Append},
//	    graph.Field{Name: "step_count", Reducer: graph.Sum, Default: 0},
//	)
type Schema struct {
	fields map[string]Field
	order  []string
	issues []Issue
}

// NewSchema builds a Schema from field declarations.
//
// Problems such as duplicate or empty field names are reported when the
// graph using the schema is compiled.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		switch {
		case f.Name == "":
			s.issues = append(s.issues, Issue{Code: CodeInvalidField, Message: "state field name cannot be empty"})
			continue
		case s.has(f.Name):
			s.issues = append(s.issues, Issue{Code: CodeInvalidField, Message: "duplicate state field: " + f.Name})
			continue
		}
		if f.Reducer == nil {
			f.Reducer = Replace
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s
}

// Fields returns the declared field names in declaration order.
func (s *Schema) Fields() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Closed reports whether the schema rejects undeclared fields.
func (s *Schema) Closed() bool {
	return s != nil && len(s.fields) > 0
}

func (s *Schema) has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.fields[name]
	return ok
}

func (s *Schema) reducer(name string) Reducer {
	if s == nil {
		return Replace
	}
	if f, ok := s.fields[name]; ok {
		return f.Reducer
	}
	return Replace
}

// Initial creates a fresh state for one invocation: field defaults first,
// then the caller's input values written over them.
func (s *Schema) Initial(input State) (State, error) {
	state := make(State, len(input))
	if s != nil {
		for _, name := range s.order {
			if def := s.fields[name].Default; def != nil {
				state[name] = deepCopyValue(def)
			}
		}
	}
	for _, key := range input.Keys() {
		if s.Closed() && !s.has(key) {
			return nil, &StateError{Field: key, Cause: ErrUnknownField}
		}
		state[key] = deepCopyValue(input[key])
	}
	return state, nil
}

// Merge applies a partial update to state and returns the merged state.
//
// For every key in updates the field's reducer computes the new value from
// the current value and the incoming one; keys absent from updates are left
// untouched. The input map is never modified. Keys are processed in sorted
// order so that reducer errors are reported deterministically.
//
// A reducer error is a configuration error: Merge stops and returns a
// StateError naming the field.
func (s *Schema) Merge(state, updates State) (State, error) {
	return s.apply(state, updates, false)
}

// Overwrite writes updates over state without consulting reducers.
// Field validation is identical to Merge.
func (s *Schema) Overwrite(state, updates State) (State, error) {
	return s.apply(state, updates, true)
}

func (s *Schema) apply(state, updates State, overwrite bool) (State, error) {
	out := make(State, len(state)+len(updates))
	for k, v := range state {
		out[k] = v
	}
	for _, key := range updates.Keys() {
		if s.Closed() && !s.has(key) {
			return nil, &StateError{Field: key, Cause: ErrUnknownField}
		}
		incoming := updates[key]
		if overwrite {
			out[key] = incoming
			continue
		}
		merged, err := s.reducer(key)(out[key], incoming)
		if err != nil {
			return nil, &StateError{Field: key, Cause: err}
		}
		out[key] = merged
	}
	return out, nil
}

// StateError reports an update that could not be applied to state: an
// undeclared field in a closed schema or a reducer failure. It is fatal and
// never retried.
type StateError struct {
	// Field is the state key that failed.
	Field string

	// Node is the node whose update failed, when known.
	Node string

	// Cause is the underlying reducer or validation error.
	Cause error
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("state field %q: %v", e.Field, e.Cause)
	if e.Node != "" {
		return "node " + e.Node + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StateError) Unwrap() error {
	return e.Cause
}
