package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestState_Clone(t *testing.T) {
	t.Run("nested values are isolated", func(t *testing.T) {
		s := State{
			"list":  []string{"a"},
			"map":   map[string]any{"k": []int{1}},
			"value": 3,
		}
		c := s.Clone()

		c["list"].([]string)[0] = "changed"
		c["map"].(map[string]any)["k"].([]int)[0] = 99
		c["value"] = 4

		if s["list"].([]string)[0] != "a" {
			t.Error("slice shared between clone and original")
		}
		if s["map"].(map[string]any)["k"].([]int)[0] != 1 {
			t.Error("nested slice shared between clone and original")
		}
		if s["value"] != 3 {
			t.Error("top-level key shared between clone and original")
		}
	})

	t.Run("nil state", func(t *testing.T) {
		var s State
		if c := s.Clone(); c == nil || len(c) != 0 {
			t.Errorf("expected empty non-nil clone, got %#v", c)
		}
	})
}

func TestState_Keys(t *testing.T) {
	s := State{"b": 1, "a": 2, "c": 3}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Keys() = %v, want sorted", got)
	}
}

func TestGet(t *testing.T) {
	s := State{"name": "ada", "count": 2}

	if v, ok := Get[string](s, "name"); !ok || v != "ada" {
		t.Errorf("Get[string] = %q, %v", v, ok)
	}
	if _, ok := Get[string](s, "count"); ok {
		t.Error("Get with wrong type should report false")
	}
	if _, ok := Get[int](s, "missing"); ok {
		t.Error("Get of missing key should report false")
	}
	if v := GetOr(s, "missing", 7); v != 7 {
		t.Errorf("GetOr default = %d, want 7", v)
	}
}

func TestSchema_Merge(t *testing.T) {
	t.Run("last write wins by default", func(t *testing.T) {
		schema := NewSchema(Field{Name: "answer"})

		s, err := schema.Merge(State{"answer": "first"}, State{"answer": "second"})
		if err != nil {
			t.Fatal(err)
		}
		if s["answer"] != "second" {
			t.Errorf("answer = %v, want second", s["answer"])
		}
	})

	t.Run("reducer field accumulates", func(t *testing.T) {
		schema := NewSchema(
			Field{Name: "path", Reducer: Append},
			Field{Name: "total", Reducer: Sum},
		)

		s := State{}
		for _, step := range []string{"a", "b", "c"} {
			var err error
			s, err = schema.Merge(s, State{"path": []string{step}, "total": 1})
			if err != nil {
				t.Fatal(err)
			}
		}
		if !reflect.DeepEqual(s["path"], []string{"a", "b", "c"}) {
			t.Errorf("path = %v", s["path"])
		}
		if s["total"] != 3 {
			t.Errorf("total = %v, want 3", s["total"])
		}
	})

	t.Run("absent keys untouched and input not mutated", func(t *testing.T) {
		schema := NewSchema(Field{Name: "a"}, Field{Name: "b"})
		in := State{"a": 1, "b": 2}

		out, err := schema.Merge(in, State{"a": 10})
		if err != nil {
			t.Fatal(err)
		}
		if out["b"] != 2 {
			t.Errorf("b = %v, want 2", out["b"])
		}
		if in["a"] != 1 {
			t.Error("Merge mutated its input state")
		}
	})

	t.Run("closed schema rejects unknown field", func(t *testing.T) {
		schema := NewSchema(Field{Name: "a"})

		_, err := schema.Merge(State{}, State{"typo": 1})
		var se *StateError
		if !errors.As(err, &se) {
			t.Fatalf("expected StateError, got %v", err)
		}
		if se.Field != "typo" || !errors.Is(err, ErrUnknownField) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("open schema accepts any key", func(t *testing.T) {
		schema := NewSchema()
		if schema.Closed() {
			t.Fatal("schema without fields should be open")
		}
		out, err := schema.Merge(State{}, State{"anything": true})
		if err != nil || out["anything"] != true {
			t.Errorf("open merge = %v, %v", out, err)
		}
	})

	t.Run("reducer failure is a StateError", func(t *testing.T) {
		schema := NewSchema(Field{Name: "n", Reducer: Sum})

		_, err := schema.Merge(State{"n": 1}, State{"n": "x"})
		var se *StateError
		if !errors.As(err, &se) || se.Field != "n" {
			t.Fatalf("expected StateError for n, got %v", err)
		}
	})
}

func TestSchema_Overwrite(t *testing.T) {
	schema := NewSchema(Field{Name: "path", Reducer: Append})

	out, err := schema.Overwrite(State{"path": []string{"a"}}, State{"path": []string{"z"}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out["path"], []string{"z"}) {
		t.Errorf("path = %v, want [z]", out["path"])
	}
}

func TestSchema_Initial(t *testing.T) {
	schema := NewSchema(
		Field{Name: "items", Reducer: Append, Default: []string{}},
		Field{Name: "mode", Default: "fast"},
		Field{Name: "input"},
	)

	a, err := schema.Initial(State{"input": "x", "mode": "slow"})
	if err != nil {
		t.Fatal(err)
	}
	if a["mode"] != "slow" || a["input"] != "x" {
		t.Errorf("input did not override defaults: %v", a)
	}

	b, err := schema.Initial(nil)
	if err != nil {
		t.Fatal(err)
	}
	if b["mode"] != "fast" {
		t.Errorf("mode default = %v", b["mode"])
	}
	if _, ok := b["input"]; ok {
		t.Error("field without default should be unset")
	}

	// Defaults are copied per invocation.
	a["items"] = append(a["items"].([]string), "leak")
	c, _ := schema.Initial(nil)
	if len(c["items"].([]string)) != 0 {
		t.Error("default shared between invocations")
	}

	if _, err := schema.Initial(State{"unknown": 1}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestSchema_DuplicateFieldFailsCompile(t *testing.T) {
	schema := NewSchema(Field{Name: "a"}, Field{Name: "a"})
	g := NewStateGraph(schema)
	_ = g.AddNode("n", func(_ context.Context, _ State, _ Runtime) NodeResult { return NodeResult{} })
	_ = g.AddEdge(Start, "n")
	_ = g.AddEdge("n", End)

	_, err := g.Compile()
	var ve *GraphValidationError
	if !errors.As(err, &ve) || !ve.HasCode(CodeInvalidField) {
		t.Fatalf("expected INVALID_FIELD, got %v", err)
	}
}
