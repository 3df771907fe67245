package graph

import (
	"context"
	"testing"
)

func BenchmarkInvoke_Linear(b *testing.B) {
	g := NewStateGraph(pathSchema())
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		_ = g.AddNode(n, visit(n))
	}
	_ = g.AddEdge(Start, names[0])
	for i := 1; i < len(names); i++ {
		_ = g.AddEdge(names[i-1], names[i])
	}
	_ = g.AddEdge(names[len(names)-1], End)
	cg, err := g.Compile()
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cg.Invoke(context.Background(), nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInvoke_FanOut(b *testing.B) {
	items := make([]int, 64)
	for i := range items {
		items[i] = i
	}
	work := func(_ context.Context, s State, _ Runtime) NodeResult {
		return Update(State{"results": []int{GetOr(s, "item", 0)}})
	}

	schema := NewSchema(
		Field{Name: "results", Reducer: Append, Default: []int{}},
	)
	g := NewStateGraph(schema)
	_ = g.AddNode("plan", func(context.Context, State, Runtime) NodeResult { return NodeResult{} })
	_ = g.AddNode("work", work, WithPrivateFields(Field{Name: "item"}))
	_ = g.AddEdge(Start, "plan")
	_ = g.AddConditionalEdges("plan", func(State) Route {
		sends := make([]Send, len(items))
		for i, n := range items {
			sends[i] = Send{Node: "work", Payload: State{"item": n}}
		}
		return FanOut(sends...)
	}, nil)
	_ = g.AddEdge("work", End)
	cg, err := g.Compile(WithMaxConcurrent(8))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cg.Invoke(context.Background(), nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}
