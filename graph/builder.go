package graph

import (
	"fmt"
)

// Pseudo-node names. Start is the implicit entry of every graph and End its
// implicit exit. Neither may be registered as a node.
const (
	Start = "__start__"
	End   = "__end__"
)

// GraphOption configures a StateGraph.
type GraphOption func(*StateGraph)

// WithContextSchema declares the invocation context accepted by the graph.
// Without it Invoke accepts any context values.
func WithContextSchema(cs *ContextSchema) GraphOption {
	return func(g *StateGraph) {
		g.contextSchema = cs
	}
}

// StateGraph is the mutable builder of a workflow graph.
//
// Register nodes and edges, then call Compile to obtain an immutable
// CompiledGraph that can be invoked any number of times. A StateGraph is
// not safe for concurrent use.
//
// Example:
//
//	schema := graph.NewSchema(
//	    graph.Field{Name: "input"},
//	    graph.Field{Name: "execution_path", Reducer: graph.Append},
//	)
//	g := graph.NewStateGraph(schema)
//	_ = g.AddNode("A", nodeA)
//	_ = g.AddNode("B", nodeB)
//	_ = g.AddEdge(graph.Start, "A")
//	_ = g.AddEdge("A", "B")
//	_ = g.AddEdge("B", graph.End)
//	compiled, err := g.Compile()
type StateGraph struct {
	schema        *Schema
	contextSchema *ContextSchema

	nodes    map[string]*nodeSpec
	order    []string
	edges    []edge
	branches map[string][]branch

	// issues records registration problems so that Compile fails even when
	// the caller ignored the error returned at registration time.
	issues []Issue
}

// NewStateGraph creates a builder over the given state schema. A nil schema
// is an open schema.
func NewStateGraph(schema *Schema, opts ...GraphOption) *StateGraph {
	if schema == nil {
		schema = NewSchema()
	}
	g := &StateGraph{
		schema:   schema,
		nodes:    make(map[string]*nodeSpec),
		branches: make(map[string][]branch),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode registers a node.
//
// It fails with a GraphValidationError when the name is empty, reserved or
// already registered, or when fn is nil. The node is not registered in that
// case and Compile will report the same issue.
func (g *StateGraph) AddNode(name string, fn NodeFunc, opts ...NodeOption) error {
	var issue *Issue
	switch {
	case name == "":
		issue = &Issue{Code: CodeInvalidNode, Message: "node name cannot be empty"}
	case name == Start || name == End:
		issue = &Issue{Code: CodeInvalidNode, Node: name, Message: fmt.Sprintf("node name %q is reserved", name)}
	case g.nodes[name] != nil:
		issue = &Issue{Code: CodeDuplicateNode, Node: name, Message: fmt.Sprintf("node %q is already registered", name)}
	case fn == nil:
		issue = &Issue{Code: CodeInvalidNode, Node: name, Message: fmt.Sprintf("node %q has a nil function", name)}
	}
	if issue != nil {
		return g.reject(*issue)
	}

	spec := &nodeSpec{name: name, fn: fn}
	for _, opt := range opts {
		opt(spec)
	}
	g.nodes[name] = spec
	g.order = append(g.order, name)
	return nil
}

// AddEdge registers a static transition from one node to another.
//
// Start and End may be used as pseudo-nodes. Edges leaving End or entering
// Start are rejected immediately; edges naming nodes that are not yet
// registered are checked by Compile, so nodes and edges may be added in
// any order.
func (g *StateGraph) AddEdge(from, to string) error {
	switch {
	case from == "" || to == "":
		return g.reject(Issue{Code: CodeInvalidEdge, Message: "edge endpoints cannot be empty"})
	case from == End:
		return g.reject(Issue{Code: CodeInvalidEdge, Node: from, Message: fmt.Sprintf("edge %s -> %s leaves End", from, to)})
	case to == Start:
		return g.reject(Issue{Code: CodeInvalidEdge, Node: to, Message: fmt.Sprintf("edge %s -> %s enters Start", from, to)})
	}
	g.edges = append(g.edges, edge{from: from, to: to})
	return nil
}

// AddConditionalEdges registers a router evaluated after from completes.
//
// When mapping is non-nil, the keys returned by the router through Goto and
// Many are translated to node names with it, and only the mapped nodes take
// part in reachability analysis. A nil mapping means the router returns
// node names directly and may route anywhere. Stop (End) needs no mapping
// entry.
//
// Example:
//
//	_ = g.AddConditionalEdges("B", func(s graph.State) graph.Route {
//	    if graph.GetOr(s, "input", "") == "C" {
//	        return graph.Goto("to_c")
//	    }
//	    return graph.Goto("to_d")
//	}, map[string]string{"to_c": "C", "to_d": "D"})
func (g *StateGraph) AddConditionalEdges(from string, router Router, mapping map[string]string) error {
	switch {
	case from == "":
		return g.reject(Issue{Code: CodeInvalidEdge, Message: "conditional edge source cannot be empty"})
	case from == End:
		return g.reject(Issue{Code: CodeInvalidEdge, Node: from, Message: "conditional edge leaves End"})
	case router == nil:
		return g.reject(Issue{Code: CodeInvalidEdge, Node: from, Message: fmt.Sprintf("conditional edge from %s has a nil router", from)})
	}
	var m map[string]string
	if mapping != nil {
		m = make(map[string]string, len(mapping))
		for k, v := range mapping {
			m[k] = v
		}
	}
	g.branches[from] = append(g.branches[from], branch{router: router, mapping: m})
	return nil
}

func (g *StateGraph) reject(issue Issue) error {
	g.issues = append(g.issues, issue)
	return &GraphValidationError{Issues: []Issue{issue}}
}
