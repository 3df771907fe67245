package graph

import (
	"fmt"
	"sort"
	"time"
)

// compiledNode is the immutable adjacency record of one node.
type compiledNode struct {
	name       string
	fn         NodeFunc
	retry      RetryPolicy
	timeout    time.Duration
	private    map[string]Field
	successors []string
	branches   []branch
}

// CompiledGraph is a validated, immutable graph ready for invocation.
//
// A CompiledGraph is safe for concurrent use: every Invoke has its own
// state, context and run ID.
type CompiledGraph struct {
	schema        *Schema
	contextSchema *ContextSchema
	start         *compiledNode
	nodes         map[string]*compiledNode
	cfg           engineConfig
}

// Compile validates the graph and freezes it.
//
// Compile fails with a GraphValidationError listing every problem found:
// invalid or duplicate nodes, edges naming unknown nodes, mapping values or
// declared destinations naming unknown nodes, invalid retry policies, a
// missing entry point, and an End that cannot be reached from Start.
// Reachability follows static edges, router mappings and declared command
// destinations; a router without a mapping may reach any node.
//
// Nodes unreachable from Start are logged as a warning.
//
// Later changes to the builder do not affect the returned graph.
func (g *StateGraph) Compile(opts ...Option) (*CompiledGraph, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	issues := append([]Issue(nil), g.schema.issues...)
	issues = append(issues, g.contextSchema.validate()...)
	issues = append(issues, g.issues...)

	isTarget := func(name string) bool {
		return name == End || g.nodes[name] != nil
	}
	isSource := func(name string) bool {
		return name == Start || g.nodes[name] != nil
	}

	cg := &CompiledGraph{
		schema:        g.schema,
		contextSchema: g.contextSchema,
		start:         &compiledNode{name: Start},
		nodes:         make(map[string]*compiledNode, len(g.nodes)),
		cfg:           cfg,
	}
	if cs := g.contextSchema; cs != nil {
		cg.contextSchema = &ContextSchema{Fields: append([]ContextField(nil), cs.Fields...)}
	}

	for _, name := range g.order {
		spec := g.nodes[name]
		cn := &compiledNode{
			name:    name,
			fn:      spec.fn,
			timeout: spec.timeout,
			retry:   RetryPolicy{MaxAttempts: 1},
		}
		if cn.timeout < 0 {
			issues = append(issues, Issue{Code: CodeInvalidNode, Node: name, Message: fmt.Sprintf("node %s has a negative timeout", name)})
		}
		if spec.retry != nil {
			if err := spec.retry.Validate(); err != nil {
				issues = append(issues, Issue{Code: CodeInvalidRetryPolicy, Node: name, Message: fmt.Sprintf("node %s: %v", name, err)})
			}
			cn.retry = *spec.retry
		}
		if len(spec.private) > 0 {
			cn.private = make(map[string]Field, len(spec.private))
			for fname, f := range spec.private {
				switch {
				case fname == "":
					issues = append(issues, Issue{Code: CodeInvalidField, Node: name, Message: fmt.Sprintf("node %s declares a private field with an empty name", name)})
				case g.schema.has(fname):
					issues = append(issues, Issue{Code: CodeInvalidField, Node: name, Message: fmt.Sprintf("node %s: private field %q shadows a shared field", name, fname)})
				}
				cn.private[fname] = f
			}
		}
		for _, dest := range spec.destinations {
			if !isTarget(dest) {
				issues = append(issues, Issue{Code: CodeUnknownNode, Node: name, Message: fmt.Sprintf("node %s declares unknown destination %q", name, dest)})
			}
		}
		cg.nodes[name] = cn
	}

	for _, e := range g.edges {
		if !isSource(e.from) {
			issues = append(issues, Issue{Code: CodeUnknownNode, Node: e.from, Message: fmt.Sprintf("edge %s -> %s: unknown source node %q", e.from, e.to, e.from)})
		}
		if !isTarget(e.to) {
			issues = append(issues, Issue{Code: CodeUnknownNode, Node: e.to, Message: fmt.Sprintf("edge %s -> %s: unknown target node %q", e.from, e.to, e.to)})
		}
		if src := cg.lookup(e.from); src != nil {
			src.successors = appendUnique(src.successors, e.to)
		}
	}

	for _, from := range sortedKeys(g.branches) {
		if !isSource(from) {
			issues = append(issues, Issue{Code: CodeUnknownNode, Node: from, Message: fmt.Sprintf("conditional edge from unknown node %q", from)})
		}
		for _, b := range g.branches[from] {
			for _, key := range sortedKeys(b.mapping) {
				if to := b.mapping[key]; !isTarget(to) {
					issues = append(issues, Issue{Code: CodeUnknownNode, Node: from, Message: fmt.Sprintf("conditional edge from %s maps %q to unknown node %q", from, key, to)})
				}
			}
			if src := cg.lookup(from); src != nil {
				src.branches = append(src.branches, b)
			}
		}
	}

	if len(cg.start.successors) == 0 && len(cg.start.branches) == 0 {
		issues = append(issues, Issue{Code: CodeNoEntry, Node: Start, Message: "graph has no edge from Start"})
	}

	reached := cg.reachable(g)
	if !reached[End] {
		issues = append(issues, Issue{Code: CodeExitUnreachable, Node: End, Message: "End is not reachable from Start"})
	}

	if len(issues) > 0 {
		return nil, &GraphValidationError{Issues: issues}
	}

	for _, name := range g.order {
		if !reached[name] {
			cfg.logger.Warn("node is unreachable from start", "node", name)
		}
	}
	return cg, nil
}

// reachable walks the graph from Start over static edges, router mappings
// and declared destinations.
func (cg *CompiledGraph) reachable(g *StateGraph) map[string]bool {
	reached := map[string]bool{Start: true}
	queue := []string{Start}
	visit := func(name string) {
		if name == End {
			reached[End] = true
			return
		}
		if cg.nodes[name] == nil || reached[name] {
			return
		}
		reached[name] = true
		queue = append(queue, name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		cn := cg.lookup(name)
		for _, to := range cn.successors {
			visit(to)
		}
		for _, b := range cn.branches {
			dests, ok := b.destinations()
			if !ok {
				visit(End)
				for _, n := range g.order {
					visit(n)
				}
				continue
			}
			for _, to := range dests {
				visit(to)
			}
		}
		if spec := g.nodes[name]; spec != nil {
			for _, to := range spec.destinations {
				visit(to)
			}
		}
	}
	return reached
}

// lookup returns the compiled record for a node or Start.
func (cg *CompiledGraph) lookup(name string) *compiledNode {
	if name == Start {
		return cg.start
	}
	return cg.nodes[name]
}

// Nodes returns the registered node names in sorted order.
func (cg *CompiledGraph) Nodes() []string {
	return sortedKeys(cg.nodes)
}

// Schema returns the state schema of the graph.
func (cg *CompiledGraph) Schema() *Schema {
	return cg.schema
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
