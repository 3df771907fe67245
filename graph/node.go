package graph

import (
	"context"
	"time"
)

// NodeFunc is the unit of work in a graph.
//
// A node receives an isolated copy of the state (mutating it has no effect
// on the shared state), the invocation's Runtime, and returns a NodeResult:
// a partial update, optionally a routing override, or an error.
//
// Node functions must be safe to call concurrently: branches of a fan-out
// run in parallel goroutines.
//
// Example:
//
//	greet := func(ctx context.Context, s graph.State, rt graph.Runtime) graph.NodeResult {
//	    name := graph.GetOr(s, "name", "world")
//	    return graph.Update(graph.State{"greeting": "hello " + name})
//	}
type NodeFunc func(ctx context.Context, state State, rt Runtime) NodeResult

// NodeResult is the output of one node execution.
type NodeResult struct {
	// Update is the partial state update, merged through the field reducers.
	// Nil or empty means no change.
	Update State

	// Goto, when set, makes the result a command: it replaces static and
	// conditional edge resolution for this node's position.
	Goto Route

	// Err fails the attempt. It is classified by the node's retry policy.
	Err error
}

// Update returns a result that only updates state.
func Update(s State) NodeResult {
	return NodeResult{Update: s}
}

// Command returns a result that updates state and chooses the next
// destination in one step. Destinations are node names or End; they are
// not translated through any router mapping.
//
// Example:
//
//	return graph.Command(graph.State{"draft": text}, graph.Goto("review"))
func Command(s State, route Route) NodeResult {
	return NodeResult{Update: s, Goto: route}
}

// Fail returns a result that fails the current attempt with err.
func Fail(err error) NodeResult {
	return NodeResult{Err: err}
}

// IsCommand reports whether the result carries a routing override.
func (r NodeResult) IsCommand() bool {
	return !r.Goto.IsZero()
}

// NodeOption configures a node registered with AddNode.
type NodeOption func(*nodeSpec)

// nodeSpec is the registration record of a node.
type nodeSpec struct {
	name         string
	fn           NodeFunc
	retry        *RetryPolicy
	timeout      time.Duration
	private      map[string]Field
	destinations []string
}

// WithRetry attaches a retry policy to the node. Without it a node runs
// exactly once.
func WithRetry(policy RetryPolicy) NodeOption {
	return func(n *nodeSpec) {
		p := policy
		n.retry = &p
	}
}

// WithTimeout bounds each attempt of the node. It overrides the engine's
// WithDefaultNodeTimeout. Zero means no per-node timeout.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *nodeSpec) {
		n.timeout = d
	}
}

// WithPrivateFields declares input fields that only this node sees.
//
// Private fields are typically carried by Send payloads in a map/reduce
// fan-out. They are visible in the node's input but never merged into the
// shared state: updates to them are dropped at the merge barrier. Defaults
// seed the node's input; reducers are ignored.
func WithPrivateFields(fields ...Field) NodeOption {
	return func(n *nodeSpec) {
		if n.private == nil {
			n.private = make(map[string]Field, len(fields))
		}
		for _, f := range fields {
			n.private[f.Name] = f
		}
	}
}

// WithDestinations declares where the node's commands may route.
//
// Declared destinations take part in compile-time reachability analysis,
// so a node that routes only through commands can still make End reachable.
func WithDestinations(nodes ...string) NodeOption {
	return func(n *nodeSpec) {
		n.destinations = append(n.destinations, nodes...)
	}
}
