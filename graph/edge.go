package graph

// Router selects the next destination(s) of a node from the shared state.
//
// Routers run after the step's updates have been merged, so they observe
// every update of the step, not only their own node's. They must be pure and
// deterministic.
//
// Common patterns:
//   - Threshold: Goto("escalate") when a score is high, Stop() otherwise.
//   - Map/reduce: FanOut with one Send per item in a list.
//   - Parallel branches: Many("search", "summarize").
type Router func(state State) Route

// edge is a static transition registered with AddEdge.
type edge struct {
	from string
	to   string
}

// branch is a conditional transition registered with AddConditionalEdges.
//
// When mapping is non-nil, single and broadcast destinations returned by the
// router are keys that are translated through it. Send targets are always
// node names.
type branch struct {
	router  Router
	mapping map[string]string
}

// destinations returns the nodes the branch may route to, for reachability
// analysis. ok is false for an unmapped router, which may route anywhere.
func (b branch) destinations() (dests []string, ok bool) {
	if b.mapping == nil {
		return nil, false
	}
	for _, to := range b.mapping {
		dests = append(dests, to)
	}
	return dests, true
}
