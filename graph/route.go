package graph

// RouteKind identifies which variant of Route is populated.
type RouteKind int

const (
	// RouteNone is the zero Route: no routing decision.
	RouteNone RouteKind = iota

	// RouteSingle continues at exactly one destination.
	RouteSingle

	// RouteBroadcast continues at several destinations in parallel, each
	// receiving the shared state.
	RouteBroadcast

	// RouteFanOut dispatches one work item per Send, each receiving the
	// shared state overlaid with its own payload.
	RouteFanOut
)

func (k RouteKind) String() string {
	switch k {
	case RouteSingle:
		return "single"
	case RouteBroadcast:
		return "broadcast"
	case RouteFanOut:
		return "fan_out"
	default:
		return "none"
	}
}

// Send is a dynamic fan-out work item: run Node once with Payload overlaid on
// the shared state.
//
// Payload keys must be shared state fields or private fields declared on the
// target node with WithPrivateFields. Sends to the same node are never
// collapsed; N sends produce N executions.
type Send struct {
	Node    string
	Payload State
}

// Route is a routing directive returned by routers and carried by commands.
//
// It is a tagged union over three shapes: a single destination, a broadcast
// to several destinations, or a fan-out of Send items. Construct it with
// Goto, Many, FanOut or Stop; the zero Route selects nothing.
//
// Example:
//
//	router := func(s graph.State) graph.Route {
//	    if graph.GetOr(s, "approved", false) {
//	        return graph.Goto("publish")
//	    }
//	    return graph.Stop()
//	}
type Route struct {
	kind    RouteKind
	targets []string
	sends   []Send
}

// Goto routes to a single destination. The destination is a node name, End,
// or a router mapping key when returned from a mapped router.
func Goto(node string) Route {
	return Route{kind: RouteSingle, targets: []string{node}}
}

// Many routes to several destinations, which run in parallel in the next
// step. Duplicate destinations run once.
func Many(nodes ...string) Route {
	return Route{kind: RouteBroadcast, targets: append([]string(nil), nodes...)}
}

// FanOut dispatches one work item per Send. An empty fan-out selects no
// destination.
func FanOut(sends ...Send) Route {
	return Route{kind: RouteFanOut, sends: append([]Send(nil), sends...)}
}

// Stop terminates the current branch. It is equivalent to Goto(End) and
// needs no entry in a router's mapping.
func Stop() Route {
	return Goto(End)
}

// Kind returns the populated variant.
func (r Route) Kind() RouteKind {
	return r.kind
}

// Targets returns the destinations of a single or broadcast route.
func (r Route) Targets() []string {
	return append([]string(nil), r.targets...)
}

// Sends returns the work items of a fan-out route.
func (r Route) Sends() []Send {
	return append([]Send(nil), r.sends...)
}

// IsZero reports whether the route carries no routing decision.
func (r Route) IsZero() bool {
	return r.kind == RouteNone
}
