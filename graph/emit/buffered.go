package emit

import "sync"

// BufferedEmitter stores events in memory, grouped by run ID.
//
// It is intended for tests, debugging and post-run analysis. All events are
// retained until Clear is called, so it is not suited to long-running
// production processes.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	compiled, _ := g.Compile(graph.WithEmitter(emitter))
//	_, _ = compiled.Invoke(ctx, input, nil, graph.WithRunID("run-001"))
//
//	retries := emitter.History("run-001", emit.HistoryFilter{Msg: emit.MsgNodeRetry})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter selects events. Zero fields do not filter; set fields are
// combined with AND logic.
//
//	// Steps 2 through 4 of node "worker".
//	minStep, maxStep := 2, 4
//	emit.HistoryFilter{NodeID: "worker", MinStep: &minStep, MaxStep: &maxStep}
type HistoryFilter struct {
	NodeID  string // Filter by node ID (empty = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinStep *int   // Minimum step number (nil = no filter)
	MaxStep *int   // Maximum step number (nil = no filter)
}

func (f HistoryFilter) matches(event Event) bool {
	switch {
	case f.NodeID != "" && event.NodeID != f.NodeID:
		return false
	case f.Msg != "" && event.Msg != f.Msg:
		return false
	case f.MinStep != nil && event.Step < *f.MinStep:
		return false
	case f.MaxStep != nil && event.Step > *f.MaxStep:
		return false
	}
	return true
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores the event. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns the events of a run matching filter, in emission order.
// The result is a copy and never nil.
func (b *BufferedEmitter) History(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Count returns how many events of a run carry msg.
func (b *BufferedEmitter) Count(runID, msg string) int {
	return len(b.History(runID, HistoryFilter{Msg: msg}))
}

// Clear removes the events of one run, or of all runs when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
