package graph

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stategraph/stategraph/graph/emit"
)

// WorkItem is one unit of execution in a scheduler step: a node to run and,
// for fan-out items, the Send payload overlaid on its input.
type WorkItem struct {
	// Node is the node to execute.
	Node string

	// Payload is the Send payload. Nil for plain items.
	Payload State

	// Send marks a fan-out item. Send items are never collapsed.
	Send bool

	// Index is the dispatch position within the step. Updates are merged in
	// Index order regardless of completion order.
	Index int
}

// itemResult pairs a work item with its execution outcome.
type itemResult struct {
	item    WorkItem
	outcome attemptOutcome
}

// destination is a resolved next position.
type destination struct {
	node    string
	payload State
	send    bool
}

// itemSeed derives the jitter seed of one work item from the invocation
// seed, the step and the item's dispatch index. The same triple always
// yields the same seed.
func itemSeed(seed int64, step, index int) int64 {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:16], uint64(step))
	binary.BigEndian.PutUint64(buf[16:24], uint64(index))
	sum := sha256.Sum256(buf[:])
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// seedFromRunID derives an invocation seed from its run ID.
func seedFromRunID(runID string) int64 {
	sum := sha256.Sum256([]byte(runID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// runStep executes the items of one step concurrently and waits for all of
// them. It returns results in dispatch order.
//
// The first genuine node failure cancels the remaining items of the step.
// Cancellation of the invocation context is reported by the caller.
func (inv *invocation) runStep(ctx context.Context, items []WorkItem) ([]itemResult, error) {
	views := make([]State, len(items))
	for i, item := range items {
		view, err := inv.view(item)
		if err != nil {
			return nil, err
		}
		views[i] = view
	}

	results := make([]itemResult, len(items))
	grp, gctx := errgroup.WithContext(ctx)
	if limit := inv.g.cfg.maxConcurrent; limit > 0 {
		grp.SetLimit(limit)
	}
	for i, item := range items {
		grp.Go(func() error {
			out := inv.execute(gctx, item, views[i])
			results[i] = itemResult{item: item, outcome: out}
			if out.err != nil && !out.cancelled {
				return out.err
			}
			return nil
		})
	}
	_ = grp.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.outcome.err == nil || r.outcome.cancelled {
			continue
		}
		return nil, &NodeExecutionError{
			Node:      r.item.Node,
			Step:      inv.step,
			Attempts:  r.outcome.attempts,
			Retryable: r.outcome.retryable,
			Cause:     r.outcome.err,
			LastState: inv.state.Clone(),
		}
	}
	return results, nil
}

// view builds the isolated input of a work item: a deep copy of the shared
// state, private field defaults, then the Send payload.
func (inv *invocation) view(item WorkItem) (State, error) {
	node := inv.g.nodes[item.Node]
	view := inv.state.Clone()
	for name, f := range node.private {
		if f.Default != nil {
			view[name] = deepCopyValue(f.Default)
		}
	}
	for _, key := range item.Payload.Keys() {
		_, private := node.private[key]
		if !private && inv.g.schema.Closed() && !inv.g.schema.has(key) {
			return nil, &StateError{Field: key, Node: item.Node, Cause: ErrUnknownField}
		}
		view[key] = deepCopyValue(item.Payload[key])
	}
	return view, nil
}

// execute runs one work item under its node's retry policy.
func (inv *invocation) execute(ctx context.Context, item WorkItem, view State) attemptOutcome {
	node := inv.g.nodes[item.Node]
	cfg := inv.g.cfg

	timeout := node.timeout
	if timeout == 0 {
		timeout = cfg.defaultTimeout
	}
	r := retrier{
		policy:  node.retry,
		timeout: timeout,
		rng:     rand.New(rand.NewSource(itemSeed(inv.seed, inv.step, item.Index))), // #nosec G404 -- jitter for retry timing, not security
		onRetry: func(attempt int, err error, delay time.Duration) {
			cfg.metrics.IncrementRetries(inv.runID, item.Node, retryReason(err))
			inv.emit(item.Node, emit.MsgNodeRetry, map[string]interface{}{
				"attempt":  attempt,
				"error":    err.Error(),
				"delay_ms": delay.Milliseconds(),
			})
		},
	}

	inv.emit(item.Node, emit.MsgNodeStart, map[string]interface{}{"index": item.Index, "send": item.Send})
	cfg.metrics.AddInflightNodes(1)
	start := time.Now()

	out := r.run(ctx, func(ctx context.Context, attempt int) NodeResult {
		rt := Runtime{
			RunID:   inv.runID,
			Step:    inv.step,
			Attempt: attempt,
			Node:    item.Node,
			Context: inv.values,
		}
		// A failed attempt must not leak its mutations into the next one.
		return node.fn(ctx, view.Clone(), rt)
	})

	latency := time.Since(start)
	cfg.metrics.AddInflightNodes(-1)
	switch {
	case out.err == nil:
		cfg.metrics.RecordStepLatency(inv.runID, item.Node, latency, "success")
		inv.emit(item.Node, emit.MsgNodeEnd, map[string]interface{}{
			"duration_ms": latency.Milliseconds(),
			"attempts":    out.attempts,
			"command":     out.result.IsCommand(),
		})
	case out.cancelled:
		cfg.metrics.RecordStepLatency(inv.runID, item.Node, latency, "cancelled")
	default:
		status := "error"
		if isTimeout(out.err) {
			status = "timeout"
		}
		cfg.metrics.RecordStepLatency(inv.runID, item.Node, latency, status)
		cfg.metrics.IncrementNodeFailures(inv.runID, item.Node, status)
		inv.emit(item.Node, emit.MsgNodeError, map[string]interface{}{
			"error":     out.err.Error(),
			"attempts":  out.attempts,
			"retryable": out.retryable,
		})
	}
	return out
}

// merge folds the step's updates into the shared state in dispatch order.
func (inv *invocation) merge(results []itemResult) error {
	schema := inv.g.schema
	for _, r := range results {
		node := inv.g.nodes[r.item.Node]
		res := r.outcome.result
		updates := make(State, len(res.Update))
		for k, v := range res.Update {
			if _, private := node.private[k]; private {
				continue
			}
			if r.item.Send && schema.Closed() && !schema.has(k) {
				continue
			}
			updates[k] = v
		}
		if len(updates) == 0 {
			continue
		}

		var (
			merged State
			err    error
		)
		if res.IsCommand() && inv.g.cfg.commandMode == CommandUpdateOverwrite {
			merged, err = schema.Overwrite(inv.state, updates)
		} else {
			merged, err = schema.Merge(inv.state, updates)
		}
		if err != nil {
			inv.g.cfg.metrics.IncrementMergeErrors(inv.runID)
			var se *StateError
			if errors.As(err, &se) {
				se.Node = r.item.Node
			}
			return err
		}
		inv.state = merged
	}
	return nil
}

// resolve computes the next positions of one node after the merge.
//
// A command route replaces edge resolution. Otherwise the node's static
// successors are followed in registration order, then every router is
// evaluated on the merged shared state.
func (inv *invocation) resolve(src *compiledNode, res NodeResult) ([]destination, error) {
	var dests []destination
	if res.IsCommand() {
		d, err := inv.routeDestinations(src.name, res.Goto, nil)
		if err != nil {
			return nil, err
		}
		dests = d
	} else {
		for _, to := range src.successors {
			dests = append(dests, destination{node: to})
		}
		for _, b := range src.branches {
			route := b.router(inv.state.Clone())
			d, err := inv.routeDestinations(src.name, route, b.mapping)
			if err != nil {
				return nil, err
			}
			dests = append(dests, d...)
		}
	}

	if len(dests) == 0 {
		return nil, inv.incomplete(src.name, "no outgoing edge and no route selected")
	}
	for _, d := range dests {
		if d.node == End && !d.send {
			continue
		}
		if inv.g.nodes[d.node] == nil {
			return nil, inv.incomplete(src.name, fmt.Sprintf("destination %q is not a registered node", d.node))
		}
	}
	return dests, nil
}

// routeDestinations expands a Route into destinations, translating single
// and broadcast keys through mapping when one is given. End is accepted
// unmapped so Stop works from any router.
func (inv *invocation) routeDestinations(from string, route Route, mapping map[string]string) ([]destination, error) {
	translate := func(key string) (string, error) {
		if mapping == nil {
			return key, nil
		}
		to, ok := mapping[key]
		if !ok {
			if key == End {
				return End, nil
			}
			return "", inv.incomplete(from, fmt.Sprintf("router returned unmapped key %q", key))
		}
		return to, nil
	}

	var dests []destination
	switch route.Kind() {
	case RouteSingle, RouteBroadcast:
		for _, key := range route.targets {
			to, err := translate(key)
			if err != nil {
				return nil, err
			}
			dests = append(dests, destination{node: to})
		}
	case RouteFanOut:
		for _, s := range route.sends {
			dests = append(dests, destination{node: s.Node, payload: s.Payload, send: true})
		}
	}
	return dests, nil
}

// frontier assembles the next step's work items. Plain destinations run
// once per step; Send destinations produce one item each.
func (inv *invocation) frontier(sources []string, dests [][]destination) (items []WorkItem, reachedEnd bool) {
	seen := make(map[string]bool)
	for i, list := range dests {
		sends := make(map[string]int)
		for _, d := range list {
			switch {
			case d.node == End:
				reachedEnd = true
			case d.send:
				items = append(items, WorkItem{Node: d.node, Payload: d.payload, Send: true, Index: len(items)})
				sends[d.node]++
			case !seen[d.node]:
				seen[d.node] = true
				items = append(items, WorkItem{Node: d.node, Index: len(items)})
			}
		}
		for _, target := range sortedKeys(sends) {
			inv.g.cfg.metrics.AddFanOutBranches(inv.runID, target, sends[target])
			inv.emit(sources[i], emit.MsgFanOut, map[string]interface{}{
				"target":   target,
				"branches": sends[target],
			})
		}
	}
	return items, reachedEnd
}

func (inv *invocation) incomplete(node, reason string) error {
	return &IncompleteExecutionError{
		Node:      node,
		Step:      inv.step,
		Reason:    reason,
		LastState: inv.state.Clone(),
	}
}

func retryReason(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return "error"
}
