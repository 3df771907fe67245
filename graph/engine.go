package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stategraph/stategraph/graph/emit"
)

// invocation is the mutable state of one Invoke call.
type invocation struct {
	g      *CompiledGraph
	runID  string
	seed   int64
	values Values

	// state is the shared state as of the last completed step.
	state State
	step  int
}

// Invoke runs the graph to completion and returns the final shared state.
//
// Execution proceeds in bulk-synchronous steps. In each step every work item
// of the frontier runs concurrently on an isolated copy of the state; once
// all of them finish, their updates are merged through the field reducers
// in dispatch order, and the next frontier is resolved from commands, static
// edges and routers evaluated on the merged state. The invocation completes
// when the frontier is empty and End was reached.
//
// contextValues are validated against the graph's ContextSchema before any
// node runs and are passed to nodes through Runtime.Context.
//
// Errors:
//   - *ContextValidationError: invalid context values, no node ran
//   - *StateError: input or update naming an undeclared field, or a reducer failure
//   - *NodeExecutionError: a node failed after its retry policy gave up
//   - *IncompleteExecutionError: a position without a next destination
//   - *CancelledError: ctx was cancelled; LastState is partial
//   - *EngineError: step limit exceeded (wraps ErrMaxStepsExceeded) or store failure
//
// No final state is returned on failure.
//
// Example:
//
//	final, err := compiled.Invoke(ctx, graph.State{"input": "C"}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(final["execution_path"])
func (cg *CompiledGraph) Invoke(ctx context.Context, input State, contextValues map[string]any, opts ...InvokeOption) (State, error) {
	ic := invokeConfig{}
	for _, opt := range opts {
		opt(&ic)
	}
	if ic.runID == "" {
		ic.runID = uuid.NewString()
	}

	inv := &invocation{g: cg, runID: ic.runID}
	inv.seed = seedFromRunID(ic.runID)
	if cg.cfg.seedSet {
		inv.seed = cg.cfg.seed
	}

	final, err := inv.run(ctx, input, contextValues)
	if err != nil {
		inv.emit("", emit.MsgRunError, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	inv.emit("", emit.MsgRunComplete, map[string]interface{}{"steps": inv.step})
	return final, nil
}

func (inv *invocation) run(ctx context.Context, input State, contextValues map[string]any) (State, error) {
	cg := inv.g

	values, err := cg.contextSchema.Bind(contextValues)
	if err != nil {
		return nil, err
	}
	inv.values = values

	state, err := cg.schema.Initial(input)
	if err != nil {
		return nil, err
	}
	inv.state = state
	inv.emit("", emit.MsgRunStart, map[string]interface{}{"nodes": len(cg.nodes)})

	entry, err := inv.resolve(cg.start, NodeResult{})
	if err != nil {
		return nil, err
	}
	items, reachedEnd := inv.frontier([]string{Start}, [][]destination{entry})

	for len(items) > 0 {
		inv.step++
		if maxSteps := cg.cfg.maxSteps; maxSteps > 0 && inv.step > maxSteps {
			return nil, &EngineError{
				Message: fmt.Sprintf("workflow exceeded %d steps", maxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, inv.cancelled(err)
		}

		cg.cfg.metrics.UpdateFrontierSize(len(items))
		stepStart := time.Now()

		results, err := inv.runStep(ctx, items)
		if err != nil {
			if ctx.Err() != nil {
				return nil, inv.cancelled(ctx.Err())
			}
			return nil, err
		}
		if err := inv.merge(results); err != nil {
			return nil, err
		}

		sources := make([]string, len(results))
		dests := make([][]destination, len(results))
		for i, r := range results {
			sources[i] = r.item.Node
			d, err := inv.resolve(cg.nodes[r.item.Node], r.outcome.result)
			if err != nil {
				return nil, err
			}
			dests[i] = d
		}

		if st := cg.cfg.store; st != nil {
			if err := st.SaveStep(ctx, inv.runID, inv.step, sources, inv.state.Clone()); err != nil {
				return nil, &EngineError{
					Message: "failed to save step: " + err.Error(),
					Code:    "STORE_ERROR",
					Cause:   err,
				}
			}
		}

		next, end := inv.frontier(sources, dests)
		reachedEnd = reachedEnd || end
		inv.emit("", emit.MsgStepComplete, map[string]interface{}{
			"nodes":       sources,
			"next":        len(next),
			"duration_ms": time.Since(stepStart).Milliseconds(),
		})
		items = next
	}
	cg.cfg.metrics.UpdateFrontierSize(0)

	if !reachedEnd {
		return nil, inv.incomplete(Start, "execution finished without reaching End")
	}
	return inv.state, nil
}

func (inv *invocation) cancelled(cause error) error {
	return &CancelledError{
		Step:      inv.step,
		LastState: inv.state.Clone(),
		Cause:     cause,
	}
}

func (inv *invocation) emit(nodeID, msg string, meta map[string]interface{}) {
	inv.g.cfg.emitter.Emit(emit.Event{
		RunID:  inv.runID,
		Step:   inv.step,
		NodeID: nodeID,
		Msg:    msg,
		Meta:   meta,
	})
}

// SaveCheckpoint snapshots the latest persisted state of a run under a
// label. The graph must have been compiled WithStore.
//
// Example:
//
//	_, _ = compiled.Invoke(ctx, input, nil, graph.WithRunID("run-001"))
//	_ = compiled.SaveCheckpoint(ctx, "run-001", "after-review")
func (cg *CompiledGraph) SaveCheckpoint(ctx context.Context, runID, label string) error {
	st := cg.cfg.store
	if st == nil {
		return &EngineError{Message: "no store configured", Code: "NO_STORE"}
	}
	state, step, err := st.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{
			Message: "cannot create checkpoint: run state not found: " + err.Error(),
			Code:    "RUN_NOT_FOUND",
			Cause:   err,
		}
	}
	if err := st.SaveCheckpoint(ctx, label, state, step); err != nil {
		return &EngineError{
			Message: "failed to save checkpoint: " + err.Error(),
			Code:    "CHECKPOINT_SAVE_FAILED",
			Cause:   err,
		}
	}
	cg.cfg.emitter.Emit(emit.Event{
		RunID: runID,
		Step:  step,
		Msg:   emit.MsgCheckpoint,
		Meta:  map[string]interface{}{"checkpoint_id": label},
	})
	return nil
}

// LoadCheckpoint returns the state and step stored under a label.
func (cg *CompiledGraph) LoadCheckpoint(ctx context.Context, label string) (State, int, error) {
	st := cg.cfg.store
	if st == nil {
		return nil, 0, &EngineError{Message: "no store configured", Code: "NO_STORE"}
	}
	state, step, err := st.LoadCheckpoint(ctx, label)
	if err != nil {
		return nil, 0, &EngineError{
			Message: "failed to load checkpoint: " + err.Error(),
			Code:    "CHECKPOINT_NOT_FOUND",
			Cause:   err,
		}
	}
	return state, step, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrNodeTimeout)
}
