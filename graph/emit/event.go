package emit

// Event messages emitted by the graph engine.
const (
	MsgRunStart     = "run_start"
	MsgNodeStart    = "node_start"
	MsgNodeRetry    = "node_retry"
	MsgNodeEnd      = "node_end"
	MsgNodeError    = "node_error"
	MsgFanOut       = "fan_out"
	MsgStepComplete = "step_complete"
	MsgRunComplete  = "run_complete"
	MsgRunError     = "run_error"
	MsgCheckpoint   = "checkpoint_saved"
	MsgModelCall    = "model_call"
)

// Event represents an observability event emitted during workflow execution.
//
// Events provide insight into workflow behavior:
//   - Run and step boundaries
//   - Node execution start, retry, completion and failure
//   - Dynamic fan-out
//   - Checkpoint operations
type Event struct {
	// RunID identifies the invocation that emitted this event.
	RunID string

	// Step is the scheduler step (1-indexed).
	// Zero for events before the first step (run_start).
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for run-level events.
	NodeID string

	// Msg is the event kind, one of the Msg constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "attempt": Attempt number that failed (node_retry)
	//   - "delay_ms": Backoff before the next attempt (node_retry)
	//   - "branches": Number of Send items (fan_out)
	//   - "checkpoint_id": Checkpoint label
	Meta map[string]interface{}
}
