// Package emit provides event emission and observability for graph execution.
package emit

// Emitter receives observability events from graph execution.
//
// Implementations must be safe for concurrent use: the engine emits node
// events from the goroutines running a step's work items. Emit must not
// block for long and must not panic; delivery failures should be handled
// internally.
//
// Provided implementations:
//   - LogEmitter: log/slog text or JSON output
//   - BufferedEmitter: in-memory history for tests and analysis
//   - OTelEmitter: OpenTelemetry spans
//   - MultiEmitter: fan-out to several emitters
//   - NullEmitter: discard
type Emitter interface {
	Emit(event Event)
}
