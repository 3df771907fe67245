package emit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// LogEmitter implements Emitter by writing events through a log/slog
// logger.
//
// Supports two output modes:
//   - Text mode (default): slog text handler, key=value pairs
//   - JSON mode: slog JSON handler, one event per line
//
// Example text output:
//
//	time=... level=INFO msg=node_start run_id=run-001 step=1 node_id=nodeA index=0
//
// Node errors and run errors are logged at level ERROR, retries at WARN.
//
// Usage:
//
//	// Text output to stdout
//	emitter := emit.NewLogEmitter(os.Stdout, false)
//
//	// JSON output to file
//	f, _ := os.Create("events.jsonl")
//	defer f.Close()
//	emitter := emit.NewLogEmitter(f, true)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter writing to writer (stdout when nil).
// If jsonMode is true events are written as JSON lines.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(writer, nil)
	} else {
		handler = slog.NewTextHandler(writer, nil)
	}
	return &LogEmitter{logger: slog.New(handler)}
}

// NewSlogEmitter creates a LogEmitter on an existing logger, so events share
// the application's handler and attributes.
func NewSlogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs the event. Meta keys are written as attributes in sorted order.
func (l *LogEmitter) Emit(event Event) {
	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("run_id", event.RunID),
		slog.Int("step", event.Step),
	)
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}
	l.logger.LogAttrs(context.Background(), levelFor(event.Msg), event.Msg, attrs...)
}

func levelFor(msg string) slog.Level {
	switch msg {
	case MsgNodeError, MsgRunError:
		return slog.LevelError
	case MsgNodeRetry:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
