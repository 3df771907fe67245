package graph

import (
	"log/slog"
	"time"

	"github.com/stategraph/stategraph/graph/emit"
	"github.com/stategraph/stategraph/graph/store"
)

// DefaultMaxSteps is the step limit applied when WithMaxSteps is not used.
const DefaultMaxSteps = 25

// CommandUpdateMode selects how the update carried by a command is merged
// into the shared state.
type CommandUpdateMode int

const (
	// CommandUpdateReduce merges command updates through the field reducers,
	// exactly like plain updates. This is the default.
	CommandUpdateReduce CommandUpdateMode = iota

	// CommandUpdateOverwrite writes command updates over the shared state,
	// bypassing reducers.
	CommandUpdateOverwrite
)

func (m CommandUpdateMode) String() string {
	if m == CommandUpdateOverwrite {
		return "overwrite"
	}
	return "reduce"
}

// Option is a functional option for configuring a compiled graph.
//
// Options are passed to Compile and fixed for the lifetime of the compiled
// graph:
//
//	compiled, err := g.Compile(
//	    graph.WithMaxSteps(50),
//	    graph.WithMaxConcurrent(8),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are frozen into a CompiledGraph.
type engineConfig struct {
	maxSteps       int
	maxConcurrent  int
	defaultTimeout time.Duration
	emitter        emit.Emitter
	metrics        *PrometheusMetrics
	store          store.Store[State]
	logger         *slog.Logger
	seed           int64
	seedSet        bool
	commandMode    CommandUpdateMode
}

func defaultConfig() engineConfig {
	return engineConfig{
		maxSteps: DefaultMaxSteps,
		emitter:  emit.NewNullEmitter(),
		logger:   slog.Default(),
	}
}

// WithMaxSteps limits the number of scheduler steps per invocation.
//
// Default: 25. Zero disables the limit (use with caution: a graph with a
// cycle and no reachable exit then runs until cancelled).
//
// Loops are fully supported. When the limit is exceeded, Invoke returns an
// EngineError with code "MAX_STEPS_EXCEEDED" wrapping ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max steps must be >= 0", Code: "INVALID_OPTION"}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithMaxConcurrent bounds how many work items of one step run at the same
// time. Zero means no limit.
//
// Each concurrent item holds a deep copy of state, so memory usage scales
// linearly with the limit.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent must be >= 0", Code: "INVALID_OPTION"}
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithDefaultNodeTimeout bounds every node attempt that does not set its own
// WithTimeout. Zero means no timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return &EngineError{Message: "default node timeout must be >= 0", Code: "INVALID_OPTION"}
		}
		cfg.defaultTimeout = d
		return nil
	}
}

// WithEmitter sets the observability event sink. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	compiled, _ := g.Compile(graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithStore persists a snapshot of the shared state after every completed
// step. Stores keep only the latest snapshot per run plus named checkpoints.
func WithStore(st store.Store[State]) Option {
	return func(cfg *engineConfig) error {
		cfg.store = st
		return nil
	}
}

// WithLogger sets the structured logger used for compile-time warnings such
// as unreachable nodes. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			logger = slog.Default()
		}
		cfg.logger = logger
		return nil
	}
}

// WithSeed fixes the seed of the retry jitter random source.
//
// Without it the seed is derived from the run ID, so two invocations with
// the same run ID wait identical jittered delays.
func WithSeed(seed int64) Option {
	return func(cfg *engineConfig) error {
		cfg.seed = seed
		cfg.seedSet = true
		return nil
	}
}

// WithCommandUpdateMode selects how command updates are merged.
// Default: CommandUpdateReduce.
func WithCommandUpdateMode(mode CommandUpdateMode) Option {
	return func(cfg *engineConfig) error {
		switch mode {
		case CommandUpdateReduce, CommandUpdateOverwrite:
			cfg.commandMode = mode
			return nil
		default:
			return &EngineError{Message: "unknown command update mode", Code: "INVALID_OPTION"}
		}
	}
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeConfig)

type invokeConfig struct {
	runID string
}

// WithRunID sets the invocation's run ID. Default: a random UUID.
//
// The run ID labels emitted events, metrics and store snapshots.
func WithRunID(id string) InvokeOption {
	return func(c *invokeConfig) {
		c.runID = id
	}
}
