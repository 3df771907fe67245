// Package graph provides the core graph execution engine for stategraph.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
// allowed step count without completing. This prevents infinite loops and
// runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrUnknownField indicates an update, input value or Send payload naming a
// field that a closed Schema does not declare.
var ErrUnknownField = errors.New("unknown state field")

// ErrNodeTimeout indicates that a single node attempt exceeded its configured
// timeout. Timeout errors also match context.DeadlineExceeded.
var ErrNodeTimeout = errors.New("node attempt timed out")

// ErrNodePanic indicates that a node function panicked. Panics are never
// retried.
var ErrNodePanic = errors.New("node panicked")

// Validation issue codes reported by GraphValidationError.
const (
	CodeDuplicateNode      = "DUPLICATE_NODE"
	CodeInvalidNode        = "INVALID_NODE"
	CodeInvalidEdge        = "INVALID_EDGE"
	CodeUnknownNode        = "UNKNOWN_NODE"
	CodeInvalidField       = "INVALID_FIELD"
	CodeInvalidRetryPolicy = "INVALID_RETRY_POLICY"
	CodeNoEntry            = "NO_ENTRY"
	CodeExitUnreachable    = "EXIT_UNREACHABLE"
)

// Issue is a single problem found while building or compiling a graph.
type Issue struct {
	Code    string
	Node    string
	Message string
}

func (i Issue) String() string {
	return i.Code + ": " + i.Message
}

// GraphValidationError reports a malformed graph topology. It is returned by
// StateGraph builder methods and by Compile, and is never retried.
type GraphValidationError struct {
	Issues []Issue
}

func (e *GraphValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "graph validation failed: " + strings.Join(parts, "; ")
}

// HasCode reports whether any issue carries the given code.
func (e *GraphValidationError) HasCode(code string) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// NodeExecutionError wraps a node failure after the retry policy gave up:
// either the failure was not retryable or every attempt failed.
type NodeExecutionError struct {
	// Node is the failing node.
	Node string

	// Step is the scheduler step in which the node ran.
	Step int

	// Attempts is the number of attempts made, including the first.
	Attempts int

	// Retryable reports whether the last failure was classified retryable,
	// i.e. the node failed because attempts were exhausted.
	Retryable bool

	// Cause is the error returned by the last attempt.
	Cause error

	// LastState is the shared state as of the last completed step.
	// Diagnostic only; it is not a final state.
	LastState State
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempt(s): %v", e.Node, e.Attempts, e.Cause)
}

// Unwrap returns the underlying node error.
func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// IncompleteExecutionError reports that the scheduler reached a position from
// which it cannot make progress toward End: a node with no outgoing edge, a
// router that selected nothing, or a destination that does not exist. It
// indicates a graph authoring bug rather than a data problem.
type IncompleteExecutionError struct {
	Node      string
	Step      int
	Reason    string
	LastState State
}

func (e *IncompleteExecutionError) Error() string {
	return fmt.Sprintf("incomplete execution at node %s (step %d): %s", e.Node, e.Step, e.Reason)
}

// ContextValidationError reports invocation context values that do not
// satisfy the graph's ContextSchema. It is returned before any node runs.
type ContextValidationError struct {
	Field  string
	Reason string
}

func (e *ContextValidationError) Error() string {
	return fmt.Sprintf("context field %q: %s", e.Field, e.Reason)
}

// CancelledError is returned when the caller's context is cancelled during
// an invocation.
//
// LastState holds the shared state as of the last fully merged step. Updates
// from the interrupted step are discarded, so LastState is partial and must
// not be treated as a final result.
type CancelledError struct {
	Step      int
	LastState State
	Cause     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("invocation cancelled at step %d: %v", e.Step, e.Cause)
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// EngineError represents an error from engine operations that is not tied
// to a single node, such as step limits and store failures.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
