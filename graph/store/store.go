// Package store provides snapshot persistence for graph executions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists the latest state snapshot of each run and named
// checkpoints.
//
// A Store is a step hook, not an execution history: SaveStep overwrites the
// previous snapshot of the run, so only the most recent completed step is
// retained. Checkpoints copy a snapshot under a caller-chosen label.
//
// Implementations:
//   - MemStore: in-process maps, for tests and development
//   - SQLiteStore: single-file database (modernc.org/sqlite)
//   - MySQLStore: MySQL/MariaDB (go-sql-driver/mysql)
//   - RedisStore: Redis keys with optional expiry (go-redis)
//
// All implementations encode state as JSON, so a loaded state holds
// JSON-decoded values (numbers become float64 inside map[string]any).
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// SaveStep replaces the run's snapshot with the state after step.
	// nodes lists the nodes that executed in the step, in dispatch order.
	SaveStep(ctx context.Context, runID string, step int, nodes []string, state S) error

	// LoadLatest returns the run's snapshot and its step number, or
	// ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint stores state under label, replacing any checkpoint
	// with the same label.
	SaveCheckpoint(ctx context.Context, label string, state S, step int) error

	// LoadCheckpoint returns the state and step stored under label, or
	// ErrNotFound.
	LoadCheckpoint(ctx context.Context, label string) (state S, step int, err error)

	// Close releases the store's resources. Later calls fail with ErrClosed.
	Close() error
}

func encodeState[S any](state S) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

func decodeState[S any](data []byte) (S, error) {
	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		var zero S
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}
