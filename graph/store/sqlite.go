package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps snapshots and checkpoints in a single-file database through the
// pure-Go modernc.org/sqlite driver, so no cgo toolchain is required.
// Designed for:
//   - Development and testing with zero setup
//   - Single-process workflows that want snapshots on disk
//
// Schema:
//   - run_snapshots: latest snapshot per run (upserted every step)
//   - run_checkpoints: labelled snapshots
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// migrates its schema.
//
// The path parameter specifies the database file location:
//   - "./dev.db" - file in current directory
//   - "/tmp/workflow.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// Example:
//
//	st, err := store.NewSQLiteStore[graph.State]("./dev.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	snapshots := `
		CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id TEXT PRIMARY KEY,
			step INTEGER NOT NULL,
			nodes TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, snapshots); err != nil {
		return fmt.Errorf("failed to create run_snapshots table: %w", err)
	}

	checkpoints := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			label TEXT PRIMARY KEY,
			step INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep upserts the run's snapshot.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodes []string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
		INSERT INTO run_snapshots (run_id, step, nodes, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			step = excluded.step,
			nodes = excluded.nodes,
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, runID, step, string(nodesJSON), string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the run's snapshot.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}
	var stateJSON string
	err = s.db.QueryRowContext(ctx, `SELECT step, state FROM run_snapshots WHERE run_id = ?`, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	state, err = decodeState[S]([]byte(stateJSON))
	if err != nil {
		return state, 0, err
	}
	return state, step, nil
}

// SaveCheckpoint upserts a labelled snapshot.
func (s *SQLiteStore[S]) SaveCheckpoint(ctx context.Context, label string, state S, step int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO run_checkpoints (label, step, state)
		VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			step = excluded.step,
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, label, step, string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint stored under label.
func (s *SQLiteStore[S]) LoadCheckpoint(ctx context.Context, label string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}
	var stateJSON string
	err = s.db.QueryRowContext(ctx, `SELECT step, state FROM run_checkpoints WHERE label = ?`, label).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	state, err = decodeState[S]([]byte(stateJSON))
	if err != nil {
		return state, 0, err
	}
	return state, step, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
