package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It keeps the latest snapshot per run and labelled checkpoints in two
// InnoDB tables, so several processes can share snapshots of their runs.
//
// Schema:
//   - run_snapshots: latest snapshot per run (upserted every step)
//   - run_checkpoints: labelled snapshots
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to MySQL and migrates the schema.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// NEVER hardcode credentials in source code. Read the DSN from the
// environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore[graph.State](dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore[S]{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	snapshots := `
		CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			step INT NOT NULL,
			nodes JSON NOT NULL,
			state JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, snapshots); err != nil {
		return fmt.Errorf("failed to create run_snapshots table: %w", err)
	}

	checkpoints := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			label VARCHAR(255) NOT NULL PRIMARY KEY,
			step INT NOT NULL,
			state JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep upserts the run's snapshot.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, nodes []string, state S) error {
	if err := m.checkOpen(); err != nil {
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
		ON DUPLICATE KEY UPDATE
			step = VALUES(step),
			nodes = VALUES(nodes),
			state = VALUES(state)
	`
	if _, err := m.db.ExecContext(ctx, query, runID, step, nodesJSON, stateJSON); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the run's snapshot.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	if err := m.checkOpen(); err != nil {
		return state, 0, err
	}
	var stateJSON []byte
	err = m.db.QueryRowContext(ctx, `SELECT step, state FROM run_snapshots WHERE run_id = ?`, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	state, err = decodeState[S](stateJSON)
	if err != nil {
		return state, 0, err
	}
	return state, step, nil
}

// SaveCheckpoint upserts a labelled snapshot.
func (m *MySQLStore[S]) SaveCheckpoint(ctx context.Context, label string, state S, step int) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO run_checkpoints (label, step, state)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			step = VALUES(step),
			state = VALUES(state)
	`
	if _, err := m.db.ExecContext(ctx, query, label, step, stateJSON); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint stored under label.
func (m *MySQLStore[S]) LoadCheckpoint(ctx context.Context, label string) (state S, step int, err error) {
	if err := m.checkOpen(); err != nil {
		return state, 0, err
	}
	var stateJSON []byte
	err = m.db.QueryRowContext(ctx, `SELECT step, state FROM run_checkpoints WHERE label = ?`, label).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	state, err = decodeState[S](stateJSON)
	if err != nil {
		return state, 0, err
	}
	return state, step, nil
}

// Close closes the connection pool. Calling Close more than once is a
// no-op.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.db.Stats()
}

// DeleteRun removes the snapshot of a run. Missing runs are not an error.
func (m *MySQLStore[S]) DeleteRun(ctx context.Context, runID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM run_snapshots WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
