package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// States are kept JSON-encoded, so a loaded state never aliases the saved
// one and decodes exactly as it would from the database-backed stores.
// Data is lost when the process exits.
//
// Example:
//
//	st := store.NewMemStore[graph.State]()
//	compiled, _ := g.Compile(graph.WithStore(st))
type MemStore[S any] struct {
	mu          sync.RWMutex
	latest      map[string]memRecord // runID -> snapshot
	checkpoints map[string]memRecord // label -> checkpoint
	closed      bool
}

type memRecord struct {
	Step  int             `json:"step"`
	Nodes []string        `json:"nodes,omitempty"`
	State json.RawMessage `json:"state"`
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		latest:      make(map[string]memRecord),
		checkpoints: make(map[string]memRecord),
	}
}

// SaveStep replaces the run's snapshot.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodes []string, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.latest[runID] = memRecord{Step: step, Nodes: append([]string(nil), nodes...), State: data}
	return nil
}

// LoadLatest returns the run's snapshot.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	rec, ok := m.latest[runID]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return state, 0, ErrClosed
	}
	if !ok {
		return state, 0, ErrNotFound
	}
	state, err = decodeState[S](rec.State)
	if err != nil {
		return state, 0, err
	}
	return state, rec.Step, nil
}

// SaveCheckpoint stores state under label, overwriting an existing label.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, label string, state S, step int) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.checkpoints[label] = memRecord{Step: step, State: data}
	return nil
}

// LoadCheckpoint returns the checkpoint stored under label.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, label string) (state S, step int, err error) {
	m.mu.RLock()
	rec, ok := m.checkpoints[label]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return state, 0, ErrClosed
	}
	if !ok {
		return state, 0, ErrNotFound
	}
	state, err = decodeState[S](rec.State)
	if err != nil {
		return state, 0, err
	}
	return state, rec.Step, nil
}

// Runs returns the number of runs with a snapshot.
func (m *MemStore[S]) Runs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.latest)
}

// Close marks the store closed and drops its contents.
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.latest = make(map[string]memRecord)
	m.checkpoints = make(map[string]memRecord)
	return nil
}

type memDump struct {
	Latest      map[string]memRecord `json:"latest"`
	Checkpoints map[string]memRecord `json:"checkpoints"`
}

// MarshalJSON serializes the store contents, for debugging or for seeding
// another MemStore.
func (m *MemStore[S]) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(memDump{Latest: m.latest, Checkpoints: m.checkpoints})
}

// UnmarshalJSON replaces the store contents with data produced by
// MarshalJSON.
func (m *MemStore[S]) UnmarshalJSON(data []byte) error {
	var dump memDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return err
	}
	if dump.Latest == nil {
		dump.Latest = make(map[string]memRecord)
	}
	if dump.Checkpoints == nil {
		dump.Checkpoints = make(map[string]memRecord)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = dump.Latest
	m.checkpoints = dump.Checkpoints
	return nil
}
