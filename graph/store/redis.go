package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store[S].
//
// It uses a simple key structure:
//
//	<prefix>run:<runID>        => JSON snapshot of the latest step
//	<prefix>checkpoint:<label> => JSON checkpoint
//
// Snapshots can expire after a TTL, which keeps Redis from accumulating
// snapshots of finished runs. Checkpoints never expire.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})
//	st := store.NewRedisStore[graph.State](client, "stategraph:", time.Hour)
type RedisStore[S any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore on client. prefix namespaces the keys
// ("stategraph:" when empty); ttl bounds the lifetime of run snapshots,
// zero meaning no expiry.
func NewRedisStore[S any](client *redis.Client, prefix string, ttl time.Duration) *RedisStore[S] {
	if prefix == "" {
		prefix = "stategraph:"
	}
	return &RedisStore[S]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore[S]) keyRun(runID string) string {
	return r.prefix + "run:" + runID
}

func (r *RedisStore[S]) keyCheckpoint(label string) string {
	return r.prefix + "checkpoint:" + label
}

type redisRecord struct {
	Step  int             `json:"step"`
	Nodes []string        `json:"nodes,omitempty"`
	State json.RawMessage `json:"state"`
	Saved time.Time       `json:"saved"`
}

func (r *RedisStore[S]) put(ctx context.Context, key string, rec redisRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return translateRedisErr(err)
	}
	return nil
}

func (r *RedisStore[S]) get(ctx context.Context, key string) (state S, step int, err error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return state, 0, translateRedisErr(err)
	}
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return state, 0, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	state, err = decodeState[S](rec.State)
	if err != nil {
		return state, 0, err
	}
	return state, rec.Step, nil
}

// SaveStep replaces the run's snapshot and refreshes its TTL.
func (r *RedisStore[S]) SaveStep(ctx context.Context, runID string, step int, nodes []string, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	return r.put(ctx, r.keyRun(runID), redisRecord{Step: step, Nodes: nodes, State: data, Saved: time.Now().UTC()}, r.ttl)
}

// LoadLatest returns the run's snapshot.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	return r.get(ctx, r.keyRun(runID))
}

// SaveCheckpoint stores state under label.
func (r *RedisStore[S]) SaveCheckpoint(ctx context.Context, label string, state S, step int) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	return r.put(ctx, r.keyCheckpoint(label), redisRecord{Step: step, State: data, Saved: time.Now().UTC()}, 0)
}

// LoadCheckpoint returns the checkpoint stored under label.
func (r *RedisStore[S]) LoadCheckpoint(ctx context.Context, label string) (S, int, error) {
	return r.get(ctx, r.keyCheckpoint(label))
}

// Close closes the underlying client.
func (r *RedisStore[S]) Close() error {
	return translateRedisErr(r.client.Close())
}

func translateRedisErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, redis.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}
