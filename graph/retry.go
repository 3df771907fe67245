package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime/debug"
	"time"
)

// RetryPolicy defines automatic retry behavior for failed node attempts.
//
// When an attempt fails, RetryOn classifies the error. Retryable errors are
// retried after an exponential backoff delay until MaxAttempts is reached:
//
//	delay(n) = min(InitialInterval * BackoffFactor^(n-1), MaxInterval)
//
// where n is the retry number starting at 1. With Jitter enabled the delay
// is scaled by a uniform factor in [0.5, 1.5). Jitter draws from a random
// source derived from the engine seed, so runs with the same seed wait the
// same amounts.
//
// Example:
//
//	policy := graph.RetryPolicy{
//	    MaxAttempts:     5,
//	    InitialInterval: time.Second,
//	    BackoffFactor:   2,
//	    MaxInterval:     10 * time.Second,
//	    RetryOn:         graph.RetryOnErrors(ErrRateLimited),
//	}
//	// Delays: 1s, 2s, 4s, 8s.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// BackoffFactor multiplies the delay after every retry. Must be >= 1;
	// zero means 2.
	BackoffFactor float64

	// MaxInterval caps the delay. Zero means no cap.
	MaxInterval time.Duration

	// Jitter randomizes each delay to avoid synchronized retries.
	Jitter bool

	// RetryOn reports whether an error is retryable. If nil, every error is
	// retried except panics and cancellation of the invocation.
	RetryOn func(error) bool
}

// DefaultRetryPolicy returns a policy of 3 attempts starting at 500ms,
// doubling up to 128s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2,
		MaxInterval:     128 * time.Second,
		Jitter:          true,
	}
}

// Validate checks the policy constraints:
//   - MaxAttempts must be >= 1
//   - BackoffFactor must be 0 (default) or >= 1
//   - intervals must not be negative
//   - if both intervals are set, MaxInterval must be >= InitialInterval
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.BackoffFactor != 0 && p.BackoffFactor < 1, math.IsNaN(p.BackoffFactor):
		return fmt.Errorf("retry policy: backoff factor must be >= 1, got %v", p.BackoffFactor)
	case p.InitialInterval < 0 || p.MaxInterval < 0:
		return errors.New("retry policy: intervals must not be negative")
	case p.MaxInterval > 0 && p.InitialInterval > 0 && p.MaxInterval < p.InitialInterval:
		return fmt.Errorf("retry policy: max interval %v is below initial interval %v", p.MaxInterval, p.InitialInterval)
	}
	return nil
}

// Delay returns the backoff before retry number n (1-based), without jitter.
//
// Example delays with InitialInterval=1s, BackoffFactor=2, MaxInterval=10s:
// 1s, 2s, 4s, 8s, 10s, 10s.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.InitialInterval <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor == 0 {
		factor = 2
	}
	d := float64(p.InitialInterval) * math.Pow(factor, float64(n-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// jittered scales d by a uniform factor in [0.5, 1.5).
func jittered(d time.Duration, rng *rand.Rand) time.Duration {
	if d <= 0 || rng == nil {
		return d
	}
	scaled := float64(d) * (0.5 + rng.Float64())
	if scaled >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, ErrNodePanic) {
		return false
	}
	if p.RetryOn == nil {
		return true
	}
	return p.RetryOn(err)
}

// RetryOnErrors returns a RetryOn predicate matching any of the targets
// with errors.Is.
func RetryOnErrors(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// RetryOnType returns a RetryOn predicate matching errors of type T
// anywhere in the chain, using errors.As.
//
// Example:
//
//	graph.RetryPolicy{MaxAttempts: 5, RetryOn: graph.RetryOnType[*net.OpError]()}
func RetryOnType[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// attemptOutcome is the result of running a node under its retry policy.
type attemptOutcome struct {
	result    NodeResult
	attempts  int
	retryable bool
	err       error

	// cancelled is set when the invocation context ended the loop.
	cancelled bool
}

// retrier runs one work item under a retry policy.
type retrier struct {
	policy  RetryPolicy
	timeout time.Duration
	rng     *rand.Rand

	// onRetry observes each scheduled retry before its delay.
	onRetry func(attempt int, err error, delay time.Duration)
}

// run executes fn until it succeeds, fails with a non-retryable error, or
// exhausts the policy. Cancellation of ctx stops the loop immediately,
// including during a backoff sleep.
func (r retrier) run(ctx context.Context, fn func(ctx context.Context, attempt int) NodeResult) attemptOutcome {
	maxAttempts := r.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var out attemptOutcome
	for attempt := 1; ; attempt++ {
		out.attempts = attempt
		if err := ctx.Err(); err != nil {
			out.err, out.cancelled = err, true
			return out
		}

		res, err := r.attempt(ctx, attempt, fn)
		if err == nil {
			out.result, out.err, out.retryable = res, nil, false
			return out
		}
		if ctx.Err() != nil {
			out.err, out.cancelled = ctx.Err(), true
			return out
		}

		out.err = err
		out.retryable = r.policy.retryable(err)
		if !out.retryable || attempt >= maxAttempts {
			return out
		}

		delay := r.policy.Delay(attempt)
		if r.policy.Jitter {
			delay = jittered(delay, r.rng)
		}
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}
		if err := sleepContext(ctx, delay); err != nil {
			out.err, out.cancelled = err, true
			return out
		}
	}
}

// attempt runs a single attempt with the per-attempt timeout and converts
// panics into errors.
func (r retrier) attempt(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) NodeResult) (res NodeResult, err error) {
	attemptCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			res = NodeResult{}
			err = fmt.Errorf("%w: %v\n%s", ErrNodePanic, p, debug.Stack())
		}
	}()

	res = fn(attemptCtx, attempt)
	if r.timeout > 0 && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return NodeResult{}, fmt.Errorf("%w after %v: %w", ErrNodeTimeout, r.timeout, context.DeadlineExceeded)
	}
	return res, res.Err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
