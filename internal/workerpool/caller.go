package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"flavorwise/internal/cache"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 60 * time.Second

// ErrTimeout marks a call that exceeded the caller's hard timeout.
// Errors carrying it also match context.DeadlineExceeded.
var ErrTimeout = errors.New("provider call timed out")

// Caller runs memoized calls on a pool with a hard per-call timeout.
type Caller struct {
	pool    *Pool
	cache   *cache.Cache
	timeout time.Duration
}

// NewCaller builds a Caller. A nil cache disables memoization.
func NewCaller(pool *Pool, c *cache.Cache, timeout time.Duration) *Caller {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Caller{pool: pool, cache: c, timeout: timeout}
}

// Pool returns the underlying pool.
func (c *Caller) Pool() *Pool {
	return c.pool
}

// Timeout returns the per-call timeout.
func (c *Caller) Timeout() time.Duration {
	return c.timeout
}

// Submit schedules fn on the caller's pool. A fresh cache entry for key is
// returned without invoking fn; otherwise fn runs under the hard timeout and
// a successful result is written back to the cache.
func Submit[T any](ctx context.Context, c *Caller, key cache.CallKey, fn func(context.Context) (T, error)) *Future[T] {
	return Go(ctx, c.pool, func(ctx context.Context) (T, error) {
		return memoized(ctx, c, key, fn)
	})
}

// Call submits fn and waits for its result.
func Call[T any](ctx context.Context, c *Caller, key cache.CallKey, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, c, key, fn).Wait(ctx)
}

func memoized[T any](ctx context.Context, c *Caller, key cache.CallKey, fn func(context.Context) (T, error)) (T, error) {
	if c.cache != nil {
		value, found, fresh, err := c.cache.Lookup(ctx, key)
		switch {
		case err != nil:
			slog.Warn("cache read failed, calling provider", "function", key.Function, "key", key.ID(), "error", err)
		case found && fresh:
			var out T
			if err := cache.Decode(value, &out); err == nil {
				return out, nil
			}
			slog.Warn("cached value could not be decoded, calling provider", "function", key.Function, "key", key.ID())
		}
	}

	out, err := withTimeout(ctx, c.pool.calls, c.timeout, fn)
	if err != nil {
		return out, err
	}

	if c.cache != nil {
		payload, err := cache.Encode(out)
		if err != nil {
			slog.Warn("result not cached", "function", key.Function, "error", err)
			return out, nil
		}
		// Failures are logged and counted by the cache.
		_ = c.cache.Put(ctx, key, payload)
	}
	return out, nil
}

type result[T any] struct {
	value T
	err   error
}

// withTimeout returns when fn does or when the timeout elapses, whichever
// is first. fn keeps running in the background if it ignores its context,
// holding its slot in sem until it returns.
func withTimeout[T any](ctx context.Context, sem *semaphore.Weighted, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result[T]{err: fmt.Errorf("provider call panicked: %v", r)}
			}
		}()
		if err := sem.Acquire(callCtx, 1); err != nil {
			ch <- result[T]{err: err}
			return
		}
		defer sem.Release(1)
		v, err := fn(callCtx)
		ch <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return r.value, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, r.err)
		}
		return r.value, r.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, context.DeadlineExceeded)
	}
}
