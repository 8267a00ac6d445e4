// Package workerpool runs provider lookups on fixed-size worker pools and
// memoizes their results in the cache store.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"flavorwise/internal/observability"
)

// Task outcomes recorded in flavorwise_pool_tasks_total.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomePanic   = "panic"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a fixed set of worker goroutines fed by a task channel.
// It is safe for concurrent use.
type Pool struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	// calls caps running provider calls at the worker count, including
	// calls a worker has stopped waiting for after a timeout.
	calls *semaphore.Weighted

	// mu guards closed and the send side of tasks.
	mu     sync.RWMutex
	closed bool
}

// New starts a pool with the given number of workers. The name labels the
// pool's metrics and log lines.
func New(name string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		name:  name,
		tasks: make(chan func(), workers),
		calls: semaphore.NewWeighted(int64(workers)),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Name returns the pool's label.
func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		observability.PoolInflight.WithLabelValues(p.name).Inc()
		task()
		observability.PoolInflight.WithLabelValues(p.name).Dec()
	}
}

// enqueue blocks until a worker slot in the queue is free, ctx is done or
// the pool is closed.
func (p *Pool) enqueue(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued and running tasks to finish.
// Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.complete(*new(T), err)
	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Abandoning the wait
// does not cancel the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn on a pool worker. A panic in fn fails only the returned future.
func Go[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	task := func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker pool task panicked", "pool", p.name, "panic", r, "stack", string(debug.Stack()))
				observability.PoolTasks.WithLabelValues(p.name, outcomePanic).Inc()
				f.complete(*new(T), fmt.Errorf("task panicked: %v", r))
				return
			}
			observability.PoolTasks.WithLabelValues(p.name, outcome(err)).Inc()
			f.complete(value, err)
		}()
		value, err = fn(ctx)
	}

	if err := p.enqueue(ctx, task); err != nil {
		return failedFuture[T](err)
	}
	return f
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	default:
		return outcomeError
	}
}
