// Package worker runs blocking platform calls off the caller's goroutine,
// bounded in number and time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"voltrack/internal/volume"
)

const (
	DefaultTimeout = 10 * time.Second
)

// Pool bounds concurrent blocking calls.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// New creates a pool running at most size tasks at once, each limited to
// timeout. Non-positive values pick defaults.
func New(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), timeout: timeout}
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn on a pool goroutine. Cancellation, timeout and panics surface as
// TaskJoin errors; an error returned by fn is passed through unchanged.
func Do[T any](ctx context.Context, p *Pool, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, volume.TaskJoin(op, err)
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: volume.TaskJoin(op, fmt.Errorf("panic: %v", r))}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		// The goroutine keeps its semaphore slot until fn returns.
		return zero, volume.TaskJoin(op, ctx.Err())
	}
}

// DoDefault is Do for probes: any failure is logged and def returned.
func DoDefault[T any](ctx context.Context, p *Pool, op string, def T, fn func(ctx context.Context) (T, error)) T {
	v, err := Do(ctx, p, op, fn)
	if err != nil {
		ev := log.Ctx(ctx).Debug()
		if errors.Is(err, volume.ErrTaskJoin) {
			ev = log.Ctx(ctx).Warn()
		}
		ev.Err(err).Str("op", op).Msg("probe failed, using default")
		return def
	}
	return v
}
