// Package limiter runs a batch of operations with bounded parallelism.
//
// At most limit operations run at once; the next one is admitted as soon as a
// running one completes. Results come back in input order regardless of
// completion order, and every operation's error is captured in its own slot
// so one failure never cancels the rest.
//
//	results := limiter.Run(ctx, 4, ops)
//	for i, r := range results {
//	    if r.Err != nil { ... }
//	}
package limiter

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Op is a unit of work admitted by the limiter.
type Op[T any] func(ctx context.Context) (T, error)

// Result holds one operation's outcome, at the operation's input index.
type Result[T any] struct {
	Value T
	Err   error
}

// Run executes ops with at most limit running concurrently and blocks until
// all of them have finished. A limit <= 0 admits every op at once.
//
// Operations that have not started when ctx is canceled are not run; their
// slot records ctx.Err(). Operations already running receive ctx and are
// expected to honour it.
func Run[T any](ctx context.Context, limit int, ops []Op[T]) []Result[T] {
	results := make([]Result[T], len(ops))
	if len(ops) == 0 {
		return results
	}
	if limit <= 0 || limit > len(ops) {
		limit = len(ops)
	}

	// The group's own error is never returned: errors stay per slot.
	var g errgroup.Group
	g.SetLimit(limit)

	for i, op := range ops {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := op(ctx)
			results[i] = Result[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Values splits results into values and the first error encountered, in
// input order. Convenient when any failure should fail the batch.
func Values[T any](results []Result[T]) ([]T, error) {
	values := make([]T, len(results))
	var first error
	for i, r := range results {
		values[i] = r.Value
		if r.Err != nil && first == nil {
			first = r.Err
		}
	}
	return values, first
}
