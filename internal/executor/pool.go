package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool runs fn for every item with at most workers calls in flight. Once fn
// fails or ctx is done, no further items are started; calls already running
// are left to finish on their own, so a child process is never killed in the
// middle of writing an artifact. The first error is returned.
func Pool[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) error {
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	var stopped atomic.Bool
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() { firstErr = err })
		stopped.Store(true)
	}

	for _, item := range items {
		if stopped.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if err := fn(ctx, item); err != nil {
				fail(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return firstErr
}
