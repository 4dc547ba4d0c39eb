package pipeline

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avinpaint/metrics"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
)

// forEachFrame calls fn for every index in [0, count) using up to workers
// goroutines. fn must only touch the data of its own index. The first
// error stops the remaining work and is returned.
func forEachFrame(
	ctx context.Context,
	count int,
	workers int,
	fn func(ctx context.Context, idx int) error,
) error {
	if count == 0 {
		return ctx.Err()
	}
	workers = max(min(workers, count), 1)

	workCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var (
		next     atomic.Int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		observability.Go(workCtx, func(ctx context.Context) {
			defer wg.Done()
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()
			for {
				if ctx.Err() != nil {
					return
				}
				idx := int(next.Inc() - 1)
				if idx >= count {
					return
				}
				if err := fn(ctx, idx); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancelFn()
					})
					return
				}
			}
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return firstErr
}
