package convert

import (
	"context"
	"sync"
	"sync/atomic"
)

type indexed[T any] struct {
	i int
	v T
}

// runPool calls work for every index in [0, n) on a fixed set of workers and
// returns the results in index order. Indices not dispatched before ctx is
// done get cancelled(i, ctx.Err()) instead. progress is called from the
// workers with the number of completed items, which only grows.
func runPool[T any](
	ctx context.Context,
	workers, n int,
	work func(ctx context.Context, i int) T,
	cancelled func(i int, err error) T,
	progress func(completed, total int),
) []T {
	results := make([]T, n)
	if n == 0 {
		return results
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	resultsChan := make(chan indexed[T], n)

	var wg sync.WaitGroup
	completed := atomic.Int64{}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resultsChan <- indexed[T]{i: i, v: work(ctx, i)}
				done := completed.Add(1)
				if progress != nil {
					progress(int(done), n)
				}
			}
		}()
	}

	dispatched := 0
dispatch:
	for ; dispatched < n; dispatched++ {
		// select alone may still pick a ready worker after cancellation
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- dispatched:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	wg.Wait()
	close(resultsChan)

	for r := range resultsChan {
		results[r.i] = r.v
	}
	for i := dispatched; i < n; i++ {
		results[i] = cancelled(i, ctx.Err())
	}
	return results
}
