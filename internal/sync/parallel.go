package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
)

// ParallelResult holds the result of a parallel operation.
type ParallelResult[R any] struct {
	Value R
	Err   error
}

// ParallelCollect processes items in parallel with the specified number of workers.
// Results are returned in input order: out[i] belongs to items[i]. It cancels
// remaining work on the first error and returns the first non-context error;
// items skipped after cancellation carry the context error.
//
// The onProgress callback is called after each successful item is processed.
func ParallelCollect[T any, R any](
	ctx context.Context,
	items []T,
	workers int,
	process func(ctx context.Context, item T) (R, error),
	onProgress func(done int64, total int64),
) ([]ParallelResult[R], error) {
	if len(items) == 0 {
		return nil, nil
	}

	workers = normalizeWorkers(workers, len(items))
	total := int64(len(items))

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(items))
	out := make([]ParallelResult[R], len(items))
	var done int64

	var wg gosync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := workerCtx.Err(); err != nil {
					out[idx] = ParallelResult[R]{Err: err}
					continue
				}
				value, err := process(workerCtx, items[idx])
				if err != nil {
					out[idx] = ParallelResult[R]{Err: err}
					cancel()
					continue
				}
				n := atomic.AddInt64(&done, 1)
				if onProgress != nil {
					onProgress(n, total)
				}
				out[idx] = ParallelResult[R]{Value: value}
			}
		}()
	}

	for idx := range items {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	var firstErr error
	var firstNonCancelErr error
	for _, res := range out {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			if firstNonCancelErr == nil && !errors.Is(res.Err, context.Canceled) {
				firstNonCancelErr = res.Err
			}
		}
	}

	// Prefer non-cancel errors for reporting
	if firstNonCancelErr != nil {
		return out, firstNonCancelErr
	}
	return out, firstErr
}

// Values unwraps results that are known to carry no error.
func Values[R any](results []ParallelResult[R]) []R {
	out := make([]R, 0, len(results))
	for _, res := range results {
		out = append(out, res.Value)
	}
	return out
}

// normalizeWorkers ensures worker count is between 1 and item count.
func normalizeWorkers(workers, itemCount int) int {
	if workers < 1 {
		workers = 1
	}
	if workers > itemCount {
		workers = itemCount
	}
	return workers
}
