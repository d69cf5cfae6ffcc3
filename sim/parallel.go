package sim

import "sync"

// parallelThreshold is the minimum individual count to use parallel
// processing. Below this, single-threaded is faster due to goroutine
// overhead.
const parallelThreshold = 64

// parallelFor splits [0, n) into one contiguous chunk per worker and runs fn
// on each. fn receives the worker index so it can use per-worker scratch.
// The returned error is the one from the lowest chunk, and chunks stop at
// their first error, so it is always the failure with the lowest index no
// matter how many workers ran.
func parallelFor(workers, n int, fn func(worker, start, end int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 1 || n < parallelThreshold {
		return fn(0, 0, n)
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := min(start+chunk, n)
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			errs[w] = fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
