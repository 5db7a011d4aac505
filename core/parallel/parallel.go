package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides the specified total number (items) according to the number
// of CPU cores, and executes the specified function (fn) in parallel for each
// range (start, end).
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeWithWorkers(items, runtime.NumCPU(), fn)
}

// ParallelizeWithWorkers runs fn over [0, items) split across at most maxWorkers
// goroutines and waits for all of them (join barrier). A worker count of zero or
// less falls back to sequential execution.
func ParallelizeWithWorkers(items, maxWorkers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if maxWorkers <= 1 {
		fn(0, items)
		return
	}

	numWorkers := maxWorkers
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}

		// Skip if there's no range to handle
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	// Wait for all workers to finish processing
	wg.Wait()
}

// ForEach runs fn once per index on a pool of at most maxWorkers goroutines and
// waits for every call to return. It is the unit-of-work form used by the
// candidate trainer: one index per algorithm, one failure never cancels siblings.
func ForEach(items, maxWorkers int, fn func(i int)) {
	ParallelizeWithWorkers(items, maxWorkers, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
}

// ParallelizeWithThreshold performs parallelization only when the number of items
// exceeds the threshold. If below threshold, normal sequential processing is performed.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}

	Parallelize(items, fn)
}
