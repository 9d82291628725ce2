package orchestrator

import (
	"runtime"
	"sync"
)

// SplitIntoBatches is a generic function that divides a slice of items
// into batches of the specified size
func SplitIntoBatches[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		return nil
	}

	if len(items) == 0 {
		return [][]T{}
	}

	numBatches := (len(items) + batchSize - 1) / batchSize
	batches := make([][]T, 0, numBatches)

	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		batches = append(batches, items[i:end])
	}

	return batches
}

// RunConcurrently applies operation to every item with at most
// maxConcurrency goroutines and returns once all of them finished
func RunConcurrently[T any](items []T, operation func(T), maxConcurrency int) {
	if len(items) == 0 {
		return
	}
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}
	maxConcurrency = min(maxConcurrency, len(items))

	var wg sync.WaitGroup
	workChan := make(chan T, min(len(items), 1000))

	wg.Add(maxConcurrency)
	for i := 0; i < maxConcurrency; i++ {
		go func() {
			defer wg.Done()
			for item := range workChan {
				operation(item)
			}
		}()
	}

	for _, item := range items {
		workChan <- item
	}
	close(workChan)

	wg.Wait()
}
