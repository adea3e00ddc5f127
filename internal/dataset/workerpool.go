package dataset

import (
	"context"
	"sync"
)

// DefaultWorkers is the pool size a driver's ReadBatch uses when it has
// no stronger reason to pick another number.
const DefaultWorkers = 32

// ReadFunc materializes one index into the arena and returns its slot.
type ReadFunc func(ctx context.Context, index uint32, entry BatchEntry) (Result, error)

// RunPool fans indices out across a fixed pool of workers, each invoking
// read for exactly one index, and collects every result. It stops
// scheduling new work (but lets in-flight reads finish) as soon as one
// read returns an error, returning that error.
//
// Generalizes the one-goroutine-per-open-file worker loop of
// internal/spinner to a fixed-size pool fed by a single shared job
// channel, since a dataset driver reads many small items rather than a
// handful of long-lived files.
func RunPool(ctx context.Context, workers int, batch map[uint32]BatchEntry, read ReadFunc) ([]Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(batch) {
		workers = len(batch)
	}
	if workers == 0 {
		return nil, nil
	}

	type job struct {
		index uint32
		entry BatchEntry
	}
	jobs := make(chan job, len(batch))
	for idx, entry := range batch {
		jobs <- job{index: idx, entry: entry}
	}
	close(jobs)

	results := make([]Result, 0, len(batch))
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := read(ctx, j.index, j.entry)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					results = append(results, res)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
