// Package joader schedules one dataset's reads across its subscribed
// jobs: each Joader owns a sampler tree and drives batches of shared
// reads through the dataset's driver into the arena, fanning the
// resulting slots out to every job that asked for them.
package joader

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/dataset"
	"github.com/anthropic-labs/joader/internal/jobqueue"
	"github.com/anthropic-labs/joader/internal/sampler"
)

// Joader owns one dataset's sampler tree and the jobs currently
// subscribed to it.
type Joader struct {
	driver    dataset.Driver
	tree      *sampler.Tree
	jobs      map[sampler.JobID]*jobqueue.Job
	refs      *refTable
	allIdx    []uint32
	empty     bool
	total     map[sampler.JobID]int
	delivered map[sampler.JobID]int
}

// New creates a Joader over driver, with no jobs subscribed yet.
func New(driver dataset.Driver) (*Joader, error) {
	indices, err := driver.Indices(nil)
	if err != nil {
		return nil, fmt.Errorf("joader: indices: %w", err)
	}
	return &Joader{
		driver:    driver,
		tree:      sampler.New(),
		jobs:      make(map[sampler.JobID]*jobqueue.Job),
		refs:      newRefTable(indices),
		allIdx:    indices,
		empty:     true,
		total:     make(map[sampler.JobID]int),
		delivered: make(map[sampler.JobID]int),
	}, nil
}

// DatasetID returns the id of the dataset this joader serves.
func (j *Joader) DatasetID() uint32 { return j.driver.ID() }

// AddJob filters the dataset's indices through cond, registers job as a
// subscriber to the resulting set, and bumps each matched index's
// reference count by one. It returns the number of indices job was
// subscribed to.
func (j *Joader) AddJob(job *jobqueue.Job, cond *dataset.Condition) (int, error) {
	indices, err := j.driver.Indices(cond)
	if err != nil {
		return 0, fmt.Errorf("joader: filter indices: %w", err)
	}

	id := sampler.JobID(job.ID)
	j.tree.Insert(id, indices)
	j.jobs[id] = job
	j.total[id] = len(indices)
	j.delivered[id] = 0
	for _, idx := range indices {
		j.refs.add(idx, 1)
	}
	j.empty = false
	return len(indices), nil
}

// DelJob removes job's sampler-tree entries and drops its reference
// count contribution to every index it owned.
func (j *Joader) DelJob(id uint64) {
	jobID := sampler.JobID(id)
	values := j.tree.JobValues(jobID)
	j.tree.Delete(jobID)
	for _, idx := range values {
		j.refs.add(idx, -1)
	}
	delete(j.jobs, jobID)
	delete(j.total, jobID)
	delete(j.delivered, jobID)
}

// Status reports how many of job's total subscribed indices have been
// delivered to its queue so far. ok is false if job is not (or no
// longer) subscribed to this joader.
func (j *Joader) Status(id uint64) (delivered, total int, ok bool) {
	jobID := sampler.JobID(id)
	total, ok = j.total[jobID]
	if !ok {
		return 0, 0, false
	}
	return j.delivered[jobID], total, true
}

// IsEmpty reports whether this joader has no jobs left, or its sampler
// tree has exhausted every job's draws for the current epoch.
func (j *Joader) IsEmpty() bool {
	return len(j.jobs) == 0 || j.empty
}

// backPressuredJobs returns the set of subscribed jobs with no queue
// capacity left to accept another promised payload, for use as Sample's
// skip mask: a back-pressured job's draw is deferred to a later turn by
// the sampler tree's own compensation logic, never dropped.
func (j *Joader) backPressuredJobs() map[sampler.JobID]struct{} {
	skip := make(map[sampler.JobID]struct{})
	for id, job := range j.jobs {
		if job.Capacity()-int(job.Pending()) <= 0 {
			skip[id] = struct{}{}
		}
	}
	return skip
}

// NextBatch accumulates sampler-tree turns until targetSize indices have
// been collected or the tree runs dry, masking out jobs with no queue
// capacity left for each turn so their draws are deferred rather than
// lost, then issues one driver read for the whole accumulated batch and
// pushes each resulting slot to every job that asked for it.
func (j *Joader) NextBatch(ctx context.Context, cache *arena.Cache, targetSize int) error {
	batch := make(map[uint32]dataset.BatchEntry)
	subscribers := make(map[uint32]map[sampler.JobID]struct{})

	for len(batch) < targetSize {
		turn := j.tree.Sample(j.backPressuredJobs())
		if len(turn) == 0 {
			if j.tree.IsEmpty() {
				j.empty = true
			}
			break
		}
		for idx, jobSet := range turn {
			refCount := j.refs.get(idx)
			if existing, ok := subscribers[idx]; ok {
				for id := range jobSet {
					existing[id] = struct{}{}
				}
			} else {
				existing = make(map[sampler.JobID]struct{}, len(jobSet))
				for id := range jobSet {
					existing[id] = struct{}{}
				}
				subscribers[idx] = existing
			}
			batch[idx] = dataset.BatchEntry{RefCount: refCount, ReaderCount: len(subscribers[idx])}
			for id := range jobSet {
				if job, ok := j.jobs[id]; ok {
					job.AddPending()
				}
			}
		}
	}

	if len(batch) == 0 {
		return nil
	}

	results, err := j.driver.ReadBatch(ctx, cache, batch)
	if err != nil {
		return fmt.Errorf("joader: read batch: %w", err)
	}

	for _, res := range results {
		payload := jobqueue.Payload{Bytes: cache.Slot(res.Slot), Type: jobqueue.DataUint}
		for id := range subscribers[res.Index] {
			job, ok := j.jobs[id]
			if !ok {
				continue
			}
			if err := job.Push(ctx, payload); err != nil {
				return fmt.Errorf("joader: push to job %d: %w", id, err)
			}
			j.delivered[id]++
		}
	}
	return nil
}

// Table holds every dataset's Joader, keyed by dataset id, alongside the
// shared arena they all read into.
type Table struct {
	mu      sync.Mutex
	cache   *arena.Cache
	joaders map[uint32]*Joader
}

// NewTable creates an empty Table over cache.
func NewTable(cache *arena.Cache) *Table {
	return &Table{cache: cache, joaders: make(map[uint32]*Joader)}
}

// Add registers a new Joader for driver's dataset, replacing any
// existing entry for the same id.
func (t *Table) Add(driver dataset.Driver) (*Joader, error) {
	j, err := New(driver)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.joaders[driver.ID()] = j
	t.mu.Unlock()
	return j, nil
}

// Del removes the joader for datasetID, if present.
func (t *Table) Del(datasetID uint32) {
	t.mu.Lock()
	delete(t.joaders, datasetID)
	t.mu.Unlock()
}

// GetMut returns the joader for datasetID, if present.
func (t *Table) GetMut(datasetID uint32) (*Joader, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.joaders[datasetID]
	return j, ok
}

// IsEmpty reports whether every registered joader is idle.
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.joaders {
		if !j.IsEmpty() {
			return false
		}
	}
	return true
}

// Next steps every non-idle joader through one NextBatch call of
// targetSize, returning the number of joaders that were actually
// stepped.
func (t *Table) Next(ctx context.Context, targetSize int) (int, error) {
	t.mu.Lock()
	joaders := make([]*Joader, 0, len(t.joaders))
	for _, j := range t.joaders {
		if !j.IsEmpty() {
			joaders = append(joaders, j)
		}
	}
	t.mu.Unlock()

	active := 0
	for _, j := range joaders {
		if err := j.NextBatch(ctx, t.cache, targetSize); err != nil {
			return active, err
		}
		active++
	}
	return active, nil
}
