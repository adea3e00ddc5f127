// Package sampler implements the coalescing sampler tree: a structure
// that lets many jobs, each owning a (possibly overlapping) set of
// dataset indices, share reads of the indices they have in common
// instead of each job re-reading them independently.
package sampler

// Tree holds every currently-registered job's index set, coalesced into
// a tree of intersection nodes, plus the ordered (job, remaining draws
// this epoch) list used to drive one sampling turn.
type Tree struct {
	root  *node
	order []jobEntry
}

// New returns an empty sampler tree.
func New() *Tree {
	return &Tree{}
}

// Insert registers job with the given set of indices it owns. Calling
// Insert again for an already-registered job is not supported; use
// Delete first.
func (t *Tree) Insert(job JobID, indices []uint32) {
	leaf := newLeaf(indices, job)
	if t.root == nil {
		t.root = leaf
	} else {
		t.root = insert(t.root, leaf)
	}
	t.rebuildOrder()
}

// Delete removes job and every index it uniquely owned from the tree.
func (t *Tree) Delete(job JobID) {
	if t.root != nil {
		t.root = remove(t.root, job)
	}
	t.rebuildOrder()
}

func (t *Tree) rebuildOrder() {
	t.order = t.order[:0]
	if t.root != nil {
		t.root.collectJobOrder(&t.order, 0)
	}
}

// Sample runs one sampling turn, excluding every job in skip, and
// returning for each drawn index the set of jobs it was drawn on behalf
// of. skip lets a caller back-pressure a job for this turn only: a
// skipped job's already-decided draws are handed back to its node via
// complement rather than discarded, so nothing it would have received is
// ever lost, only delayed to a later turn. Every non-skipped job with
// draws remaining this epoch is decremented by one, and any job that has
// now exhausted its full set is dropped from the tree.
func (t *Tree) Sample(skip map[JobID]struct{}) map[uint32]map[JobID]struct{} {
	res := make(map[uint32]map[JobID]struct{})
	if t.root == nil {
		return res
	}

	active := make([]jobEntry, 0, len(t.order))
	for _, e := range t.order {
		if e.remainingLen != 0 {
			active = append(active, e)
		}
	}

	var decisions []*decision
	t.root.decide(&active, &decisions, nil)

	for _, d := range decisions {
		item := d.execute(skip)
		if len(d.jobs) == 0 {
			continue
		}
		bucket := res[item]
		if bucket == nil {
			bucket = make(map[JobID]struct{})
			res[item] = bucket
		}
		for id := range d.jobs {
			bucket[id] = struct{}{}
		}
	}
	for _, d := range decisions {
		d.complement()
	}

	for i := range t.order {
		if _, masked := skip[t.order[i].id]; !masked && t.order[i].remainingLen != 0 {
			t.order[i].remainingLen--
		}
	}

	t.clearExhausted()
	return res
}

// clearExhausted drops every job whose remaining draw count has reached
// zero from both the tree and the ordered job list.
func (t *Tree) clearExhausted() []JobID {
	var del []JobID
	kept := t.order[:0:0]
	for _, e := range t.order {
		if e.remainingLen == 0 {
			del = append(del, e.id)
		} else {
			kept = append(kept, e)
		}
	}
	for _, id := range del {
		if t.root != nil {
			t.root = remove(t.root, id)
		}
	}
	t.order = kept
	return del
}

// ClearLoader is the exported form of clearExhausted, for callers that
// want to force-drop exhausted jobs outside of Sample.
func (t *Tree) ClearLoader() []JobID {
	return t.clearExhausted()
}

// JobValues returns every index currently owned (directly or via a
// shared ancestor) by job, for inspection and tests.
func (t *Tree) JobValues(job JobID) []uint32 {
	var out []uint32
	if t.root != nil {
		t.root.jobValues(job, &out)
	}
	return out
}

// IsEmpty reports whether every registered job has exhausted its draws
// for the current epoch.
func (t *Tree) IsEmpty() bool {
	for _, e := range t.order {
		if e.remainingLen != 0 {
			return false
		}
	}
	return true
}
