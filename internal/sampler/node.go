package sampler

import "github.com/anthropic-labs/joader/internal/vset"

// JobID identifies one sampling job registered with a Tree.
type JobID uint64

type jobSet map[JobID]struct{}

func newJobSet(ids ...JobID) jobSet {
	s := make(jobSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func unionJobs(a, b jobSet) jobSet {
	out := make(jobSet, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

func jobsEqual(a, b jobSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func isSubsetOf(a, b jobSet) bool {
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func anyJobID(s jobSet) JobID {
	for id := range s {
		return id
	}
	panic("sampler: node has no jobs")
}

// node is one node of the coalescing sampler tree. Every node's vset
// holds exactly the indices owned by all of jobs and no job outside it.
// Mutation is only ever done while the owning Tree's caller holds
// whatever lock serializes access to it (the joader's single mutex) —
// node is a plain mutable structure, not copy-on-write.
type node struct {
	vset        vset.Set
	jobs        jobSet
	left, right *node
}

func newLeaf(indices []uint32, job JobID) *node {
	vs := vset.New()
	for _, v := range indices {
		vs.Set(v)
	}
	return &node{vset: vs, jobs: newJobSet(job)}
}

func (n *node) length() int {
	return n.vset.Len()
}

// minTaskLength counts this node's own length plus its left child's
// length only — the right child is deliberately excluded, which is what
// keeps the right spine of the tree the "long" side.
func (n *node) minTaskLength() int {
	l := n.length()
	if n.left != nil {
		l += n.left.length()
	}
	return l
}

// intersectUpdate extracts the intersection of self and other's vsets
// into a new parent node, leaving self and other holding only their
// disjoint remainders.
func intersectUpdate(self, other *node) *node {
	i := vset.Intersect(self.vset, other.vset)
	jobs := unionJobs(self.jobs, other.jobs)
	self.vset = vset.Difference(self.vset, i)
	other.vset = vset.Difference(other.vset, i)
	return &node{vset: i, jobs: jobs}
}

// pushdown unions self's vset into both children and clears it, since
// self is about to stop owning any values directly.
func pushdown(n *node) {
	n.left.vset = vset.Union(n.left.vset, n.vset)
	n.right.vset = vset.Union(n.right.vset, n.vset)
	n.vset = vset.New()
}

// insert merges leaf into the subtree rooted at root, returning the new
// subtree root.
func insert(root, leaf *node) *node {
	fits := leaf.length() <= root.minTaskLength()
	p := intersectUpdate(root, leaf)
	switch {
	case fits:
		p.left, p.right = leaf, root
	case root.left == nil:
		p.left, p.right = root, leaf
	default:
		pushdown(root)
		p.left = root.left
		p.right = insert(root.right, leaf)
	}
	return p
}

// remove deletes job from the subtree rooted at n, returning the new
// subtree root (nil if n itself was discarded because job was its last
// owner).
func remove(n *node, job JobID) *node {
	delete(n.jobs, job)
	if len(n.jobs) == 0 {
		return nil
	}
	if n.left != nil {
		n.left = remove(n.left, job)
	}
	if n.right != nil {
		right := n.right
		if n.left == nil {
			n.vset = vset.Union(n.vset, right.vset)
			n.right = right.right
			n.left = right.left
		} else {
			n.right = remove(right, job)
		}
	}
	return n
}

// jobEntry is one (job, remaining draws this epoch) pair in the ordered
// job list a Tree maintains alongside its node structure.
type jobEntry struct {
	id           JobID
	remainingLen int
}

// collectJobOrder walks the right spine of the tree, emitting one entry
// per job: the representative id of each spine node's left child
// (always a singleton-job leaf by construction), ending with the
// terminal leaf's own id.
func (n *node) collectJobOrder(order *[]jobEntry, preLen int) {
	preLen += n.length()
	*order = append(*order, jobEntry{id: anyJobID(n.jobs), remainingLen: preLen})
	if n.right != nil {
		left := n.left
		*order = (*order)[:len(*order)-1]
		*order = append(*order, jobEntry{id: anyJobID(left.jobs), remainingLen: preLen + left.length()})
		n.right.collectJobOrder(order, preLen)
	}
}

// remake restructures n after a rebalance: n's left child (rl) takes on
// newVS/newJobs, n keeps whatever of its own vset doesn't belong to
// newVS, and n's right child absorbs the rest.
func remake(n *node, newVS vset.Set, newJobs jobSet) {
	l, r := n.left, n.right
	for id := range l.jobs {
		delete(n.jobs, id)
	}
	for id := range newJobs {
		n.jobs[id] = struct{}{}
	}
	diff := vset.Difference(n.vset, newVS)
	n.vset = vset.Intersect(n.vset, newVS)
	l.vset = vset.Difference(newVS, n.vset)
	l.jobs = newJobs
	r.vset = vset.Union(r.vset, diff)
}

func (n *node) jobValues(job JobID, out *[]uint32) {
	if _, ok := n.jobs[job]; !ok {
		return
	}
	*out = append(*out, n.vset.AsSlice()...)
	if n.left != nil {
		n.left.jobValues(job, out)
	}
	if n.right != nil {
		n.right.jobValues(job, out)
	}
}
