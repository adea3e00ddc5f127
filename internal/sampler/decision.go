package sampler

import (
	"math/rand/v2"

	"github.com/anthropic-labs/joader/internal/vset"
)

// decision is a single outstanding sampling choice produced by decide:
// either "draw from this leaf and make up the difference against its
// sibling" (node is a left child) or "draw from this shared ancestor,
// weighted by how many other jobs could have been chosen instead" (node
// came from the accumulated node_set).
type decision struct {
	node         *node
	jobs         jobSet
	compensation jobSet
	item         uint32
}

func newDecision(n *node, jobs jobSet) *decision {
	return &decision{node: n, jobs: jobs}
}

// execute draws a value from the decision's node. Jobs in mask are
// first dropped from d.jobs, so they never receive this turn's draw; the
// compensation set — the node's own jobs that are NOT part of the
// (now-masked) decision — automatically includes them, so complement
// hands the item straight back to their node instead of losing it.
func (d *decision) execute(mask jobSet) uint32 {
	item := d.node.vset.RandomPick()

	if len(mask) > 0 {
		live := make(jobSet, len(d.jobs))
		for id := range d.jobs {
			if _, masked := mask[id]; !masked {
				live[id] = struct{}{}
			}
		}
		d.jobs = live
	}

	comp := make(jobSet)
	for id := range d.node.jobs {
		if _, in := d.jobs[id]; !in {
			comp[id] = struct{}{}
		}
	}
	d.compensation = comp
	d.item = item
	return item
}

// complement re-inserts the drawn item into whichever subtree owns
// exactly the compensation set, rebalancing along the way.
func (d *decision) complement() {
	if len(d.compensation) == 0 {
		return
	}
	d.node.complement(d.compensation, d.item)
}

// weightedChoice picks an index into weights with probability
// proportional to its weight, or -1 if every weight is zero.
func weightedChoice(weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return -1
	}
	r := rand.IntN(total)
	cum := 0
	for i, w := range weights {
		cum += w
		if r < cum {
			return i
		}
	}
	return len(weights) - 1
}

// chooseIntersection picks one node from nodeSet, weighted by length,
// and records it as a shared-intersection decision over jobs.
func chooseIntersection(decisions *[]*decision, jobs jobSet, nodeSet []*node) {
	weights := make([]int, len(nodeSet))
	for i, nd := range nodeSet {
		weights[i] = nd.length()
	}
	idx := weightedChoice(weights)
	if idx < 0 {
		return
	}
	*decisions = append(*decisions, newDecision(nodeSet[idx], jobs))
}

// decide walks the tree top-down, accumulating ancestor nodes with
// nonzero length into nodeSet, until it reaches a node whose own job set
// exactly matches the jobs still outstanding in jobs. At that point it
// greedily peels jobs off the front of jobs (each with probability
// lastCommon/remainingLen of being accepted) either as a single
// diff-taker decision against n's left child, or — if none were accepted
// — as a shared decision against one of the accumulated ancestors,
// weighted by length.
func (n *node) decide(jobs *[]jobEntry, decisions *[]*decision, nodeSet []*node) {
	if len(*jobs) == 0 {
		return
	}
	if n.length() != 0 {
		nodeSet = append(nodeSet, n)
	}

	remaining := make(jobSet, len(*jobs))
	for _, e := range *jobs {
		remaining[e.id] = struct{}{}
	}
	if !jobsEqual(n.jobs, remaining) {
		if n.right != nil {
			n.right.decide(jobs, decisions, nodeSet)
		}
		return
	}

	common := 0
	for _, nd := range nodeSet {
		common += nd.length()
	}
	lastCommon := common
	decided := make(jobSet)
	consumed := 0
	for _, e := range *jobs {
		if rand.Float64() >= float64(lastCommon)/float64(e.remainingLen) {
			break
		}
		lastCommon = e.remainingLen
		decided[e.id] = struct{}{}
		consumed++
	}
	*jobs = (*jobs)[consumed:]

	if len(decided) == 0 {
		single := jobSet{(*jobs)[0].id: struct{}{}}
		*jobs = (*jobs)[1:]
		*decisions = append(*decisions, newDecision(n.left, single))
	} else {
		chooseIntersection(decisions, decided, nodeSet)
	}

	if len(*jobs) > 0 {
		for i := range *jobs {
			(*jobs)[i].remainingLen -= common
		}
		if n.right != nil {
			n.right.decide(jobs, decisions, nil)
		}
	}
}

func (n *node) complement(comp jobSet, item uint32) bool {
	if len(comp) == 0 {
		return false
	}
	if isSubsetOf(n.jobs, comp) {
		n.vset.Set(item)
		for id := range n.jobs {
			delete(comp, id)
		}
	}
	res := false
	if n.left == nil || n.right == nil {
		return res
	}
	l, r := n.left, n.right
	if l.complement(comp, item) {
		res = true
	}
	if r.complement(comp, item) {
		res = true
	}
	if l.minTaskLength() > r.minTaskLength() {
		res = true
		switch {
		case r.left != nil && r.right != nil:
			rl := r.left
			lidSet := l.jobs
			lvs := l.vset
			l.vset = vset.Union(r.vset, rl.vset)
			l.jobs = rl.jobs
			remake(r, lvs, lidSet)
		case r.left == nil && r.right == nil:
			n.left, n.right = n.right, n.left
		default:
			panic("sampler: inconsistent node shape during rebalance")
		}
	}
	return res
}
