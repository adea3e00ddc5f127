// Package idgen hands out monotonically increasing dataset and job ids.
package idgen

import "sync/atomic"

// Generator issues dataset ids and job ids from two independent
// counters, both starting at 1 (0 is reserved to mean "unset").
type Generator struct {
	datasetID atomic.Uint64
	jobID     atomic.Uint64
}

// New returns a Generator whose counters start at zero, so the first id
// each method returns is 1.
func New() *Generator {
	return &Generator{}
}

// NextDatasetID returns the next unused dataset id.
func (g *Generator) NextDatasetID() uint64 {
	return g.datasetID.Add(1)
}

// NextJobID returns the next unused job id.
func (g *Generator) NextJobID() uint64 {
	return g.jobID.Add(1)
}
