// Package dataset defines the driver interface and job filter expression
// shared by every concrete dataset backend (dummydriver, fsdriver,
// lmdbdriver).
package dataset

import (
	"context"
	"errors"

	"github.com/anthropic-labs/joader/internal/arena"
)

// ErrNotFound is returned when a requested dataset or index does not exist.
var ErrNotFound = errors.New("dataset: not found")

// ErrNonNumericKey is returned by Condition.Eval when an item's key
// cannot be parsed as an unsigned integer.
var ErrNonNumericKey = errors.New("dataset: key is not numeric")

// DataID packs a dataset id and an item index into the single id used
// as an arena.DataID cache key.
func DataID(datasetID, index uint32) arena.DataID {
	return arena.NewDataID(datasetID, index)
}

// BatchEntry describes one index a caller wants materialized into the
// arena: how many jobs currently reference it (its descriptor ref
// count) and how many independent readers should be armed on its mask.
type BatchEntry struct {
	RefCount    int
	ReaderCount int
}

// Result reports where one requested index ended up in the arena.
type Result struct {
	Index uint32
	Slot  int
}

// Driver is the read side of one dataset: enumerating and filtering its
// indices, and materializing a batch of them into the shared arena.
type Driver interface {
	// ID returns this dataset's id.
	ID() uint32
	// Indices returns every index matching cond (all indices if cond is nil).
	Indices(cond *Condition) ([]uint32, error)
	// ReadBatch ensures every index in batch is present in c, allocating
	// and filling a slot for any cache miss, and rearming the reader
	// mask for any cache hit. Order of the returned results is
	// unspecified.
	ReadBatch(ctx context.Context, c *arena.Cache, batch map[uint32]BatchEntry) ([]Result, error)
}
