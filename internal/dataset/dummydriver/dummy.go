// Package dummydriver is a synthetic dataset driver used for tests and
// the end-to-end scenario of a fresh joaderd install: every item's
// payload is just its own index, big-endian encoded.
package dummydriver

import (
	"context"
	"encoding/binary"
	"strconv"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/dataset"
)

// Dataset is a dummy driver with a fixed number of synthetic items, each
// keyed by its own stringified index.
type Dataset struct {
	id   uint32
	keys []string
}

// New creates a dummy dataset of n synthetic items.
func New(id uint32, n int) *Dataset {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return &Dataset{id: id, keys: keys}
}

func (d *Dataset) ID() uint32 { return d.id }

func (d *Dataset) Indices(cond *dataset.Condition) ([]uint32, error) {
	var out []uint32
	for i, key := range d.keys {
		ok, err := cond.Eval(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, uint32(i))
		}
	}
	return out, nil
}

func (d *Dataset) ReadBatch(ctx context.Context, c *arena.Cache, batch map[uint32]dataset.BatchEntry) ([]dataset.Result, error) {
	return dataset.RunPool(ctx, dataset.DefaultWorkers, batch, func(_ context.Context, index uint32, entry dataset.BatchEntry) (dataset.Result, error) {
		id := dataset.DataID(d.id, index)
		if slot, ok := c.Contains(id); ok {
			c.MarkUnread(slot, entry.ReaderCount)
			return dataset.Result{Index: index, Slot: slot}, nil
		}
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, index)
		buf, slot := c.Allocate(uint64(len(payload)), entry.RefCount, id, entry.ReaderCount)
		copy(buf, payload)
		return dataset.Result{Index: index, Slot: slot}, nil
	})
}
