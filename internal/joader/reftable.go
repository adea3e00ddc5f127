package joader

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

type refEntry struct {
	index    uint32
	count    int
	occupied bool
}

// refTable is an open-addressing map from dataset index to the number of
// jobs currently referencing it, hashed the same way
// internal/arena/cacheddata.go hashes a DataID: every index in a
// dataset is inserted once up front and never removed, so unlike
// cachedData this table never needs a delete path.
type refTable struct {
	entries []refEntry
	filled  int
}

func newRefTable(indices []uint32) *refTable {
	size := 8
	for size < len(indices)*5/4+1 {
		size *= 2
	}
	t := &refTable{entries: make([]refEntry, size)}
	for _, idx := range indices {
		t.insert(idx, 0)
	}
	return t
}

func hashIndex(idx uint32) uint64 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], idx)
	return xxhash.Sum64(b[:])
}

func (t *refTable) probe(idx uint32) int {
	mask := uint64(len(t.entries) - 1)
	p := hashIndex(idx) & mask
	for {
		e := &t.entries[p]
		if !e.occupied || e.index == idx {
			return int(p)
		}
		p = (p + 1) & mask
	}
}

func (t *refTable) insert(idx uint32, count int) {
	p := t.probe(idx)
	e := &t.entries[p]
	if !e.occupied {
		*e = refEntry{index: idx, count: count, occupied: true}
		t.filled++
		if t.filled >= len(t.entries)-len(t.entries)/5 {
			t.grow()
		}
		return
	}
	e.count = count
}

func (t *refTable) add(idx uint32, delta int) {
	p := t.probe(idx)
	if t.entries[p].occupied {
		t.entries[p].count += delta
		return
	}
	t.insert(idx, delta)
}

func (t *refTable) get(idx uint32) int {
	p := t.probe(idx)
	if t.entries[p].occupied {
		return t.entries[p].count
	}
	return 0
}

func (t *refTable) grow() {
	old := t.entries
	t.entries = make([]refEntry, len(old)*2)
	t.filled = 0
	for _, e := range old {
		if e.occupied {
			t.insert(e.index, e.count)
		}
	}
}
