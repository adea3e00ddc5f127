package dataset

import (
	"encoding/binary"
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"

	"github.com/anthropic-labs/joader/internal/arena"
)

// memoCapacity bounds how many decoded payloads Memo keeps alive past
// their arena slot's eviction.
const memoCapacity = 4096

var memoSeed = maphash.MakeSeed()

func hashDataID(id arena.DataID) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return maphash.Bytes(memoSeed, b[:])
}

// Memo is an optional in-process decoded-payload cache sitting in front
// of a driver's read-and-decode path, keyed by DataID. The arena evicts
// a slot once every subscribed job has acknowledged it; Memo keeps
// recently popular decodes around a little longer so a second job
// drawing the same index soon after doesn't repeat the decode work.
type Memo struct {
	cache *tinylfu.T[arena.DataID, []byte]
}

// NewMemo creates a Memo with room for memoCapacity decoded payloads.
func NewMemo() *Memo {
	return &Memo{
		cache: tinylfu.New[arena.DataID, []byte](memoCapacity, memoCapacity*10, hashDataID),
	}
}

// Get returns the memoized payload for id, if still present.
func (m *Memo) Get(id arena.DataID) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	return m.cache.Get(id)
}

// Put memoizes payload under id, possibly evicting a less popular entry.
func (m *Memo) Put(id arena.DataID, payload []byte) {
	if m == nil {
		return
	}
	m.cache.Add(id, payload)
}
