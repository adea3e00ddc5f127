package arena

import "github.com/anthropic-labs/joader/internal/freelist"

// dataSegment manages the variable-length byte region following the head
// segment, backed by a free-list allocator.
type dataSegment struct {
	region []byte // the full data-segment slice, local offsets start at 0
	base   uint64 // absolute offset of region[0] within the mmap'd file
	free   *freelist.List
}

func newDataSegment(region []byte, base uint64) *dataSegment {
	ds := &dataSegment{region: region, base: base, free: freelist.New()}
	ds.free.Insert(base, uint64(len(region)))
	return ds
}

// allocate reserves length bytes and returns the absolute file offset of
// the reservation along with a slice viewing those bytes.
func (ds *dataSegment) allocate(length uint64) (off uint64, buf []byte, ok bool) {
	off, ok = ds.free.Get(length)
	if !ok {
		return 0, nil, false
	}
	localOff := off - ds.base
	return off, ds.region[localOff : localOff+length], true
}

func (ds *dataSegment) release(off, length uint64) {
	ds.free.Insert(off, length)
}
