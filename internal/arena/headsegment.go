package arena

// maxReaderCount bounds the number of simultaneous readers a single slot
// can serve, matching the 8-byte reader mask (one bit of granularity per
// byte) and the 64-bucket GC ref-table.
const maxReaderCount = 64

type slotState uint8

const (
	slotFree slotState = iota
	slotAllocated
)

// headSegment owns a fixed number of fixed-size descriptors carved out of
// the front of the mmap'd region, plus a side table bucketing allocated
// slots by their reader count for garbage collection.
type headSegment struct {
	descriptors []descriptor
	states      []slotState
	refTable    [maxReaderCount][]int // slot indices, bucketed by reader count
}

func newHeadSegment(region []byte, count int) *headSegment {
	hs := &headSegment{
		descriptors: make([]descriptor, count),
		states:      make([]slotState, count),
	}
	for i := 0; i < count; i++ {
		hs.descriptors[i] = descriptor(region[i*descriptorSize : (i+1)*descriptorSize])
	}
	return hs
}

func (hs *headSegment) size() uint64 {
	return uint64(len(hs.descriptors)) * descriptorSize
}

func (hs *headSegment) markUnread(slot, readerCount int) {
	hs.descriptors[slot].arm(readerCount)
}

// allocate reserves the first free descriptor and records it in the
// reader-count bucket it will be garbage collected from.
func (hs *headSegment) allocate(readerCount int) (slot int, ok bool) {
	if readerCount >= maxReaderCount {
		panic("arena: reader count exceeds maximum")
	}
	for i, st := range hs.states {
		if st == slotFree {
			hs.states[i] = slotAllocated
			hs.refTable[readerCount] = append(hs.refTable[readerCount], i)
			return i, true
		}
	}
	return 0, false
}

// free walks the ref-table buckets from the lowest reader count upward,
// skipping empty ones. Each non-empty bucket visited is drained: slots
// whose reader mask has fully cleared are freed, the rest are re-queued
// into the same bucket. As soon as any bucket's drain frees at least one
// slot, free stops and returns what it freed, leaving higher buckets
// untouched for the next call.
func (hs *headSegment) free() (freedSlots []int) {
	for rc := range hs.refTable {
		bucket := hs.refTable[rc]
		if len(bucket) == 0 {
			continue
		}
		hs.refTable[rc] = nil
		var freed []int
		for _, slot := range bucket {
			if hs.descriptors[slot].maskCleared() {
				hs.states[slot] = slotFree
				freed = append(freed, slot)
			} else {
				hs.refTable[rc] = append(hs.refTable[rc], slot)
			}
		}
		if len(freed) != 0 {
			return freed
		}
	}
	return nil
}
