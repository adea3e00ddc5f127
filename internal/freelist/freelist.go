// Package freelist manages a set of disjoint free byte extents within a
// fixed-size region, coalescing adjacent extents on insert and serving
// first-fit allocation requests.
package freelist

import "container/list"

type zone struct {
	start, end uint64
}

// List is a free list over a byte range, indexed by both start and end
// offset so that newly freed extents can be coalesced with their
// neighbors in constant time.
type List struct {
	order   list.List // of *zone, in insertion order
	byStart map[uint64]*list.Element
	byEnd   map[uint64]*list.Element
}

// New returns an empty free list.
func New() *List {
	return &List{
		byStart: make(map[uint64]*list.Element),
		byEnd:   make(map[uint64]*list.Element),
	}
}

// Insert returns the byte range [off, off+length) to the free list,
// merging with any free extent that starts where this one ends or ends
// where this one starts.
func (l *List) Insert(off, length uint64) {
	if length == 0 {
		return
	}
	start, end := off, off+length

	if e, ok := l.byEnd[start]; ok {
		start = e.Value.(*zone).start
		l.remove(e)
	}
	if e, ok := l.byStart[end]; ok {
		end = e.Value.(*zone).end
		l.remove(e)
	}

	z := &zone{start: start, end: end}
	e := l.order.PushBack(z)
	l.byStart[start] = e
	l.byEnd[end] = e
}

func (l *List) remove(e *list.Element) {
	z := e.Value.(*zone)
	delete(l.byStart, z.start)
	delete(l.byEnd, z.end)
	l.order.Remove(e)
}

// Get removes and returns the offset of a free extent of at least
// requestedLen bytes, by first-fit over the free list's iteration order.
// Any remainder is reinserted. Reports false if no extent is large enough.
func (l *List) Get(requestedLen uint64) (off uint64, ok bool) {
	for e := l.order.Front(); e != nil; e = e.Next() {
		z := e.Value.(*zone)
		zlen := z.end - z.start
		if zlen >= requestedLen {
			start := z.start
			l.remove(e)
			if rem := zlen - requestedLen; rem > 0 {
				l.Insert(start+requestedLen, rem)
			}
			return start, true
		}
	}
	return 0, false
}
