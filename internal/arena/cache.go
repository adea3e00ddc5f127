// Package arena implements the shared-memory slab cache: a single
// mmap-backed MAP_SHARED region split into a fixed-count head segment of
// small descriptors and a variable-size data segment, with a reader-mask
// protocol that lets multiple independent consumer processes share one
// cached payload without copying it.
package arena

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DataID identifies one cached item: the high 32 bits are a dataset id,
// the low 32 bits are an index within that dataset.
type DataID uint64

// NewDataID packs a dataset id and an index into a single DataID.
func NewDataID(datasetID, index uint32) DataID {
	return DataID(uint64(datasetID)<<32 | uint64(index))
}

// ErrFull is never returned to callers of Allocate: exhaustion is
// resolved internally by garbage collecting and retrying. It exists so
// internal retry loops can be exercised directly in tests.
var ErrFull = errors.New("arena: no space available")

var retryInterval = time.Millisecond

// Cache is the shared-memory arena: a head segment of fixed-size
// descriptors and a data segment of free-list-managed byte ranges,
// addressed by a single mmap'd region. Every exported method takes an
// internal mutex, the same way the original wraps its bare Cache type in
// an Arc<Mutex<Cache>> before sharing it across concurrent readers —
// here that wrapper is just a field instead of a separate handle type.
type Cache struct {
	mu sync.Mutex

	shmPath string
	region  []byte
	head    *headSegment
	data    *dataSegment
	cached  *cachedData
}

// shmDir is where POSIX shared-memory objects live on Linux; there is no
// shm_open(3) wrapper in golang.org/x/sys/unix (it is a glibc veneer over
// open(2) against this directory, not a distinct syscall), so Open talks
// to /dev/shm directly with plain open/ftruncate/mmap, the same approach
// taken by raw-syscall mmap caches in the wild.
const shmDir = "/dev/shm/"

// Open creates (or attaches to) a POSIX shared-memory object named
// shmName, sized to capacity bytes, lays out headCount descriptors at
// its front, and maps it MAP_SHARED into this process.
func Open(shmName string, capacity uint64, headCount int) (*Cache, error) {
	shmPath := shmDir + shmName
	fd, err := unix.Open(shmPath, unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		return nil, fmt.Errorf("arena: open %s: %w", shmPath, err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(capacity)); err != nil {
		return nil, fmt.Errorf("arena: ftruncate %s: %w", shmPath, err)
	}

	region, err := unix.Mmap(fd, 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %s: %w", shmPath, err)
	}

	hs := newHeadSegment(region, headCount)
	headBytes := hs.size()
	ds := newDataSegment(region[headBytes:], headBytes)

	return &Cache{
		shmPath: shmPath,
		region:  region,
		head:    hs,
		data:    ds,
		cached:  newCachedData(headCount),
	}, nil
}

// Contains reports whether id is currently cached, returning its slot.
func (c *Cache) Contains(id DataID) (slot int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached.contains(id)
}

// MarkUnread rearms a cached slot's reader mask for readerCount fresh
// consumers, without moving or recopying its payload.
func (c *Cache) MarkUnread(slot int, readerCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.markUnread(slot, readerCount)
}

// Ack acknowledges that the consumer at the given 1-indexed offset has
// finished reading the slot's payload.
func (c *Cache) Ack(slot int, consumerOffset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.descriptors[slot].ack(consumerOffset)
}

// Slot returns the absolute byte range of slot's payload within the
// mapped region, for a caller that already knows the slot index (e.g. a
// consumer that received it over the wire).
func (c *Cache) Slot(slot int) []byte {
	c.mu.Lock()
	d := c.head.descriptors[slot]
	off := d.offset()
	length := d.length()
	c.mu.Unlock()
	return c.region[off : off+uint64(length)]
}

// Allocate reserves a length-byte payload slot for id, writes its
// descriptor (length, offset, and an armed reader mask for readerCount
// consumers), and returns a writable view of the payload bytes plus the
// slot index. If the arena is full, Allocate runs garbage collection and
// retries, sleeping briefly between attempts, with no overall timeout —
// it blocks the calling worker, never the scheduler goroutine that calls
// it indirectly through a dataset driver's own worker pool. The lock is
// released during each retry's sleep so that other in-process callers
// (Ack, another driver worker) are never blocked behind a full arena.
func (c *Cache) Allocate(length uint64, refCount int, id DataID, readerCount int) (buf []byte, slot int) {
	off, payload := c.allocateData(length)
	slotIdx := c.allocateHead(refCount)

	c.mu.Lock()
	c.cached.add(slotIdx, id)
	c.head.descriptors[slotIdx].publish(uint32(length), off, readerCount)
	c.mu.Unlock()

	return payload, slotIdx
}

func (c *Cache) allocateData(length uint64) (off uint64, buf []byte) {
	for {
		c.mu.Lock()
		off, buf, ok := c.data.allocate(length)
		if !ok {
			c.gcLocked()
			off, buf, ok = c.data.allocate(length)
		}
		c.mu.Unlock()
		if ok {
			return off, buf
		}
		time.Sleep(retryInterval)
	}
}

func (c *Cache) allocateHead(refCount int) int {
	for {
		c.mu.Lock()
		slot, ok := c.head.allocate(refCount)
		if !ok {
			c.gcLocked()
			slot, ok = c.head.allocate(refCount)
		}
		c.mu.Unlock()
		if ok {
			return slot
		}
		time.Sleep(retryInterval)
	}
}

// gc reclaims every descriptor in the first non-empty, fully-acked
// reader-count bucket (see headSegment.free), returning their backing
// bytes and cache-index entries.
func (c *Cache) gc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gcLocked()
}

func (c *Cache) gcLocked() {
	freed := c.head.free()
	for _, slot := range freed {
		d := c.head.descriptors[slot]
		off, length := d.offset(), uint64(d.length())
		c.cached.remove(slot)
		c.data.release(off, length)
	}
	if len(freed) > 0 {
		slog.Debug("arena gc", "freed_slots", len(freed))
	}
}

// Close unmaps the region and unlinks the shared-memory object. It
// should be called once by the process that owns the arena, typically
// from a signal handler.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := unix.Munmap(c.region); err != nil {
		return fmt.Errorf("arena: munmap: %w", err)
	}
	if err := unix.Unlink(c.shmPath); err != nil {
		return fmt.Errorf("arena: unlink %s: %w", c.shmPath, err)
	}
	return nil
}
