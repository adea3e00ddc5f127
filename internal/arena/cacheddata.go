package arena

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const emptySlot = -1

type dataSlotEntry struct {
	id       DataID
	slot     int // emptySlot when the bucket is unoccupied
	occupied bool
}

// cachedData is a bidirectional map between a DataID and the descriptor
// slot currently caching it. The DataID -> slot direction is a hand-rolled
// open-addressing hash table (linear probing, power-of-two sizing, grown
// at 80% load), since DataIDs are sparse 64-bit values; the slot -> DataID
// direction is a plain dense slice indexed directly by slot number.
type cachedData struct {
	table    []dataSlotEntry
	occupied int
	slotToID []DataID
	hasData  []bool
}

func newCachedData(slotCount int) *cachedData {
	return &cachedData{
		table:    make([]dataSlotEntry, 8),
		slotToID: make([]DataID, slotCount),
		hasData:  make([]bool, slotCount),
	}
}

func hashDataID(id DataID) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return xxhash.Sum64(b[:])
}

func (c *cachedData) add(slot int, id DataID) {
	c.insert(id, slot)
	c.slotToID[slot] = id
	c.hasData[slot] = true
}

func (c *cachedData) remove(slot int) {
	if !c.hasData[slot] {
		return
	}
	id := c.slotToID[slot]
	c.hasData[slot] = false
	c.delete(id)
}

func (c *cachedData) contains(id DataID) (slot int, ok bool) {
	mask := uint64(len(c.table) - 1)
	for probe := hashDataID(id) & mask; ; probe = (probe + 1) & mask {
		e := &c.table[probe]
		if !e.occupied {
			return 0, false
		}
		if e.id == id {
			return e.slot, true
		}
	}
}

func (c *cachedData) insert(id DataID, slot int) {
	mask := uint64(len(c.table) - 1)
	for probe := hashDataID(id) & mask; ; probe = (probe + 1) & mask {
		e := &c.table[probe]
		if !e.occupied {
			*e = dataSlotEntry{id: id, slot: slot, occupied: true}
			c.occupied++
			if c.occupied >= len(c.table)-len(c.table)/5 { // 80% threshold
				c.grow()
			}
			return
		}
		if e.id == id {
			e.slot = slot
			return
		}
	}
}

// delete removes id via backward-shift, so later linear-probe lookups
// along this id's probe chain are not broken by a tombstone.
func (c *cachedData) delete(id DataID) {
	mask := uint64(len(c.table) - 1)
	probe := hashDataID(id) & mask
	for {
		e := &c.table[probe]
		if !e.occupied {
			return
		}
		if e.id == id {
			break
		}
		probe = (probe + 1) & mask
	}
	hole := probe
	c.table[hole] = dataSlotEntry{}
	c.occupied--
	probe = (hole + 1) & mask
	for c.table[probe].occupied {
		e := c.table[probe]
		idealProbe := hashDataID(e.id) & mask
		if probeDistance(idealProbe, hole, mask) <= probeDistance(idealProbe, probe, mask) {
			c.table[hole] = e
			c.table[probe] = dataSlotEntry{}
			hole = probe
		}
		probe = (probe + 1) & mask
	}
}

func probeDistance(ideal, actual, mask uint64) uint64 {
	return (actual - ideal) & mask
}

func (c *cachedData) grow() {
	old := c.table
	c.table = make([]dataSlotEntry, len(old)*2)
	c.occupied = 0
	for _, e := range old {
		if e.occupied {
			c.insert(e.id, e.slot)
		}
	}
}
