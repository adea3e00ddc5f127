package arena

import "encoding/binary"

// descriptorSize is the on-disk layout of one descriptor: a 4-byte
// length, an 8-byte data-segment offset, and an 8-byte reader mask.
const descriptorSize = 20

const (
	lenOff  = 0
	lenLen  = 4
	offOff  = 4
	offLen  = 8
	maskOff = 12
	maskLen = 8
)

// descriptor is a typed view over a descriptorSize-byte slice of the
// mmap'd region. It never copies; every accessor reads or writes through
// to the shared memory directly.
type descriptor []byte

func (d descriptor) length() uint32 {
	return binary.BigEndian.Uint32(d[lenOff : lenOff+lenLen])
}

func (d descriptor) offset() uint64 {
	return binary.BigEndian.Uint64(d[offOff : offOff+offLen])
}

// maskCleared reports whether every armed byte of the reader mask has
// been zeroed by its consumer, i.e. the slot is safe to reclaim.
func (d descriptor) maskCleared() bool {
	return binary.BigEndian.Uint64(d[maskOff:maskOff+maskLen]) == 0
}

// arm sets the first readerCount bytes of the mask to 0xFF (awaiting
// acknowledgement) and the rest to 0x00.
func (d descriptor) arm(readerCount int) {
	if readerCount < 0 || readerCount > maskLen {
		panic("arena: reader count out of range")
	}
	var mask [maskLen]byte
	for i := 0; i < readerCount; i++ {
		mask[i] = 0xFF
	}
	copy(d[maskOff:maskOff+maskLen], mask[:])
}

// ack clears the byte belonging to the consumer at the given 1-indexed
// offset, acknowledging that consumer has finished reading the slot.
func (d descriptor) ack(consumerOffset int) {
	if consumerOffset < 1 || consumerOffset > maskLen {
		panic("arena: consumer offset out of range")
	}
	d[maskOff+consumerOffset-1] = 0
}

// publish writes the descriptor's length and offset, then arms the
// reader mask last — the mask write is the publication edge a consumer
// polls on.
func (d descriptor) publish(length uint32, offset uint64, readerCount int) {
	binary.BigEndian.PutUint32(d[lenOff:lenOff+lenLen], length)
	binary.BigEndian.PutUint64(d[offOff:offOff+offLen], offset)
	d.arm(readerCount)
}
