package arena

import (
	"fmt"
	"os"
	"testing"
)

func openTestCache(t *testing.T, headCount int, extraDataBytes uint64) *Cache {
	t.Helper()
	name := fmt.Sprintf("joader-test-%d", os.Getpid())
	capacity := uint64(headCount)*descriptorSize + extraDataBytes
	c, err := Open(name, capacity, headCount)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAllocateRoundTripsLengthAndPayload(t *testing.T) {
	c := openTestCache(t, 8, 1024)

	sizes := []struct {
		length  uint64
		refCnt  int
		idx     uint32
	}{
		{20, 0, 0},
		{27, 1, 1},
		{60, 2, 2},
		{20, 3, 3},
	}

	slots := make([]int, len(sizes))
	for i, s := range sizes {
		buf, slot := c.Allocate(s.length, s.refCnt, NewDataID(7, s.idx), 1)
		if uint64(len(buf)) != s.length {
			t.Fatalf("case %d: got len %d want %d", i, len(buf), s.length)
		}
		for j := range buf {
			buf[j] = 0x42
		}
		slots[i] = slot
	}

	for i, s := range sizes {
		payload := c.Slot(slots[i])
		if uint64(len(payload)) != s.length {
			t.Fatalf("case %d: slot length got %d want %d", i, len(payload), s.length)
		}
		for _, b := range payload {
			if b != 0x42 {
				t.Fatalf("case %d: payload corrupted", i)
			}
		}
	}
}

func TestContainsFindsCachedID(t *testing.T) {
	c := openTestCache(t, 4, 256)
	id := NewDataID(1, 5)
	_, slot := c.Allocate(16, 0, id, 1)

	got, ok := c.Contains(id)
	if !ok || got != slot {
		t.Fatalf("Contains: got (%d,%v) want (%d,true)", got, ok, slot)
	}
	if _, ok := c.Contains(NewDataID(1, 6)); ok {
		t.Fatalf("expected miss for uncached id")
	}
}

func TestGCFreesOnlyAfterAllReadersAck(t *testing.T) {
	c := openTestCache(t, 4, 256)
	id := NewDataID(2, 9)
	_, slot := c.Allocate(32, 0, id, 2)

	c.gc()
	if _, ok := c.Contains(id); !ok {
		t.Fatalf("slot should not be freed before any ack")
	}

	c.Ack(slot, 1)
	c.gc()
	if _, ok := c.Contains(id); !ok {
		t.Fatalf("slot should not be freed with one of two readers acked")
	}

	c.Ack(slot, 2)
	c.gc()
	if _, ok := c.Contains(id); ok {
		t.Fatalf("slot should be freed once all readers ack")
	}
}

// TestAllocateRetriesUntilGCFreesSpace exercises the retry-until-gc-frees-
// space path: a full arena, then a concurrent Ack that makes room, which
// Allocate's blocking retry loop should observe and use. Cache's lock is
// released between retry attempts specifically so a concurrent Ack like
// this one is never blocked out.
func TestAllocateRetriesUntilGCFreesSpace(t *testing.T) {
	origInterval := retryInterval
	retryInterval = 0
	defer func() { retryInterval = origInterval }()

	c := openTestCache(t, 2, 64)

	id1 := NewDataID(3, 1)
	_, slot1 := c.Allocate(64, 0, id1, 1)

	acked := make(chan struct{})
	go func() {
		<-acked
		c.Ack(slot1, 1)
	}()
	close(acked)

	// Give the ack goroutine a chance to run before the retry loop below
	// starts polling; Allocate itself still does the actual GC call.
	for i := 0; i < 1000; i++ {
		if _, ok := c.Contains(id1); !ok {
			break
		}
	}

	_, slot2 := c.Allocate(64, 0, NewDataID(3, 2), 1)
	if slot2 != slot1 {
		t.Fatalf("expected reclaimed slot %d to be reused, got %d", slot1, slot2)
	}
}
