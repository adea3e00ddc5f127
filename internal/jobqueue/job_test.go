package jobqueue

import (
	"context"
	"testing"
	"time"
)

func TestPushThenNextRoundTrips(t *testing.T) {
	j := New(1)
	j.AddPending()
	if got := j.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	ctx := context.Background()
	want := Payload{Bytes: []byte{1, 2, 3}, Type: DataImage}
	if err := j.Push(ctx, want); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got := j.Pending(); got != 0 {
		t.Fatalf("Pending() after push = %d, want 0", got)
	}

	got, err := j.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(got.Bytes) != string(want.Bytes) || got.Type != want.Type {
		t.Fatalf("Next() = %+v, want %+v", got, want)
	}
}

func TestCapacityReflectsQueuedItems(t *testing.T) {
	j := New(1)
	if got := j.Capacity(); got != capacity {
		t.Fatalf("Capacity() = %d, want %d", got, capacity)
	}
	_ = j.Push(context.Background(), Payload{})
	if got := j.Capacity(); got != capacity-1 {
		t.Fatalf("Capacity() after one push = %d, want %d", got, capacity-1)
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	j := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := j.Next(ctx); err == nil {
		t.Fatalf("expected Next to time out on an empty queue")
	}
}
