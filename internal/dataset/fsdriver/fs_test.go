package fsdriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/dataset"
)

func openTestCache(t *testing.T) *arena.Cache {
	t.Helper()
	name := fmt.Sprintf("joader-fsdriver-test-%d", os.Getpid())
	c, err := arena.Open(name, 64*1024, 16)
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, fmt.Sprintf("item-%d.bin", i))
		if err := os.WriteFile(name, []byte{byte(i), byte(i), byte(i)}, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestIndicesMatchesGlob(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	ds, err := New(1, dir, "*.bin")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := ds.Indices(nil)
	if err != nil {
		t.Fatalf("Indices: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d indices, want 3", len(got))
	}
}

func TestReadBatchCachesPlainFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	ds, err := New(2, dir, "*.bin")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := openTestCache(t)

	batch := map[uint32]dataset.BatchEntry{
		0: {RefCount: 1, ReaderCount: 1},
		1: {RefCount: 1, ReaderCount: 1},
	}
	results, err := ds.ReadBatch(context.Background(), c, batch)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		payload := c.Slot(r.Slot)
		if len(payload) != 3 {
			t.Fatalf("index %d: got payload len %d, want 3", r.Index, len(payload))
		}
		for _, b := range payload {
			if b != byte(r.Index) {
				t.Fatalf("index %d: got byte %d, want %d", r.Index, b, r.Index)
			}
		}
	}

	// A second read of the same index should hit the cache rather than
	// re-opening the file.
	again, err := ds.ReadBatch(context.Background(), c, map[uint32]dataset.BatchEntry{0: {RefCount: 1, ReaderCount: 1}})
	if err != nil {
		t.Fatalf("ReadBatch (cached): %v", err)
	}
	if again[0].Slot != results[0].Slot {
		t.Fatalf("expected cached slot reuse")
	}
}

// compressed via `echo "hello joader" | xz -c`; therootcompany/xz only
// decodes, so the fixture is a precomputed stream rather than one this
// test writes itself.
var xzFixture = []byte{
	0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x04, 0xe6, 0xd6, 0xb4, 0x46,
	0x02, 0x00, 0x21, 0x01, 0x16, 0x00, 0x00, 0x00, 0x74, 0x2f, 0xe5, 0xa3,
	0x01, 0x00, 0x0c, 0x68, 0x65, 0x6c, 0x6c, 0x6f, 0x20, 0x6a, 0x6f, 0x61,
	0x64, 0x65, 0x72, 0x0a, 0x00, 0x00, 0x00, 0x00, 0x65, 0xae, 0x86, 0xae,
	0x22, 0xcf, 0xab, 0x41, 0x00, 0x01, 0x25, 0x0d, 0x71, 0x19, 0xc4, 0xb6,
	0x1f, 0xb6, 0xf3, 0x7d, 0x01, 0x00, 0x00, 0x00, 0x00, 0x04, 0x59, 0x5a,
}

func TestReadItemDecompressesXZSuffix(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "item-0.bin.xz")
	if err := os.WriteFile(name, xzFixture, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	want := []byte("hello joader\n")

	ds, err := New(3, dir, "*.xz")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := ds.readItem(0)
	if err != nil {
		t.Fatalf("readItem: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}
