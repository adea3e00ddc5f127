// Package fsdriver is a dataset driver backed by a directory tree: every
// matching file is one item, read whole into the arena, transparently
// decompressed if it carries a .xz suffix.
package fsdriver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bufra "github.com/avvmoto/buf-readerat"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/therootcompany/xz"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/dataset"
)

// Dataset reads items off disk, one file per index, matched against a
// doublestar glob rooted at Dir.
type Dataset struct {
	id    uint32
	root  string
	paths []string
}

// New builds a Dataset by globbing pattern (a doublestar pattern,
// relative to root) against the filesystem rooted at root.
func New(id uint32, root, pattern string) (*Dataset, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("fsdriver: glob %q: %w", pattern, err)
	}
	return &Dataset{id: id, root: root, paths: matches}, nil
}

func (d *Dataset) ID() uint32 { return d.id }

func (d *Dataset) Indices(cond *dataset.Condition) ([]uint32, error) {
	var out []uint32
	for i := range d.paths {
		ok, err := cond.Eval(strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, uint32(i))
		}
	}
	return out, nil
}

func (d *Dataset) ReadBatch(ctx context.Context, c *arena.Cache, batch map[uint32]dataset.BatchEntry) ([]dataset.Result, error) {
	return dataset.RunPool(ctx, dataset.DefaultWorkers, batch, func(_ context.Context, index uint32, entry dataset.BatchEntry) (dataset.Result, error) {
		id := dataset.DataID(d.id, index)
		if slot, ok := c.Contains(id); ok {
			c.MarkUnread(slot, entry.ReaderCount)
			return dataset.Result{Index: index, Slot: slot}, nil
		}

		payload, err := d.readItem(int(index))
		if err != nil {
			return dataset.Result{}, err
		}
		buf, slot := c.Allocate(uint64(len(payload)), entry.RefCount, id, entry.ReaderCount)
		copy(buf, payload)
		return dataset.Result{Index: index, Slot: slot}, nil
	})
}

func (d *Dataset) readItem(index int) ([]byte, error) {
	full := filepath.Join(d.root, d.paths[index])
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("fsdriver: open %s: %w", full, err)
	}
	defer f.Close()

	if !strings.HasSuffix(full, ".xz") {
		stat, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("fsdriver: stat %s: %w", full, err)
		}
		withBuffer := bufra.NewBufReaderAt(f, 4096)
		buf := make([]byte, stat.Size())
		if _, err := withBuffer.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("fsdriver: read %s: %w", full, err)
		}
		return buf, nil
	}

	r, err := xz.NewReader(f, xz.DefaultDictMax)
	if err != nil {
		return nil, fmt.Errorf("fsdriver: xz %s: %w", full, err)
	}
	return io.ReadAll(r)
}
