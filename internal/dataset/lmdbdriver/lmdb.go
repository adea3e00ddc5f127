// Package lmdbdriver is a dataset driver backed by a read-only LMDB
// environment holding msgpack-encoded (image, label) items, decoded,
// random-cropped and resized to a fixed 224x224 tensor on read.
package lmdbdriver

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"strconv"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/image/draw"

	"github.com/anthropic-labs/joader/internal/arena"
	"github.com/anthropic-labs/joader/internal/dataset"
)

// outputSize is the fixed edge length every decoded image is cropped and
// resized to before being written into the arena.
const outputSize = 224

// Dataset reads (image, label) pairs out of a single unnamed LMDB
// database, keyed by the stringified item index, and decodes each image
// to a fixed-size tensor on read.
type Dataset struct {
	id   uint32
	env  *lmdb.Env
	dbi  lmdb.DBI
	n    int
	memo *dataset.Memo
}

// rawItem mirrors the msgpack array [image_map, label] the original
// writer produces; image_map carries the encoded bytes under "data".
type rawItem struct {
	_msgpack struct{} `msgpack:",as_array"`
	Image    struct {
		Data []byte `msgpack:"data"`
	}
	Label uint32
}

// Open attaches to the LMDB environment at path in read-only, no-lock,
// no-subdir mode, mirroring the original's environment flags, and treats
// it as holding n sequentially-keyed items.
func Open(id uint32, path string, n int) (*Dataset, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("lmdbdriver: new env: %w", err)
	}

	flags := uint(lmdb.NoSubdir | lmdb.Readonly | lmdb.NoMemInit | lmdb.NoLock | lmdb.NoSync)
	if err := env.Open(path, flags, 0o600); err != nil {
		return nil, fmt.Errorf("lmdbdriver: open %s: %w", path, err)
	}

	var dbi lmdb.DBI
	err = env.View(func(txn *lmdb.Txn) error {
		d, err := txn.OpenRoot(0)
		dbi = d
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lmdbdriver: open root db: %w", err)
	}

	return &Dataset{id: id, env: env, dbi: dbi, n: n, memo: dataset.NewMemo()}, nil
}

func (d *Dataset) ID() uint32 { return d.id }

func (d *Dataset) Indices(cond *dataset.Condition) ([]uint32, error) {
	var out []uint32
	for i := 0; i < d.n; i++ {
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

		raw, err := d.rawItemBytes(id, index)
		if err != nil {
			return dataset.Result{}, err
		}
		payload, err := decodeTensor(raw)
		if err != nil {
			return dataset.Result{}, fmt.Errorf("lmdbdriver: decode index %d: %w", index, err)
		}

		buf, slot := c.Allocate(uint64(len(payload)), entry.RefCount, id, entry.ReaderCount)
		copy(buf, payload)
		return dataset.Result{Index: index, Slot: slot}, nil
	})
}

// rawItemBytes returns the item's raw msgpack bytes, from the memo
// cache when present, from LMDB otherwise. Only the undecoded bytes are
// memoized: decodeTensor's random crop must still vary per read, so the
// final tensor is never memoized.
func (d *Dataset) rawItemBytes(id arena.DataID, index uint32) ([]byte, error) {
	if raw, ok := d.memo.Get(id); ok {
		return raw, nil
	}
	raw, err := d.getItem(index)
	if err != nil {
		return nil, err
	}
	d.memo.Put(id, raw)
	return raw, nil
}

func (d *Dataset) getItem(index uint32) ([]byte, error) {
	key := []byte(strconv.Itoa(int(index)))
	var out []byte
	err := d.env.View(func(txn *lmdb.Txn) error {
		v, err := txn.Get(d.dbi, key)
		if err != nil {
			return err
		}
		// txn.Get's slice is only valid for the lifetime of this
		// transaction; copy it out before View returns.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lmdbdriver: get %s: %w", key, err)
	}
	return out, nil
}

// decodeTensor unmarshals the msgpack (image, label) tuple, decodes and
// random-crops the image to a square, resizes it to outputSize x
// outputSize, and serializes label (big-endian uint32) followed by the
// RGBA pixel bytes.
func decodeTensor(raw []byte) ([]byte, error) {
	var item rawItem
	if err := msgpack.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("msgpack unmarshal: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(item.Image.Data))
	if err != nil {
		return nil, fmt.Errorf("image decode: %w", err)
	}

	cropped := randomSquareCrop(img)
	dst := image.NewRGBA(image.Rect(0, 0, outputSize, outputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)

	out := make([]byte, 4+len(dst.Pix))
	binary.BigEndian.PutUint32(out, item.Label)
	copy(out[4:], dst.Pix)
	return out, nil
}

// randomSquareCrop picks a random square subregion of img whose edge is
// the shorter of its two dimensions, matching the original's
// random-crop-then-resize pipeline.
func randomSquareCrop(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}

	maxX := b.Dx() - side
	maxY := b.Dy() - side
	x0 := b.Min.X
	if maxX > 0 {
		x0 += rand.IntN(maxX + 1)
	}
	y0 := b.Min.Y
	if maxY > 0 {
		y0 += rand.IntN(maxY + 1)
	}

	rect := image.Rect(x0, y0, x0+side, y0+side)
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// Close releases the LMDB environment's resources.
func (d *Dataset) Close() error {
	d.env.Close()
	return nil
}
