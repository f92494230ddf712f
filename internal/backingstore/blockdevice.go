package backingstore

import (
	"fmt"
	"os"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// BlockDevice backs an LU with a raw block device node. Allocate is a no-op:
// block devices have a fixed size set outside this process.
type BlockDevice struct {
	f *os.File
}

// OpenBlockDevice opens path, an existing device node, for use as a backing
// store.
func OpenBlockDevice(path string, readOnly bool) (*BlockDevice, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open block device %q: %w: %w", path, err, istgterr.ErrBackingStore)
	}
	return &BlockDevice{f: f}, nil
}

func (b *BlockDevice) Pread(buf []byte, off int64) (int, error) {
	n, err := b.f.ReadAt(buf, off)
	if err != nil {
		return n, fmt.Errorf("pread: %w: %w", err, istgterr.ErrBackingStore)
	}
	return n, nil
}

func (b *BlockDevice) Pwrite(buf []byte, off int64) (int, error) {
	n, err := b.f.WriteAt(buf, off)
	if err != nil {
		return n, fmt.Errorf("pwrite: %w: %w", err, istgterr.ErrBackingStore)
	}
	return n, nil
}

func (b *BlockDevice) Sync(_, _ int64) error {
	if err := b.f.Sync(); err != nil {
		return fmt.Errorf("sync: %w: %w", err, istgterr.ErrBackingStore)
	}
	return nil
}

// Allocate is a no-op: a block device's size is fixed by its backing medium.
func (b *BlockDevice) Allocate(int64) error { return nil }

// Size probes the device's current size by seeking to its end, since
// os.File.Stat reports 0 for device nodes on most platforms.
func (b *BlockDevice) Size() (int64, error) {
	size, err := b.f.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, fmt.Errorf("probe device size: %w: %w", err, istgterr.ErrBackingStore)
	}
	if _, err := b.f.Seek(0, os.SEEK_SET); err != nil {
		return 0, fmt.Errorf("rewind after probe: %w: %w", err, istgterr.ErrBackingStore)
	}
	return size, nil
}

func (b *BlockDevice) Close() error { return b.f.Close() }
