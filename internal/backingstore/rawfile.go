package backingstore

import (
	"fmt"
	"os"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// RawFile backs an LU with a regular file. Allocate grows the file and
// writes a single zero byte at the new last block to commit sparse space,
// the trick the istgt C driver used in istgt_lu_disk_raw.c.
type RawFile struct {
	f *os.File
}

// OpenRawFile opens (creating if necessary) path for use as a backing file.
func OpenRawFile(path string, readOnly bool) (*RawFile, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open backing file %q: %w: %w", path, err, istgterr.ErrBackingStore)
	}
	return &RawFile{f: f}, nil
}

func (r *RawFile) Pread(buf []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(buf, off)
	if err != nil {
		return n, fmt.Errorf("pread: %w: %w", err, istgterr.ErrBackingStore)
	}
	return n, nil
}

func (r *RawFile) Pwrite(buf []byte, off int64) (int, error) {
	n, err := r.f.WriteAt(buf, off)
	if err != nil {
		return n, fmt.Errorf("pwrite: %w: %w", err, istgterr.ErrBackingStore)
	}
	return n, nil
}

func (r *RawFile) Sync(_, _ int64) error {
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sync: %w: %w", err, istgterr.ErrBackingStore)
	}
	return nil
}

// Allocate grows the file to size by writing a single byte at the last
// offset, which commits the final block on filesystems that otherwise leave
// a sparse hole (and is a no-op if the file is already that size).
func (r *RawFile) Allocate(size int64) error {
	if size <= 0 {
		return nil
	}
	cur, err := r.Size()
	if err != nil {
		return err
	}
	if cur >= size {
		return nil
	}
	if _, err := r.f.WriteAt([]byte{0}, size-1); err != nil {
		return fmt.Errorf("allocate: %w: %w", err, istgterr.ErrBackingStore)
	}
	return nil
}

func (r *RawFile) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w: %w", err, istgterr.ErrBackingStore)
	}
	return fi.Size(), nil
}

func (r *RawFile) Close() error { return r.f.Close() }
