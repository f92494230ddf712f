// Package backingstore implements the driver contract §4.8 that the SCSI
// execution layer consumes against a regular file or block device: open,
// close, pread, pwrite, sync and allocate, plus file-size probing.
package backingstore

// ValidBlockLengths enumerates the block lengths a LogicalUnit may declare.
var ValidBlockLengths = map[uint32]bool{
	512: true, 1024: true, 2048: true, 4096: true, 8192: true,
	16384: true, 32768: true, 65536: true, 131072: true,
	262144: true, 524288: true,
}

// Driver is the polymorphic backing-store contract. RawFile and BlockDevice
// both implement it; BlockDevice's Allocate is a no-op since block devices
// have a fixed size.
type Driver interface {
	// Pread reads exactly len(buf) bytes starting at off.
	Pread(buf []byte, off int64) (int, error)
	// Pwrite writes exactly len(buf) bytes starting at off.
	Pwrite(buf []byte, off int64) (int, error)
	// Sync flushes nbytes starting at off to stable storage. A driver that
	// cannot flush sub-ranges may flush the whole device.
	Sync(off, nbytes int64) error
	// Allocate grows the backing store to size, touching the last block to
	// commit sparse space for file-backed drivers.
	Allocate(size int64) error
	// Size returns the current backing store size in bytes.
	Size() (int64, error)
	// Close releases the underlying file descriptor.
	Close() error
}
