// Package digest implements the iSCSI header/data digest algorithm (§3):
// CRC32C, the Castagnoli polynomial 0x1EDC6F41, reflected, init 0xFFFFFFFF,
// xor-out 0xFFFFFFFF — exactly the parameters hash/crc32's Castagnoli table
// implements, so this is a thin wrapper rather than a reimplementation. The
// spec treats the CRC32C implementation as an opaque external collaborator;
// the standard library already provides the real algorithm, so there is
// nothing domain-specific to gain from a third-party checksum package here
// (see DESIGN.md).
package digest

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32C digest of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// Verify reports whether want matches the CRC32C digest of data.
func Verify(data []byte, want uint32) bool {
	return Checksum(data) == want
}

// Writer accumulates a running CRC32C digest across multiple Write calls,
// used to cover a PDU's BHS+AHS as they're assembled piecewise.
type Writer struct {
	sum uint32
}

// NewWriter returns a Writer ready to accumulate bytes.
func NewWriter() *Writer { return &Writer{} }

// Write feeds p into the running digest. It never returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	w.sum = crc32.Update(w.sum, castagnoliTable, p)
	return len(p), nil
}

// Sum32 returns the digest accumulated so far.
func (w *Writer) Sum32() uint32 { return w.sum }

// Reset clears the running digest.
func (w *Writer) Reset() { w.sum = 0 }
