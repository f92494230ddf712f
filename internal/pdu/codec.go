// Package pdu implements the iSCSI PDU codec (§4.1): BHS + AHS + optional
// header digest + padded data segment + optional data digest, with bounded
// allocation so a malicious DataSegmentLength can never commit a large
// buffer before the ceiling check runs.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/piscisaureus/istgt/internal/digest"
	"github.com/piscisaureus/istgt/internal/istgterr"
)

// Options controls how Decode/Encode frame a PDU, mirroring the connection's
// currently negotiated parameters.
type Options struct {
	MaxDataSegmentLen uint32 // negotiated MaxRecvDataSegmentLength ceiling
	HeaderDigest      bool   // CRC32C header digest negotiated on
	DataDigest        bool   // CRC32C data digest negotiated on
}

// padLen returns the number of zero padding bytes needed to round n up to a
// 4-byte boundary.
func padLen(n uint32) uint32 {
	return (4 - (n % 4)) % 4
}

// Decode reads one PDU from r according to opts.
//
// DataSegmentLength exceeding opts.MaxDataSegmentLen fails with
// istgterr.Overflow before the data segment buffer is allocated. A header or
// data digest mismatch fails with istgterr.HeaderDigestError /
// istgterr.DataDigestError; both are fatal to the connection per §7.
func Decode(r io.Reader, opts Options) (*PDU, error) {
	p := &PDU{}
	if _, err := io.ReadFull(r, p.BHS[:]); err != nil {
		return nil, fmt.Errorf("read BHS: %w", err)
	}

	ahsWords := p.TotalAHSLength()
	if ahsWords > 0 {
		p.AHS = make([]byte, int(ahsWords)*4)
		if _, err := io.ReadFull(r, p.AHS); err != nil {
			return nil, fmt.Errorf("read AHS: %w", err)
		}
	}

	if opts.HeaderDigest {
		var want [4]byte
		if _, err := io.ReadFull(r, want[:]); err != nil {
			return nil, fmt.Errorf("read header digest: %w", err)
		}
		w := digest.NewWriter()
		_, _ = w.Write(p.BHS[:])
		_, _ = w.Write(p.AHS)
		if w.Sum32() != binary.BigEndian.Uint32(want[:]) {
			return nil, istgterr.HeaderDigestError
		}
	}

	dataLen := p.DataSegmentLength()
	if dataLen > opts.MaxDataSegmentLen {
		return nil, fmt.Errorf("data segment length %d: %w", dataLen, istgterr.Overflow)
	}

	if dataLen > 0 {
		p.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, p.Data); err != nil {
			return nil, fmt.Errorf("read data segment: %w", err)
		}
	}

	if pad := padLen(dataLen); pad > 0 {
		var padBuf [3]byte
		if _, err := io.ReadFull(r, padBuf[:pad]); err != nil {
			return nil, fmt.Errorf("skip data padding: %w", err)
		}
	}

	if opts.DataDigest && dataLen > 0 {
		var want [4]byte
		if _, err := io.ReadFull(r, want[:]); err != nil {
			return nil, fmt.Errorf("read data digest: %w", err)
		}
		if !digest.Verify(p.Data, binary.BigEndian.Uint32(want[:])) {
			return nil, istgterr.DataDigestError
		}
	}

	return p, nil
}

// Encode writes p to w according to opts, computing digests if requested.
// It assembles header, AHS, digest, data, padding and data digest into one
// buffer and hands it to w in a single Write call.
func Encode(p *PDU, w io.Writer, opts Options) error {
	p.SetTotalAHSLength(byte(len(p.AHS) / 4))
	p.SetDataSegmentLength(uint32(len(p.Data)))

	buf := make([]byte, 0, BHSLen+len(p.AHS)+4+len(p.Data)+3+4)
	buf = append(buf, p.BHS[:]...)
	buf = append(buf, p.AHS...)

	if opts.HeaderDigest {
		hw := digest.NewWriter()
		_, _ = hw.Write(p.BHS[:])
		_, _ = hw.Write(p.AHS)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], hw.Sum32())
		buf = append(buf, sum[:]...)
	}

	buf = append(buf, p.Data...)
	if pad := padLen(uint32(len(p.Data))); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}

	if opts.DataDigest && len(p.Data) > 0 {
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], digest.Checksum(p.Data))
		buf = append(buf, sum[:]...)
	}

	_, err := w.Write(buf)
	return err
}
