package pdu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/stretchr/testify/require"
)

func sampleCommandPDU() *PDU {
	p := &PDU{}
	p.SetOpcode(OpSCSICommand)
	p.SetImmediate(false)
	p.SetFinal(true)
	p.SetLUN([8]byte{})
	p.SetInitiatorTaskTag(0x1234)
	p.SetExpectedDataTransferLength(512)
	p.SetCmdSN(7)
	p.SetExpStatSN(3)
	p.Data = []byte("hello iscsi")
	return p
}

func TestRoundTripNoDigest(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 8192}
	p := sampleCommandPDU()

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, opts))

	got, err := Decode(&buf, opts)
	require.NoError(t, err)
	require.Equal(t, p.Opcode(), got.Opcode())
	require.Equal(t, p.InitiatorTaskTag(), got.InitiatorTaskTag())
	require.Equal(t, p.CmdSN(), got.CmdSN())
	require.Equal(t, p.ExpStatSN(), got.ExpStatSN())
	require.Equal(t, p.ExpectedDataTransferLength(), got.ExpectedDataTransferLength())
	require.Equal(t, p.Data, got.Data)
	require.Equal(t, buf.Len(), 0)
}

func TestRoundTripWithDigests(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 8192, HeaderDigest: true, DataDigest: true}
	p := sampleCommandPDU()

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, opts))

	got, err := Decode(&buf, opts)
	require.NoError(t, err)
	require.Equal(t, p.Data, got.Data)
}

func TestHeaderDigestMismatchFails(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 8192, HeaderDigest: true}
	p := sampleCommandPDU()

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, opts))

	raw := buf.Bytes()
	raw[1] ^= 0xFF // corrupt a header byte covered by the digest

	_, err := Decode(bytes.NewReader(raw), opts)
	require.ErrorIs(t, err, istgterr.HeaderDigestError)
}

func TestDataDigestMismatchFails(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 8192, DataDigest: true}
	p := sampleCommandPDU()

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, opts))

	raw := buf.Bytes()
	raw[BHSLen] ^= 0xFF // corrupt the first data segment byte

	_, err := Decode(bytes.NewReader(raw), opts)
	require.ErrorIs(t, err, istgterr.DataDigestError)
}

func TestOverflowBeforeAllocation(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 16}
	p := sampleCommandPDU() // data segment is longer than 16 bytes

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, Options{MaxDataSegmentLen: 8192}))

	_, err := Decode(&buf, opts)
	require.True(t, errors.Is(err, istgterr.Overflow))
}

func TestPaddingIsZeroAndNotDigested(t *testing.T) {
	opts := Options{MaxDataSegmentLen: 8192, DataDigest: true}
	p := sampleCommandPDU()
	p.Data = []byte("abc") // 1 byte of padding

	var buf bytes.Buffer
	require.NoError(t, Encode(p, &buf, opts))

	raw := buf.Bytes()
	padByteIdx := BHSLen + len(p.Data)
	require.Equal(t, byte(0), raw[padByteIdx])

	got, err := Decode(bytes.NewReader(raw), opts)
	require.NoError(t, err)
	require.Equal(t, p.Data, got.Data)
}
