package scsi

import (
	"path/filepath"
	"testing"

	"github.com/piscisaureus/istgt/internal/backingstore"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/reservation"
	"github.com/stretchr/testify/require"
)

func newTestLUN(t *testing.T) (*lu.Target, *lu.BackingSpec) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk0.img")
	rf, err := backingstore.OpenRawFile(path, false)
	require.NoError(t, err)
	require.NoError(t, rf.Allocate(1 << 20))

	target := lu.NewTarget("iqn.2026-07.test:target0", 1, lu.UnitTypeDisk)
	spec := &lu.BackingSpec{LUN: 0, Path: path, BlockLen: 512, Size: 1 << 20, Driver: rf}
	require.NoError(t, target.AddLUN(spec))
	return target, spec
}

func TestReadCapacity10MatchesBackingSize(t *testing.T) {
	target, spec := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}

	res, err := Execute(n, target, spec, []byte{OpReadCapacity10, 0, 0, 0, 0, 0, 0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)
	require.Len(t, res.DataIn, 8)

	total := uint64(1<<20) / 512
	gotLastLBA := uint32(res.DataIn[0])<<24 | uint32(res.DataIn[1])<<16 | uint32(res.DataIn[2])<<8 | uint32(res.DataIn[3])
	require.Equal(t, uint32(total-1), gotLastLBA)
	gotBlockLen := uint32(res.DataIn[4])<<24 | uint32(res.DataIn[5])<<16 | uint32(res.DataIn[6])<<8 | uint32(res.DataIn[7])
	require.Equal(t, uint32(512), gotBlockLen)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	target, spec := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = 0x5A
	}
	writeCDB := []byte{OpWrite10, 0, 0, 0, 0, 1, 0, 0, 1, 0}
	res, err := Execute(n, target, spec, writeCDB, payload, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)

	readCDB := []byte{OpRead10, 0, 0, 0, 0, 1, 0, 0, 1, 0}
	res, err = Execute(n, target, spec, readCDB, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)
	require.Equal(t, payload, res.DataIn)
}

func TestReadOutOfRangeReturnsSenseLBAOutOfRange(t *testing.T) {
	target, spec := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}

	total := uint32(spec.Size) / spec.BlockLen
	cdb := []byte{OpRead10, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	cdb[2] = byte(total >> 24)
	cdb[3] = byte(total >> 16)
	cdb[4] = byte(total >> 8)
	cdb[5] = byte(total)

	res, err := Execute(n, target, spec, cdb, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCheckCondition, res.Status)
	require.Equal(t, SenseIllegalRequest, res.Sense.Key)
	require.Equal(t, ASCLBAOutOfRange, res.Sense.ASC)
}

func TestLegacyReservationConflictBlocksOtherInitiator(t *testing.T) {
	target, spec := newTestLUN(t)
	holder := reservation.Nexus{InitiatorName: "iqn.holder", LUN: 0}
	other := reservation.Nexus{InitiatorName: "iqn.other", LUN: 0}

	res, err := Execute(holder, target, spec, []byte{OpReserve6, 0, 0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)

	readCDB := []byte{OpRead10, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	res, err = Execute(other, target, spec, readCDB, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusReservationConflict, res.Status)

	res, err = Execute(holder, target, spec, readCDB, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)
}

func TestWriteToReadOnlyLUNIsWriteProtected(t *testing.T) {
	target, spec := newTestLUN(t)
	spec.ReadOnly = true
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}

	writeCDB := []byte{OpWrite10, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	res, err := Execute(n, target, spec, writeCDB, make([]byte, 512), nil)
	require.NoError(t, err)
	require.Equal(t, StatusCheckCondition, res.Status)
	require.Equal(t, SenseDataProtect, res.Sense.Key)
}

func TestUnknownLUNReturnsIllegalRequest(t *testing.T) {
	target, _ := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 5}
	res, err := Execute(n, target, nil, []byte{OpTestUnitReady, 0, 0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCheckCondition, res.Status)
	require.Equal(t, SenseIllegalRequest, res.Sense.Key)
}

func TestInquiryStandardData(t *testing.T) {
	target, spec := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}
	res, err := Execute(n, target, spec, []byte{OpInquiry, 0, 0, 0, 96, 0}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)
	require.Equal(t, byte(0x00), res.DataIn[0])
}

func TestPersistentReserveRegisterAndReserve(t *testing.T) {
	target, spec := newTestLUN(t)
	n := reservation.Nexus{InitiatorName: "iqn.initiator", LUN: 0}

	registerParam := make([]byte, 24)
	registerParam[15] = 0x11 // service action reservation key = 0x11
	registerCDB := []byte{OpPersistentReserveOut, prOutRegister, 0, 0, 0, 0, 0, 0, 24, 0}
	res, err := Execute(n, target, spec, registerCDB, registerParam, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)

	reserveParam := make([]byte, 24)
	reserveParam[7] = 0x11 // reservation key = 0x11
	reserveCDB := []byte{OpPersistentReserveOut, prOutReserve, byte(reservation.PRExclusiveAccess), 0, 0, 0, 0, 0, 24, 0}
	res, err = Execute(n, target, spec, reserveCDB, reserveParam, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)

	other := reservation.Nexus{InitiatorName: "iqn.other", LUN: 0}
	readCDB := []byte{OpRead10, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	res, err = Execute(other, target, spec, readCDB, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusReservationConflict, res.Status)

	res, err = Execute(n, target, spec, readCDB, nil, nil)
	require.NoError(t, err)
	require.Equal(t, StatusGood, res.Status)
}
