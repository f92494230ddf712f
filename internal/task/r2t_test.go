package task

import (
	"testing"

	"github.com/piscisaureus/istgt/internal/reservation"
	"github.com/stretchr/testify/require"
)

func newWriteTask(expectedLen uint32) *Task {
	var cdb [16]byte
	return NewTask(1, 1, reservation.Nexus{InitiatorName: "iqn.a", LUN: 0}, 0, cdb, expectedLen)
}

func TestNextR2TSplitsByMaxBurstLength(t *testing.T) {
	tk := newWriteTask(256 * 1024)
	p := Params{MaxOutstandingR2T: 2, MaxBurstLength: 64 * 1024, InitialR2T: true}

	sn, off, length, ok := tk.NextR2T(p, 0)
	require.True(t, ok)
	require.Equal(t, uint32(0), sn)
	require.Equal(t, uint32(0), off)
	require.Equal(t, uint32(64*1024), length)

	sn, off, length, ok = tk.NextR2T(p, 0)
	require.True(t, ok)
	require.Equal(t, uint32(1), sn)
	require.Equal(t, uint32(64*1024), off)
	require.Equal(t, uint32(64*1024), length)
}

func TestNextR2TRespectsOutstandingCap(t *testing.T) {
	tk := newWriteTask(256 * 1024)
	p := Params{MaxOutstandingR2T: 1, MaxBurstLength: 64 * 1024, InitialR2T: true}

	_, _, _, ok := tk.NextR2T(p, 0)
	require.True(t, ok)
	_, _, _, ok = tk.NextR2T(p, 0)
	require.False(t, ok, "second R2T should be withheld until the first retires")
}

func TestDataOutReceivedRetiresOutstandingR2T(t *testing.T) {
	tk := newWriteTask(1024)
	p := Params{MaxOutstandingR2T: 1, MaxBurstLength: 1024, InitialR2T: true}

	_, off, length, ok := tk.NextR2T(p, 0)
	require.True(t, ok)

	tk.DataOutReceived(off, make([]byte, length), true)
	require.True(t, tk.TransferComplete())

	_, _, _, ok = tk.NextR2T(p, 0)
	require.False(t, ok, "no more data remains to solicit")
}

func TestNextR2THonorsUnsolicitedFirstBurst(t *testing.T) {
	tk := newWriteTask(1024)
	p := Params{MaxOutstandingR2T: 1, MaxBurstLength: 1024, FirstBurstLength: 512, InitialR2T: false}

	_, off, length, ok := tk.NextR2T(p, 512)
	require.True(t, ok)
	require.Equal(t, uint32(512), off)
	require.Equal(t, uint32(512), length)
}
