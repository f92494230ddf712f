package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/piscisaureus/istgt/internal/backingstore"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/reservation"
	"github.com/piscisaureus/istgt/internal/scsi"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (context.Context, *Queue, *lu.BackingSpec) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "disk0.img")
	rf, err := backingstore.OpenRawFile(path, false)
	require.NoError(t, err)
	require.NoError(t, rf.Allocate(1 << 20))

	target := lu.NewTarget("iqn.2026-07.test:target0", 1, lu.UnitTypeDisk)
	spec := &lu.BackingSpec{LUN: 0, Path: path, BlockLen: 512, Size: 1 << 20, Driver: rf}
	require.NoError(t, target.AddLUN(spec))

	return ctx, NewQueue(ctx, target, spec, nil), spec
}

func TestQueueExecutesInOrder(t *testing.T) {
	ctx, q, spec := newTestQueue(t)
	defer q.Close()
	_ = ctx

	var cdb [16]byte
	cdb[0] = scsi.OpTestUnitReady

	var tasks []*Task
	for i := 0; i < 5; i++ {
		tk := NewTask(uint32(i), uint32(i), reservation.Nexus{InitiatorName: "iqn.a", LUN: 0}, 0, cdb, 0)
		tasks = append(tasks, tk)
		q.Submit(tk)
	}

	for _, tk := range tasks {
		select {
		case res := <-tk.Done:
			require.NoError(t, res.Err)
			require.Equal(t, scsi.StatusGood, res.Status)
		case <-time.After(time.Second):
			t.Fatal("task did not complete")
		}
	}
	_ = spec
}

func TestQueueSkipsAbortedTask(t *testing.T) {
	_, q, _ := newTestQueue(t)
	defer q.Close()

	var cdb [16]byte
	cdb[0] = scsi.OpTestUnitReady
	tk := NewTask(1, 1, reservation.Nexus{InitiatorName: "iqn.a", LUN: 0}, 0, cdb, 0)
	tk.Abort()
	q.Submit(tk)

	select {
	case res := <-tk.Done:
		require.Equal(t, StateAborted, tk.State())
		require.Equal(t, scsi.Status(0), res.Status)
	case <-time.After(time.Second):
		t.Fatal("aborted task never signaled done")
	}
}
