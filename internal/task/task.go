// Package task implements the per-LU command queue and R2T-driven data
// transfer bookkeeping described in §4.5/§5: one FIFO worker per logical
// unit, in-order execution, and outstanding-R2T tracking for SCSI WRITE
// commands that exceed the first burst.
package task

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/piscisaureus/istgt/internal/reservation"
	"github.com/piscisaureus/istgt/internal/scsi"
)

// State is a task's position in its lifecycle (§4.5).
type State int32

const (
	StateNew State = iota
	StateDataPending
	StateExecuting
	StateCompleted
	StateAborted
)

// Task is one SCSI command in flight, from SCSI Command PDU receipt through
// SCSI Response. Fields written only before the task is enqueued (CDB, LUN,
// etc.) are immutable thereafter; State and the R2T bookkeeping are mutated
// under mu or via atomics, since the connection's read-side goroutine races
// the LU worker goroutine that executes it.
type Task struct {
	ITT       uint32
	CmdSN     uint32
	Nexus     reservation.Nexus
	LUN       uint64
	CDB       [16]byte
	Bidir     bool
	ExpectedTransferLength uint32

	mu         sync.Mutex
	state      State
	writeData  []byte // assembled Data-Out payload, grown as segments arrive
	r2t        r2tState
	aborted    atomic.Bool
	lastSense  *scsi.SenseData // retained sense for this I-T-L nexus, shared across tasks by the connection

	ctx  context.Context // span-linked context for backing-store child spans (internal/tracing); set once via SetSpan
	span trace.Span       // this task's own span, set once via SetSpan, ended exactly once via EndSpan

	Done chan Result
}

// Result is delivered on Task.Done once execution completes.
type Result struct {
	scsi.Result
	Err error
}

// NewTask allocates a task in StateNew. cdb must already be the full,
// possibly-AHS-extended command descriptor block.
func NewTask(itt uint32, cmdSN uint32, n reservation.Nexus, lun uint64, cdb [16]byte, expectedLen uint32) *Task {
	return &Task{
		ITT:                    itt,
		CmdSN:                  cmdSN,
		Nexus:                  n,
		LUN:                    lun,
		CDB:                    cdb,
		ExpectedTransferLength: expectedLen,
		Done:                   make(chan Result, 1),
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Abort marks the task aborted; the LU worker checks this before executing
// and skips commands that were aborted while still queued (the TMF abort and
// reset functions in internal/connection).
func (t *Task) Abort() {
	t.aborted.Store(true)
}

func (t *Task) Aborted() bool {
	return t.aborted.Load()
}

// AppendWriteData accumulates a Data-Out segment at its buffer offset,
// growing writeData as needed. Segments may arrive out of BufferOffset order
// within the bounds the R2T/burst negotiation allows.
func (t *Task) AppendWriteData(offset uint32, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	need := int(offset) + len(data)
	if need > len(t.writeData) {
		grown := make([]byte, need)
		copy(grown, t.writeData)
		t.writeData = grown
	}
	copy(t.writeData[offset:], data)
}

// WriteData returns the assembled Data-Out payload collected so far.
func (t *Task) WriteData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeData
}

// SetLastSense binds the retained-sense slot this task's LUN uses for
// REQUEST SENSE (§4.2's auto contingent allegiance). The connection owns the
// pointer's lifetime, keyed per LUN, so it persists across the separate Task
// values successive commands create.
func (t *Task) SetLastSense(s *scsi.SenseData) {
	t.mu.Lock()
	t.lastSense = s
	t.mu.Unlock()
}

// LastSense returns the retained-sense slot set via SetLastSense, or nil if
// none was bound.
func (t *Task) LastSense() *scsi.SenseData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSense
}

// SetSpan binds the tracing span covering this task's lifetime, set once by
// the connection that created it right after NewTask, before the task is
// submitted to any LU queue (so there's no concurrent access to race).
func (t *Task) SetSpan(ctx context.Context, span trace.Span) {
	t.ctx = ctx
	t.span = span
}

// Ctx returns the span-linked context a backing-store child span should
// parent itself to. Returns context.Background() if SetSpan was never
// called (e.g. tests that construct a Task directly).
func (t *Task) Ctx() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// EndSpan ends this task's span; safe to call even if SetSpan was never
// called. The caller (connection.awaitTask) ensures this runs exactly once
// per task.
func (t *Task) EndSpan() {
	if t.span != nil {
		t.span.End()
	}
}
