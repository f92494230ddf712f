package task

import (
	"context"
	"sync"

	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/metrics"
	"github.com/piscisaureus/istgt/internal/scsi"
	"github.com/piscisaureus/istgt/internal/tracing"
)

// Queue is one LU's FIFO task queue with a single worker goroutine, giving
// in-order execution per §5's "per-LU FIFO, one worker" concurrency model.
// Tagged queueing (multiple concurrent workers per LU) is an extension point
// this type doesn't need to provide.
type Queue struct {
	target  *lu.Target
	spec    *lu.BackingSpec
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending []*Task
	notify  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue starts a worker goroutine bound to ctx; the worker exits when ctx
// is canceled or Close is called. m may be nil (every Metrics method is a
// nil-safe no-op), which tests rely on.
func NewQueue(ctx context.Context, target *lu.Target, spec *lu.BackingSpec, m *metrics.Metrics) *Queue {
	q := &Queue{
		target:  target,
		spec:    spec,
		metrics: m,
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// Submit enqueues t for execution; the worker runs tasks in the order
// Submit was called, per CmdSN ordering performed upstream by the session
// layer before handing tasks to the LU queue.
func (q *Queue) Submit(t *Task) {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closed:
			return
		case <-q.notify:
		}
		for {
			t := q.pop()
			if t == nil {
				break
			}
			q.execute(t)
		}
	}
}

func (q *Queue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

func (q *Queue) execute(t *Task) {
	if t.Aborted() {
		t.setState(StateAborted)
		t.Done <- Result{}
		return
	}
	t.setState(StateExecuting)

	_, bsSpan := tracing.StartBackingStoreOp(t.Ctx(), scsi.OpcodeName(t.CDB[0]))
	res, err := scsi.Execute(t.Nexus, q.target, q.spec, t.CDB[:], t.WriteData(), t.LastSense())
	bsSpan.End()
	t.setState(StateCompleted)
	q.recordMetrics(t, res, err)
	t.Done <- Result{Result: res, Err: err}
}

// recordMetrics labels the executed command by opcode/status and, for
// read/write commands against a backing store, the bytes transferred or the
// medium/hardware-error sense that marks a backing store failure.
func (q *Queue) recordMetrics(t *Task, res scsi.Result, err error) {
	if len(t.CDB) == 0 {
		return
	}
	opcode := t.CDB[0]
	q.metrics.RecordCommand(scsi.OpcodeName(opcode), res.Status.String())
	if res.Status == scsi.StatusReservationConflict {
		q.metrics.RecordReservationConflict()
	}
	if err != nil {
		return
	}
	switch opcode {
	case scsi.OpRead6, scsi.OpRead10, scsi.OpRead12, scsi.OpRead16:
		if res.Status == scsi.StatusGood {
			q.metrics.RecordBytes("read", len(res.DataIn))
		} else if res.Sense.Key == scsi.SenseMediumError {
			q.metrics.RecordBackingStoreError("read")
		}
	case scsi.OpWrite6, scsi.OpWrite10, scsi.OpWrite12, scsi.OpWrite16:
		if res.Status == scsi.StatusGood {
			q.metrics.RecordBytes("write", len(t.WriteData()))
		} else if res.Sense.Key == scsi.SenseMediumError || res.Sense.Key == scsi.SenseHardwareError {
			q.metrics.RecordBackingStoreError("write")
		}
	}
}
