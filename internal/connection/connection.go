package connection

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel/trace"

	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/piscisaureus/istgt/internal/logger"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/metrics"
	"github.com/piscisaureus/istgt/internal/pdu"
	"github.com/piscisaureus/istgt/internal/reservation"
	"github.com/piscisaureus/istgt/internal/scsi"
	"github.com/piscisaureus/istgt/internal/session"
	"github.com/piscisaureus/istgt/internal/task"
	"github.com/piscisaureus/istgt/internal/tracing"
)

// Runtime is the subset of *runtime.Runtime a connection needs; declared
// here (not imported) to avoid a runtime<->connection import cycle, mirroring
// a connection/server split that avoids import cycles between the two.
type Runtime interface {
	LookupTarget(name string) (*lu.Target, bool)
	QueueFor(target *lu.Target, lun uint64) (*task.Queue, error)
	ACLRegistry() *aclpolicy.Registry
	Metrics() *metrics.Metrics
	AllTargets() []*lu.Target
	PortalAddrs(tag int) []string
}

// Config bundles the per-connection knobs that come from the daemon's
// loaded configuration (§6): timeouts, the max data segment ceiling, and
// auth group resolution.
type Config struct {
	PortalTag     int
	Timeout       time.Duration
	NopInInterval time.Duration
	AuthRequired  bool
	AuthGroup     int
	LookupSecret  SecretLookup
	CommandWindow uint32
}

// pendingWrite is a SCSI Command awaiting solicited Data-Out, indexed by the
// TTT the R2T that requested it carried.
type pendingWrite struct {
	task  *task.Task
	req   *pdu.PDU
	queue *task.Queue
}

// Connection is one TCP connection's iSCSI state machine: login negotiator,
// then Full-Feature command dispatch, then logout/close. A single
// read-dispatch-write loop with serialized egress, deadline resets, and
// panic containment, adapted to PDU framing instead of RPC record marking.
type Connection struct {
	conn    net.Conn
	cid     uint16
	traceID string          // internal correlation id for log lines, never placed on the wire
	spanCtx context.Context // root span context for this connection (internal/tracing); never placed on the wire
	cfg     Config
	rt      Runtime

	writeMu sync.Mutex
	opts    pdu.Options

	sess      *session.Session
	sessions  *session.Registry
	target    *lu.Target
	login     *LoginState
	r2tParams task.Params

	statSN atomic.Uint32

	mu        sync.Mutex
	lastSense map[uint64]*scsi.SenseData
	tasks     map[uint32]*task.Task     // every task in flight on this connection, by ITT (TMF lookup)
	inflight  map[uint32]*pendingWrite  // write tasks awaiting Data-Out, by TTT
}

// New creates a connection bound to an accepted socket. cid is assigned by
// the caller (serve.go draws it from one process-wide counter).
func New(conn net.Conn, cid uint16, cfg Config, rt Runtime, sessions *session.Registry) *Connection {
	return &Connection{
		conn:      conn,
		cid:       cid,
		traceID:   xid.New().String(),
		cfg:       cfg,
		rt:        rt,
		sessions:  sessions,
		opts:      pdu.Options{MaxDataSegmentLen: 8192},
		lastSense: make(map[uint64]*scsi.SenseData),
		tasks:     make(map[uint32]*task.Task),
		inflight:  make(map[uint32]*pendingWrite),
	}
}

func (c *Connection) CID() uint16 { return c.cid }

// SendAsyncLogout implements session.ConnectionRef: it queues an Async
// Message PDU telling the initiator this connection is being torn down
// (session reinstatement, §4.4 S5) and closes the socket. Errors are
// swallowed — the connection is going away regardless.
func (c *Connection) SendAsyncLogout(reason byte) {
	p := &pdu.PDU{}
	p.SetOpcode(pdu.OpAsyncMessage)
	p.SetFinal(true)
	p.BHS[36] = pdu.AsyncEventDropAllConns
	p.BHS[38] = reason
	c.writePDU(p)
	_ = c.conn.Close()
}

// Serve runs the connection to completion: login, then Full-Feature command
// processing, until the peer disconnects, logs out, or ctx is canceled.
func (c *Connection) Serve(ctx context.Context) {
	remote := c.conn.RemoteAddr().String()

	var span trace.Span
	c.spanCtx, span = tracing.StartConnection(ctx, remote, c.cid)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in connection handler", "trace", c.traceID, "remote", remote, "recovered", r)
		}
		_ = c.conn.Close()
		if c.sess != nil {
			c.sess.DetachConnection(c.cid)
		}
	}()

	c.resetDeadline()

	if err := c.runLogin(ctx, remote); err != nil {
		logger.Warn("login failed", "trace", c.traceID, "remote", remote, "error", err)
		return
	}

	c.runFullFeature(ctx, remote)
}

func (c *Connection) resetDeadline() {
	if c.cfg.Timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}
}

// runLogin drives the Login Request/Response exchange until Full-Feature
// Phase or failure (§4.5).
func (c *Connection) runLogin(ctx context.Context, remote string) error {
	host, _, _ := net.SplitHostPort(remote)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p, err := pdu.Decode(c.conn, c.opts)
		if err != nil {
			return fmt.Errorf("decode login PDU: %w", err)
		}
		if p.Opcode() != pdu.OpLoginRequest {
			return fmt.Errorf("expected login request, got opcode %v: %w", p.Opcode(), istgterr.ErrProtocol)
		}

		if c.login == nil {
			c.login = NewLoginState(c.cfg.AuthRequired, c.cfg.AuthGroup, c.cfg.LookupSecret)
			c.login.ISID = p.ISID()
			c.login.TSIH = p.TSIH()
		}

		result, err := c.login.HandleRequest(p)
		if err != nil {
			c.sendLoginReject(p, result.Status, result.Detail)
			return err
		}

		if c.login.TargetName != "" && c.target == nil {
			target, ok := c.rt.LookupTarget(c.login.TargetName)
			if !ok {
				c.sendLoginReject(p, pdu.LoginStatusInitiatorError, pdu.LoginDetailNotFound)
				return fmt.Errorf("target %q not found: %w", c.login.TargetName, istgterr.ErrProtocol)
			}
			c.target = target
		}

		if c.login.Phase == PhaseOperational && c.target != nil {
			if err := c.checkAccess(host); err != nil {
				c.sendLoginReject(p, pdu.LoginStatusInitiatorError, pdu.LoginDetailAuthFailure)
				return err
			}
		}

		if result.FullFeature {
			c.attachSession()
		}
		c.sendLoginResponse(p, result)

		if result.FullFeature {
			params := c.login.Negotiator.Params()
			c.opts = pdu.Options{
				MaxDataSegmentLen: params.MaxRecvDataSegmentLength,
				HeaderDigest:      params.HeaderDigestCRC32C,
				DataDigest:        params.DataDigestCRC32C,
			}
			c.r2tParams = task.Params{
				MaxOutstandingR2T: params.MaxOutstandingR2T,
				MaxBurstLength:    params.MaxBurstLength,
				FirstBurstLength:  params.FirstBurstLength,
				InitialR2T:        params.InitialR2T,
			}
			return nil
		}
	}
}

// checkAccess enforces §4.3 access policy once the target name is known,
// against the ACL registry and the target's configured portal/initiator
// group mappings.
func (c *Connection) checkAccess(sourceIP string) error {
	if c.target == nil || c.login == nil {
		return nil
	}
	registry := c.rt.ACLRegistry()
	if registry == nil {
		return nil
	}
	return CheckAccess(registry, c.target.Mappings, c.cfg.PortalTag, c.login.InitiatorName, sourceIP)
}

func (c *Connection) attachSession() {
	if c.sessions == nil || c.login == nil {
		return
	}
	if existing, ok := c.sessions.Lookup(c.login.ISID, c.login.TargetName); ok && c.login.TSIH != 0 {
		c.sess = existing
		c.sess.AttachConnection(c)
		return
	}
	c.sess = c.sessions.Create(c.login.ISID, c.login.TargetName, c.login.InitiatorName, c.cfg.CommandWindow, 0)
	c.sess.AttachConnection(c)
	c.sess.MarkLoggedIn()
	if c.target != nil {
		c.target.IncrActiveSessions()
	}
	target, sessions, m := c.target, c.sessions, c.rt.Metrics()
	m.SetActiveSessions(sessions.Count())
	c.sess.OnClose(func(s *session.Session) {
		if target != nil {
			target.DecrActiveSessions()
		}
		sessions.Remove(s)
		m.SetActiveSessions(sessions.Count())
	})
	logger.Info("session established", "trace", c.traceID, "target", c.login.TargetName, "initiator", c.login.InitiatorName, "tsih", c.sess.TSIH)
}

func (c *Connection) sendLoginResponse(req *pdu.PDU, result LoginResult) {
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpLoginResponse)
	resp.SetInitiatorTaskTag(req.InitiatorTaskTag())
	resp.SetISID(req.ISID())
	if c.sess != nil {
		resp.SetTSIH(c.sess.TSIH)
	}
	resp.BHS[1] = req.BHS[1] // echo CSG/NSG
	resp.SetFinal(req.Final() && result.Status == pdu.LoginStatusSuccess)
	resp.BHS[36] = result.Status
	resp.BHS[37] = result.Detail
	resp.Data = encodeTextKV(result.Reply)
	c.writePDU(resp)
}

func (c *Connection) sendLoginReject(req *pdu.PDU, status, detail byte) {
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpLoginResponse)
	resp.SetInitiatorTaskTag(req.InitiatorTaskTag())
	resp.BHS[36] = status
	resp.BHS[37] = detail
	c.writePDU(resp)
}

// runFullFeature processes SCSI Command, Task Management, NOP, Data-Out,
// Text (SendTargets discovery) and Logout PDUs until the connection ends
// (§4.4, §4.6). SCSI Command handling runs each task asynchronously
// (dispatch then keep reading) so a command that needs R2T-solicited
// Data-Out doesn't stall the PDUs carrying it.
func (c *Connection) runFullFeature(ctx context.Context, remote string) {
	keepalive := newKeepalive(c, c.cfg.NopInInterval)
	defer keepalive.stop()
	keepalive.start(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.resetDeadline()
		p, err := pdu.Decode(c.conn, c.opts)
		if err != nil {
			if errors.Is(err, istgterr.HeaderDigestError) || errors.Is(err, istgterr.DataDigestError) {
				c.sendReject(pdu.RejectReasonHeaderDigestError)
				return
			}
			if !errors.Is(err, io.EOF) {
				logger.Debug("connection read error", "remote", remote, "error", err)
			}
			return
		}
		keepalive.noteActivity()

		switch p.Opcode() {
		case pdu.OpSCSICommand:
			c.handleSCSICommand(p)
		case pdu.OpSCSIDataOut:
			c.handleDataOut(p)
		case pdu.OpNopOut:
			c.handleNopOut(p)
		case pdu.OpLogoutRequest:
			c.handleLogout(p)
			return
		case pdu.OpSCSITaskManagementRequest:
			c.handleTaskManagement(p)
		case pdu.OpTextRequest:
			c.handleTextRequest(p, remote)
		default:
			c.sendReject(pdu.RejectReasonCmdNotSupported)
		}
	}
}

// nextStatSN returns the next StatSN and advances the counter; safe for
// concurrent callers since per-task goroutines and the keepalive ping both
// stamp responses independently of the read loop.
func (c *Connection) nextStatSN() uint32 { return c.statSN.Add(1) - 1 }

// peekStatSN reads the current StatSN without advancing it, for the
// unsolicited NOP-In that must carry but not consume a StatSN (§4.5).
func (c *Connection) peekStatSN() uint32 { return c.statSN.Load() }

func (c *Connection) stampResponse(p *pdu.PDU) {
	p.SetStatSN(c.nextStatSN())
	c.stampCmdWindow(p)
}

// stampCmdWindow writes ExpCmdSN/MaxCmdSN without consuming a StatSN, for
// PDUs in a sequence that only the final segment assigns one to (§4.4: "per
// response ... exactly one response PDU carrying a StatSN").
func (c *Connection) stampCmdWindow(p *pdu.PDU) {
	if c.sess != nil {
		p.SetExpCmdSN(c.sess.ExpCmdSN())
		p.SetMaxCmdSN(c.sess.MaxCmdSN())
	}
}

func (c *Connection) writePDU(p *pdu.PDU) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := pdu.Encode(p, c.conn, c.opts); err != nil {
		logger.Debug("write PDU failed", "error", err)
	}
}

func (c *Connection) sendReject(reason byte) {
	p := &pdu.PDU{}
	p.SetOpcode(pdu.OpReject)
	p.BHS[2] = reason
	c.stampResponse(p)
	c.writePDU(p)
}

func (c *Connection) handleNopOut(p *pdu.PDU) {
	itt := p.InitiatorTaskTag()
	if itt == 0xFFFFFFFF {
		return // unsolicited ping response, no reply required
	}
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpNopIn)
	resp.SetInitiatorTaskTag(itt)
	resp.SetTargetTransferTag(0xFFFFFFFF)
	c.stampResponse(resp)
	c.writePDU(resp)
}

func (c *Connection) handleLogout(p *pdu.PDU) {
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpLogoutResponse)
	resp.SetInitiatorTaskTag(p.InitiatorTaskTag())
	resp.BHS[2] = 0 // success
	c.stampResponse(resp)
	c.writePDU(resp)
}

// handleTaskManagement implements the TMF subset §4.6 requires: aborting a
// single task, a whole task set, or every task on the connection, by marking
// the targeted task(s) aborted so the LU queue skips them before execution
// (task.Task.Abort; a task already executing runs to completion regardless).
func (c *Connection) handleTaskManagement(p *pdu.PDU) {
	function := p.BHS[1] & 0x7f
	referencedITT := p.TargetTransferTag()
	lunNum := lunFromWire(p.LUN())

	response := pdu.TMFResponseComplete
	switch function {
	case pdu.TMFAbortTask:
		if tk, ok := c.lookupTask(referencedITT); ok {
			tk.Abort()
		} else {
			response = pdu.TMFResponseTaskNotExist
		}
	case pdu.TMFAbortTaskSet, pdu.TMFClearTaskSet, pdu.TMFLUNReset:
		for _, tk := range c.tasksOnLUN(lunNum) {
			tk.Abort()
		}
	case pdu.TMFTargetWarmReset:
		for _, tk := range c.allTasks() {
			tk.Abort()
		}
	default:
		response = pdu.TMFResponseFunctionNotSupported
	}

	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpSCSITaskManagementResponse)
	resp.SetInitiatorTaskTag(p.InitiatorTaskTag())
	resp.BHS[2] = response
	c.stampResponse(resp)
	c.writePDU(resp)
}

func (c *Connection) nexus() reservation.Nexus {
	var n reservation.Nexus
	if c.login != nil {
		n.InitiatorName = c.login.InitiatorName
		n.ISID = c.login.ISID
	}
	return n
}

func (c *Connection) trackTask(tk *task.Task) {
	c.mu.Lock()
	c.tasks[tk.ITT] = tk
	c.mu.Unlock()
}

func (c *Connection) untrackTask(itt uint32) {
	c.mu.Lock()
	delete(c.tasks, itt)
	c.mu.Unlock()
}

func (c *Connection) lookupTask(itt uint32) (*task.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tk, ok := c.tasks[itt]
	return tk, ok
}

func (c *Connection) tasksOnLUN(lunNum uint64) []*task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*task.Task
	for _, tk := range c.tasks {
		if tk.LUN == lunNum {
			out = append(out, tk)
		}
	}
	return out
}

// senseSlot returns the retained-sense pointer for a LUN, allocating it on
// first use. The same pointer is handed to every task's SetLastSense so
// REQUEST SENSE on a later command can retrieve the prior command's sense.
func (c *Connection) senseSlot(lunNum uint64) *scsi.SenseData {
	c.mu.Lock()
	defer c.mu.Unlock()
	sense, ok := c.lastSense[lunNum]
	if !ok {
		sense = &scsi.SenseData{}
		c.lastSense[lunNum] = sense
	}
	return sense
}

func (c *Connection) allTasks() []*task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*task.Task, 0, len(c.tasks))
	for _, tk := range c.tasks {
		out = append(out, tk)
	}
	return out
}

func isWriteOpcode(op byte) bool {
	switch op {
	case scsi.OpWrite6, scsi.OpWrite10, scsi.OpWrite12, scsi.OpWrite16:
		return true
	default:
		return false
	}
}

func (c *Connection) handleSCSICommand(p *pdu.PDU) {
	if c.target == nil {
		c.sendSCSIResponse(p, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidField()})
		return
	}
	lunNum := lunFromWire(p.LUN())
	if _, ok := c.target.LUN(lunNum); !ok {
		c.sendSCSIResponse(p, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidField()})
		return
	}
	q, err := c.rt.QueueFor(c.target, lunNum)
	if err != nil {
		c.sendSCSIResponse(p, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidField()})
		return
	}

	cdb := p.CDB()
	expectedLen := p.ExpectedDataTransferLength()
	tk := task.NewTask(p.InitiatorTaskTag(), p.CmdSN(), c.nexus(), lunNum, cdb, expectedLen)
	tk.SetLastSense(c.senseSlot(lunNum))
	taskCtx, taskSpan := tracing.StartTask(c.spanCtx, scsi.OpcodeName(cdb[0]), tk.ITT)
	tk.SetSpan(taskCtx, taskSpan)
	c.trackTask(tk)

	if isWriteOpcode(cdb[0]) && expectedLen > 0 {
		if len(p.Data) > 0 {
			tk.AppendWriteData(0, p.Data) // immediate/unsolicited data carried in the command PDU itself
		}
		if !tk.TransferComplete() {
			c.beginSolicitedWrite(tk, q, p)
			return
		}
	}
	c.dispatchOrdered(q, tk, p)
}

// dispatchOrdered gates submission of tk to its LU queue on the session's
// CmdSN-ordered delivery (§4.4, §5, testable property 1): the command
// becomes eligible for execution only once every lower CmdSN in its session
// has been delivered, regardless of which connection or when each one's
// data finished arriving. A CmdSN protocol violation (duplicate or beyond
// the window) is fatal to the connection at ERL 0 (§7).
func (c *Connection) dispatchOrdered(q *task.Queue, tk *task.Task, req *pdu.PDU) {
	if c.sess == nil {
		c.dispatch(q, tk, req)
		return
	}
	err := c.sess.SubmitInOrder(tk.CmdSN, req.Immediate(), func() {
		c.dispatch(q, tk, req)
	})
	if err != nil {
		logger.Warn("cmdsn protocol violation", "trace", c.traceID, "cmdsn", tk.CmdSN, "error", err)
		c.untrackTask(tk.ITT)
		c.sendReject(pdu.RejectReasonProtocolError)
		_ = c.conn.Close()
	}
}

// beginSolicitedWrite registers tk for Data-Out correlation and issues its
// first R2T; the task isn't submitted to the LU queue until every solicited
// byte has arrived (handleDataOut completes the handoff).
func (c *Connection) beginSolicitedWrite(tk *task.Task, q *task.Queue, req *pdu.PDU) {
	c.mu.Lock()
	c.inflight[tk.ITT] = &pendingWrite{task: tk, req: req, queue: q}
	c.mu.Unlock()
	c.issueR2T(tk)
}

// issueR2T asks tk's R2T bookkeeping for the next solicitation and, if one
// is due, emits it. ok=false (cap reached, or nothing left to solicit) is a
// no-op: either a Data-Out still in flight will retire an outstanding R2T,
// or the transfer is already complete.
func (c *Connection) issueR2T(tk *task.Task) {
	r2tSN, bufferOffset, desired, ok := tk.NextR2T(c.r2tParams, uint32(len(tk.WriteData())))
	if !ok {
		return
	}
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpR2T)
	resp.SetInitiatorTaskTag(tk.ITT)
	resp.SetTargetTransferTag(tk.ITT) // TTT doubles as the Data-Out correlation key for this task
	resp.SetDataSN(r2tSN)             // R2TSN shares DataSN's byte offset
	resp.SetBufferOffset(bufferOffset)
	resp.SetDesiredDataTransferLength(desired)
	c.stampResponse(resp)
	c.writePDU(resp)
	c.rt.Metrics().RecordR2T()
}

// handleDataOut routes a solicited or unsolicited Data-Out segment to the
// task its TTT was issued for (§4.6). Submitting the underlying task to the
// LU queue is deferred until every byte of ExpectedTransferLength has
// arrived.
func (c *Connection) handleDataOut(p *pdu.PDU) {
	ttt := p.TargetTransferTag()
	c.mu.Lock()
	pw, ok := c.inflight[ttt]
	c.mu.Unlock()
	if !ok {
		return // stale or unrecognized Data-Out; nothing to correlate it to
	}

	pw.task.DataOutReceived(p.BufferOffset(), p.Data, p.Final())
	if pw.task.TransferComplete() {
		c.mu.Lock()
		delete(c.inflight, ttt)
		c.mu.Unlock()
		c.dispatchOrdered(pw.queue, pw.task, pw.req)
		return
	}
	if p.Final() {
		c.issueR2T(pw.task)
	}
}

// dispatch submits tk to its LU queue and waits on its completion in its own
// goroutine, so the connection's read loop keeps servicing other PDUs
// (including Data-Out for other in-flight writes) while tk executes.
func (c *Connection) dispatch(q *task.Queue, tk *task.Task, req *pdu.PDU) {
	q.Submit(tk)
	go c.awaitTask(tk, req)
}

func (c *Connection) awaitTask(tk *task.Task, req *pdu.PDU) {
	defer c.untrackTask(tk.ITT)
	defer tk.EndSpan()
	select {
	case res := <-tk.Done:
		if tk.State() == task.StateAborted {
			return // TMF already answered the initiator; an aborted task gets no SCSI Response
		}
		if res.Err != nil {
			logger.Error("task execution error", "error", res.Err)
			c.sendSCSIResponse(req, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.HardwareError()})
			return
		}
		if res.Status == scsi.StatusCheckCondition {
			sense := res.Sense
			c.mu.Lock()
			c.lastSense[tk.LUN] = &sense
			c.mu.Unlock()
		}
		c.sendSCSIResponse(req, res.Result)
	case <-time.After(c.cfg.Timeout):
		logger.Warn("task timed out", "itt", tk.ITT)
	}
}

// sendSCSIResponse answers a completed SCSI Command. Read-direction payload
// (res.DataIn) never rides in the SCSI Response's own data segment — per
// RFC 3720 it goes out as one or more dedicated SCSI Data-In PDUs
// (sendDataIn), with the final segment's S bit carrying the status in place
// of a trailing Response PDU. The Response PDU itself is reserved for
// non-data completions and CHECK CONDITION's sense bytes (§4.7, §6).
func (c *Connection) sendSCSIResponse(req *pdu.PDU, res scsi.Result) {
	if res.Status == scsi.StatusGood && len(res.DataIn) > 0 {
		c.sendDataIn(req, res.DataIn)
		return
	}

	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpSCSIResponse)
	resp.SetInitiatorTaskTag(req.InitiatorTaskTag())
	resp.BHS[2] = 0 // response: command completed at the target
	resp.BHS[3] = byte(res.Status)
	c.stampResponse(resp)

	if res.Status == scsi.StatusCheckCondition {
		senseBytes := res.Sense.Bytes(0)
		out := make([]byte, 2+len(senseBytes))
		binary.BigEndian.PutUint16(out[0:2], uint16(len(senseBytes)))
		copy(out[2:], senseBytes)
		resp.Data = out
	}
	c.writePDU(resp)
}

// sendDataIn ships a read-direction payload as SCSI Data-In PDUs (opcode
// 0x25), chunked to the negotiated MaxRecvDataSegmentLength (§4.1, §6's
// numeric reconciliation table) so no segment exceeds what the initiator
// declared it can receive. DataSN/BufferOffset are set per §3's per-task
// data-PDU-SN model; the final segment sets F=1 and the S bit (status
// included) with the GOOD status and the one StatSN this command consumes,
// so no separate trailing SCSI Response follows it.
func (c *Connection) sendDataIn(req *pdu.PDU, data []byte) {
	chunk := c.opts.MaxDataSegmentLen
	if chunk == 0 {
		chunk = 8192
	}
	itt := req.InitiatorTaskTag()
	lun := req.LUN()
	total := uint32(len(data))

	for offset, dataSN := uint32(0), uint32(0); ; dataSN++ {
		end := offset + chunk
		last := end >= total
		if last {
			end = total
		}

		p := &pdu.PDU{}
		p.SetOpcode(pdu.OpSCSIDataIn)
		p.SetLUN(lun)
		p.SetInitiatorTaskTag(itt)
		p.SetTargetTransferTag(0xFFFFFFFF)
		p.SetDataSN(dataSN)
		p.SetBufferOffset(offset)
		p.Data = data[offset:end]
		p.SetFinal(last)

		if last {
			p.BHS[1] |= 0x01 // S bit: status field valid, no trailing SCSI Response
			p.BHS[3] = byte(scsi.StatusGood)
			c.stampResponse(p)
			c.writePDU(p)
			return
		}
		c.stampCmdWindow(p)
		c.writePDU(p)
		offset = end
	}
}

// lunFromWire decodes the 8-byte wire LUN field's peripheral-device
// addressing form (SAM-3), the inverse of scsi's encodeLUN.
func lunFromWire(b [8]byte) uint64 {
	if b[0] == 0 {
		return uint64(b[1])
	}
	return uint64(binary.BigEndian.Uint16(b[0:2]) & 0x3FFF)
}
