package task

// r2tState tracks the per-task R2T/DataSN sequencing §4.5 requires: how much
// of ExpectedTransferLength has been solicited versus received, and the
// outstanding R2T count a connection must cap at MaxOutstandingR2T.
type r2tState struct {
	nextR2TSN       uint32
	nextDataSN      uint32
	offsetSolicited uint32 // bytes already covered by an issued R2T
	outstanding     int
}

// Params is the negotiated subset of login operational parameters the R2T
// engine consults (§4.3 Key/Value table).
type Params struct {
	MaxOutstandingR2T uint16
	MaxBurstLength    uint32
	FirstBurstLength  uint32
	InitialR2T        bool
}

// NextR2T decides whether another R2T should be issued for t, given the
// bytes already received via unsolicited Data-Out (firstBurstReceived) and
// Params. It returns ok=false when no further R2T is needed right now
// (outstanding cap reached, or the full transfer has been solicited).
func (t *Task) NextR2T(p Params, firstBurstReceived uint32) (r2tSN uint32, bufferOffset uint32, desiredLength uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.r2t.outstanding >= int(p.MaxOutstandingR2T) {
		return 0, 0, 0, false
	}
	if t.r2t.offsetSolicited == 0 && !p.InitialR2T && firstBurstReceived > 0 {
		t.r2t.offsetSolicited = firstBurstReceived
	}
	remaining := t.ExpectedTransferLength - t.r2t.offsetSolicited
	if remaining == 0 {
		return 0, 0, 0, false
	}

	want := remaining
	if p.MaxBurstLength > 0 && want > p.MaxBurstLength {
		want = p.MaxBurstLength
	}

	r2tSN = t.r2t.nextR2TSN
	bufferOffset = t.r2t.offsetSolicited
	desiredLength = want

	t.r2t.nextR2TSN++
	t.r2t.offsetSolicited += want
	t.r2t.outstanding++
	return r2tSN, bufferOffset, desiredLength, true
}

// DataOutReceived records one Data-Out PDU's payload at its buffer offset
// and DataSN, retiring one outstanding R2T when the segment's F bit marks
// the end of a solicited burst.
func (t *Task) DataOutReceived(offset uint32, data []byte, final bool) {
	t.AppendWriteData(offset, data)
	if !final {
		return
	}
	t.mu.Lock()
	if t.r2t.outstanding > 0 {
		t.r2t.outstanding--
	}
	t.mu.Unlock()
}

// TransferComplete reports whether every byte of ExpectedTransferLength has
// arrived.
func (t *Task) TransferComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(len(t.writeData)) >= t.ExpectedTransferLength
}
