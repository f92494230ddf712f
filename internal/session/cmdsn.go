package session

import (
	"fmt"
	"sync"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// cmdsnWindow holds the [ExpCmdSN, MaxCmdSN] command window and a reorder
// buffer that delivers accepted CmdSNs to the LU layer strictly in order
// (§4.4, §5, testable property 1), even when they arrive out of order or
// across multiple MC/S connections.
type cmdsnWindow struct {
	mu       sync.Mutex
	expCmdSN uint32
	window   uint32 // command_window: MaxCmdSN = ExpCmdSN + window - 1
	held     map[uint32]bool
	serviced map[uint32]bool // already-delivered CmdSNs, for replay detection
}

func newCmdsnWindow(expCmdSN, window uint32) *cmdsnWindow {
	if window == 0 {
		window = 1
	}
	return &cmdsnWindow{
		expCmdSN: expCmdSN,
		window:   window,
		held:     make(map[uint32]bool),
		serviced: make(map[uint32]bool),
	}
}

func (w *cmdsnWindow) ExpCmdSN() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expCmdSN
}

func (w *cmdsnWindow) MaxCmdSN() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expCmdSN + w.window - 1
}

// Accept records cmdSN's arrival and returns the run of now-deliverable
// CmdSNs in ascending order (possibly empty, possibly more than one if
// earlier gaps were just filled). Immediate commands (§4.4: "do not advance
// expectation") are always immediately deliverable and never enter the
// window accounting.
func (w *cmdsnWindow) Accept(cmdSN uint32, immediate bool) (deliverable []uint32, expCmdSN, maxCmdSN uint32, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if immediate {
		return []uint32{cmdSN}, w.expCmdSN, w.expCmdSN + w.window - 1, nil
	}

	maxAllowed := w.expCmdSN + w.window - 1
	if w.serviced[cmdSN] {
		return nil, w.expCmdSN, maxAllowed, fmt.Errorf("cmdsn %d already serviced: %w", cmdSN, istgterr.ErrProtocol)
	}
	if seqGreater(cmdSN, maxAllowed) {
		return nil, w.expCmdSN, maxAllowed, fmt.Errorf("cmdsn %d exceeds window [%d,%d]: %w", cmdSN, w.expCmdSN, maxAllowed, istgterr.ErrProtocol)
	}
	if seqLess(cmdSN, w.expCmdSN) {
		// Below the window: a retransmit of an already-delivered command.
		return nil, w.expCmdSN, maxAllowed, nil
	}

	w.held[cmdSN] = true
	for w.held[w.expCmdSN] {
		delete(w.held, w.expCmdSN)
		w.serviced[w.expCmdSN] = true
		deliverable = append(deliverable, w.expCmdSN)
		w.expCmdSN++
	}
	return deliverable, w.expCmdSN, w.expCmdSN + w.window - 1, nil
}

// seqLess/seqGreater compare CmdSNs with RFC 3720 serial-number arithmetic
// (mod 2^32), since CmdSN wraps.
func seqLess(a, b uint32) bool    { return int32(a-b) < 0 }
func seqGreater(a, b uint32) bool { return int32(a-b) > 0 }
