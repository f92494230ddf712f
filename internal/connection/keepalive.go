package connection

import (
	"context"
	"sync"
	"time"

	"github.com/piscisaureus/istgt/internal/pdu"
)

// keepalive sends an unsolicited NOP-In once a connection has gone quiet for
// longer than interval (§4.5): "if no traffic for NopInInterval seconds,
// send NOP-In with ITT=0xFFFFFFFF... After Timeout seconds without any
// progress, the connection is torn down." The teardown half of that rule is
// already handled by Connection's read deadline; keepalive only owns the
// ping.
type keepalive struct {
	c        *Connection
	interval time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

func newKeepalive(c *Connection, interval time.Duration) *keepalive {
	return &keepalive{c: c, interval: interval, done: make(chan struct{})}
}

// start arms the ping loop. A non-positive interval disables keepalives
// entirely (matches NopInInterval=0 meaning "disabled" in the config layer).
func (k *keepalive) start(ctx context.Context) {
	if k.interval <= 0 {
		return
	}
	k.mu.Lock()
	k.timer = time.NewTimer(k.interval)
	k.mu.Unlock()
	go k.run(ctx)
}

func (k *keepalive) run(ctx context.Context) {
	for {
		k.mu.Lock()
		timer := k.timer
		k.mu.Unlock()
		if timer == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-k.done:
			return
		case <-timer.C:
			k.c.sendUnsolicitedNopIn()
			k.reset()
		}
	}
}

func (k *keepalive) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.timer == nil {
		return
	}
	k.timer.Reset(k.interval)
}

// noteActivity postpones the next unsolicited ping; call on every PDU the
// connection successfully reads so the ping only fires on a genuinely idle
// link.
func (k *keepalive) noteActivity() {
	if k.interval <= 0 {
		return
	}
	k.reset()
}

func (k *keepalive) stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	close(k.done)
	if k.timer != nil {
		k.timer.Stop()
	}
}

// sendUnsolicitedNopIn builds the ping PDU referenced by keepalive.run; kept
// on Connection (not keepalive) since it shares writePDU/stampResponse with
// every other response path.
func (c *Connection) sendUnsolicitedNopIn() {
	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpNopIn)
	resp.SetInitiatorTaskTag(0xFFFFFFFF)
	resp.SetTargetTransferTag(0xFFFFFFFF)
	resp.SetStatSN(c.peekStatSN()) // unsolicited: StatSN carried but not advanced
	if c.sess != nil {
		resp.SetExpCmdSN(c.sess.ExpCmdSN())
		resp.SetMaxCmdSN(c.sess.MaxCmdSN())
	}
	c.writePDU(resp)
}
