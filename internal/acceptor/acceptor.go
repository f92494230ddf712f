// Package acceptor implements §4.2's accept loop and §9's cooperative
// shutdown: a readiness multiplexer over a set of listen sockets plus a
// wakeup channel, with a 5-second idle tick. The control-pipe's single
// framed opcode byte plus 4-byte BE argument (§6 "control wakeup", §9
// "exit via thread cancel-and-join") is reimplemented as a
// typed Go channel message rather than a raw pipe: Go's select already gives
// the acceptor "await readiness on N sockets with a wakeup channel and a
// timeout" without reaching for poll/kqueue directly.
package acceptor

import (
	"errors"
	"net"
	"time"

	"github.com/piscisaureus/istgt/internal/logger"
	"github.com/piscisaureus/istgt/internal/portal"
)

// Opcode is the single-byte control-wakeup command (§6).
type Opcode byte

const (
	// OpExit tears the accept loop down and transitions the process to
	// EXITING, mirroring the control pipe's 'E' command.
	OpExit Opcode = 'E'
)

// Command is one control-wakeup message: an opcode plus its 4-byte BE
// argument (reserved for OpExit; future opcodes may use it).
type Command struct {
	Op  Opcode
	Arg uint32
}

// Accepted is one freshly accepted connection together with the tag of the
// portal it arrived on, which gates §4.3 access control.
type Accepted struct {
	Conn      net.Conn
	PortalTag int
}

// Acceptor multiplexes Accept() readiness across every listener bound by the
// configured portal groups plus a control-wakeup channel (§4.2).
type Acceptor struct {
	groups []*portal.Group
	wakeup chan Command

	// idleTick is the readiness-poll idle interval (§4.2 default 5s); each
	// listener's Accept runs on its own goroutine since net.Listener has no
	// portable multi-socket select, so the tick only governs how promptly a
	// wakeup Command is observed between accepts.
	idleTick time.Duration
}

// New returns an Acceptor over the listeners already bound in groups. Call
// ListenAll on each group before Serve: Serve skips any portal that has no
// listener.
func New(groups []*portal.Group) *Acceptor {
	return &Acceptor{
		groups:   groups,
		wakeup:   make(chan Command, 1),
		idleTick: 5 * time.Second,
	}
}

// Wakeup posts a control command, unblocking Serve promptly instead of
// waiting for the idle tick.
func (a *Acceptor) Wakeup(cmd Command) {
	select {
	case a.wakeup <- cmd:
	default:
		// a pending command is already queued; OpExit is idempotent.
	}
}

// Serve accepts connections from every bound listener, delivering them to
// onAccept, until done is closed or an OpExit command arrives on the wakeup
// channel. Each listener runs its Accept loop on its own goroutine (the
// portable equivalent of awaiting readiness on N sockets); Serve itself just
// waits for the stop signal and then closes every listener, which unblocks
// the per-listener Accept calls with use-of-closed-network-connection.
func (a *Acceptor) Serve(done <-chan struct{}, onAccept func(Accepted)) {
	results := make(chan Accepted)
	stop := make(chan struct{})

	for _, g := range a.groups {
		for _, p := range g.Portals {
			ln := p.Listener()
			if ln == nil {
				continue
			}
			tag := p.Tag
			go acceptLoop(ln, tag, results, stop)
		}
	}

	ticker := time.NewTicker(a.idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			close(stop)
			a.closeListeners()
			return
		case cmd := <-a.wakeup:
			if cmd.Op == OpExit {
				close(stop)
				a.closeListeners()
				return
			}
		case acc := <-results:
			onAccept(acc)
		case <-ticker.C:
			// idle tick: nothing to do but give Serve a chance to observe
			// done/wakeup even under zero accept traffic.
		}
	}
}

func (a *Acceptor) closeListeners() {
	for _, g := range a.groups {
		if err := g.CloseAll(); err != nil {
			logger.Warn("error closing portal group listeners", "tag", g.Tag, "error", err)
		}
	}
}

func acceptLoop(ln net.Listener, portalTag int, results chan<- Accepted, stop <-chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			logger.Warn("accept failed", "portal_tag", portalTag, "error", err)
			continue
		}
		select {
		case results <- Accepted{Conn: conn, PortalTag: portalTag}:
		case <-stop:
			_ = conn.Close()
			return
		}
	}
}
