package session

import (
	"sync"
)

// key identifies a session by the (ISID, TargetName) pair the login
// negotiator correlates against during MC/S attach and reinstatement
// (§4.4).
type key struct {
	isid   [6]byte
	target string
}

// Registry is the process-wide session table, the explicit runtime-context
// handle §9 calls for in place of a global singleton: reachable from the
// acceptor and every connection worker, with interior mutability behind its
// own lock rather than ambient globals.
type Registry struct {
	mu       sync.Mutex
	byKey    map[key]*Session
	byTSIH   map[uint16]*Session
	nextTSIH uint16
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[key]*Session),
		byTSIH: make(map[uint16]*Session),
	}
}

// Lookup finds an existing session by (ISID, target), for MC/S attach and
// reinstatement decisions.
func (r *Registry) Lookup(isid [6]byte, target string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[key{isid, target}]
	return s, ok
}

// LookupTSIH finds a session by its assigned TSIH.
func (r *Registry) LookupTSIH(tsih uint16) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byTSIH[tsih]
	return s, ok
}

// Create assigns a fresh, process-unique non-zero TSIH and registers a new
// session, reinstating (closing) any pre-existing session for the same
// (ISID, target) first — §4.4's "login with new TSIH=0 … causes session
// reinstatement".
func (r *Registry) Create(isid [6]byte, target, initiator string, commandWindow, expCmdSN uint32) *Session {
	r.mu.Lock()
	k := key{isid, target}
	prior := r.byKey[k]

	tsih := r.allocTSIHLocked()
	s := NewSession(isid, tsih, target, initiator, commandWindow, expCmdSN)
	r.byKey[k] = s
	r.byTSIH[tsih] = s
	r.mu.Unlock()

	if prior != nil {
		const asyncReasonSessionReinstated byte = 0x01
		prior.Reinstate(asyncReasonSessionReinstated)
		r.mu.Lock()
		delete(r.byTSIH, prior.TSIH)
		r.mu.Unlock()
	}
	return s
}

// allocTSIHLocked returns the next non-zero TSIH not currently in use.
// Callers must hold r.mu.
func (r *Registry) allocTSIHLocked() uint16 {
	for {
		r.nextTSIH++
		if r.nextTSIH == 0 {
			r.nextTSIH = 1
		}
		if _, used := r.byTSIH[r.nextTSIH]; !used {
			return r.nextTSIH
		}
	}
}

// Remove deregisters a closed session. It only removes entries that still
// point at s: a reinstated session's OnClose hook can fire after Create has
// already overwritten the registry's entry with the replacement session, and
// Remove must not clobber that replacement.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{s.ISID, s.TargetName}
	if cur, ok := r.byKey[k]; ok && cur == s {
		delete(r.byKey, k)
	}
	if cur, ok := r.byTSIH[s.TSIH]; ok && cur == s {
		delete(r.byTSIH, s.TSIH)
	}
}

// Count returns the number of active sessions. Nothing compares it against
// MaxSessions: login admits a new session whatever the count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTSIH)
}
