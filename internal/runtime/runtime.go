// Package runtime holds the explicit runtime-context handle that replaces
// the istgt global singleton (§9): a single struct reachable from the
// acceptor, connection workers and LU workers, with interior mutability kept
// behind per-field locks rather than ambient globals.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/httpapi"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/metrics"
	"github.com/piscisaureus/istgt/internal/portal"
	"github.com/piscisaureus/istgt/internal/session"
	"github.com/piscisaureus/istgt/internal/task"
)

// RunState is the coarse-grained process state enum of §5, read under the
// Runtime's mutex via State().
type RunState int32

const (
	StateInitialized RunState = iota
	StateRunning
	StateExiting
	StateShutdown
)

// Runtime is the single registry of portals, initiator groups, LUs and
// sessions reachable from the acceptor, connection workers, and LU workers
// (§9). ID is a process-instance identifier for correlating log lines across
// a restart, not a protocol field.
type Runtime struct {
	ID string

	Targets      *lu.Registry
	Sessions     *session.Registry
	ACL          *aclpolicy.Registry
	PortalGroups []*portal.Group
	metrics      *metrics.Metrics

	mu     sync.Mutex
	state  RunState
	queues map[queueKey]*task.Queue

	ctx    context.Context
	cancel context.CancelFunc
}

type queueKey struct {
	target string
	lun    uint64
}

// New creates a Runtime in StateInitialized.
func New() *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		ID:       uuid.NewString(),
		Targets:  lu.NewRegistry(),
		Sessions: session.NewRegistry(),
		ACL:      aclpolicy.NewRegistry(),
		metrics:  metrics.New(),
		queues:   make(map[queueKey]*task.Queue),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SessionCount returns the number of sessions currently registered, for the
// operator /status endpoint.
func (r *Runtime) SessionCount() int { return r.Sessions.Count() }

// TargetCount returns the number of configured targets.
func (r *Runtime) TargetCount() int { return r.Targets.Count() }

// TargetStatuses reports each configured target's online state and active
// session count (§3), for the operator /status endpoint.
func (r *Runtime) TargetStatuses() []httpapi.TargetStatus {
	targets := r.Targets.All()
	out := make([]httpapi.TargetStatus, 0, len(targets))
	for _, t := range targets {
		out = append(out, httpapi.TargetStatus{
			Name:           t.Name,
			Online:         t.Online,
			ActiveSessions: t.ActiveSessions(),
		})
	}
	return out
}

// Ready reports whether the runtime has finished initialization and is
// accepting connections, for the operator /readyz probe.
func (r *Runtime) Ready() bool { return r.State() == StateRunning }

func (r *Runtime) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start transitions Initialized → Running.
func (r *Runtime) Start() { r.setState(StateRunning) }

// Shutdown transitions to Exiting, cancels the shared context (every
// connection and LU worker observes this between PDUs per §9), closes every
// LU queue and transitions to Shutdown. It returns without waiting for those
// workers to exit.
func (r *Runtime) Shutdown() {
	r.setState(StateExiting)
	r.cancel()
	r.mu.Lock()
	for _, q := range r.queues {
		q.Close()
	}
	r.mu.Unlock()
	r.setState(StateShutdown)
}

// Context is canceled when Shutdown is called; connection and LU workers
// select on it to begin orderly teardown.
func (r *Runtime) Context() context.Context { return r.ctx }

// ACLRegistry returns the shared initiator-group registry connections
// consult during login (§4.3).
func (r *Runtime) ACLRegistry() *aclpolicy.Registry { return r.ACL }

// Metrics returns the process-wide Prometheus collector set, for the
// connection and task layers to record against and for the operator HTTP
// surface to scrape.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// LookupTarget resolves a target by its IQN for the login Target Name key.
func (r *Runtime) LookupTarget(name string) (*lu.Target, bool) {
	return r.Targets.Lookup(name)
}

// AllTargets returns every configured target, for a discovery session's
// SendTargets=All enumeration (§8 scenario S1).
func (r *Runtime) AllTargets() []*lu.Target {
	return r.Targets.All()
}

// PortalAddrs returns the "host:port" address of every portal in the
// PortalGroup tagged tag, in configuration order, for a SendTargets
// response's TargetAddress values.
func (r *Runtime) PortalAddrs(tag int) []string {
	for _, g := range r.PortalGroups {
		if g.Tag != tag {
			continue
		}
		addrs := make([]string, len(g.Portals))
		for i, p := range g.Portals {
			addrs[i] = p.Addr()
		}
		return addrs
	}
	return nil
}

// QueueFor returns (creating if necessary) the single FIFO worker queue for
// one LU, shared by every session/connection that reaches it (§5: "Each LU
// has one task-execution worker").
func (r *Runtime) QueueFor(target *lu.Target, lun uint64) (*task.Queue, error) {
	spec, ok := target.LUN(lun)
	if !ok {
		return nil, fmt.Errorf("target %q has no LUN %d", target.Name, lun)
	}
	k := queueKey{target: target.Name, lun: lun}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[k]; ok {
		return q, nil
	}
	q := task.NewQueue(r.ctx, target, spec, r.metrics)
	r.queues[k] = q
	return q, nil
}
