// Package portal implements §4.2's listen-socket layer: a Portal binds one
// (host, port) tuple to a stream listener; a PortalGroup is the ordered set
// of Portals sharing a tag that §4.3's access policy matches against.
package portal

import (
	"fmt"
	"net"
	"strconv"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// Portal is one configured listen address within a PortalGroup (§3). Host
// "" binds the wildcard address, per §4.2.
type Portal struct {
	Host string
	Port uint16
	Tag  int

	listener net.Listener
}

// Addr returns the "host:port" string this portal was configured with.
func (p *Portal) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// Listen resolves and binds p's listen socket. Calling Listen twice on an
// already-bound portal is a no-op returning the existing listener.
func (p *Portal) Listen() (net.Listener, error) {
	if p.listener != nil {
		return p.listener, nil
	}
	ln, err := net.Listen("tcp", p.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen on portal %s (tag %d): %w: %w", p.Addr(), p.Tag, err, istgterr.ErrConfig)
	}
	p.listener = ln
	return ln, nil
}

// Listener returns the bound listener, or nil if Listen hasn't been called.
func (p *Portal) Listener() net.Listener { return p.listener }

// Close closes the portal's listen socket, if bound.
func (p *Portal) Close() error {
	if p.listener == nil {
		return nil
	}
	err := p.listener.Close()
	p.listener = nil
	return err
}

// Group is an ordered list of Portals sharing a PortalGroup tag (§3). Order
// matters for discovery's SendTargets response (§8 S1), which lists portals
// in configuration order.
type Group struct {
	Tag     int
	Portals []*Portal
}

// NewGroup returns an empty Group with the given tag.
func NewGroup(tag int) *Group { return &Group{Tag: tag} }

// Add appends a portal to the group, stamping it with the group's tag.
func (g *Group) Add(host string, port uint16) *Portal {
	p := &Portal{Host: host, Port: port, Tag: g.Tag}
	g.Portals = append(g.Portals, p)
	return p
}

// ListenAll binds every portal in the group, closing any already-bound
// listeners on first failure so a partial bind doesn't leak sockets.
func (g *Group) ListenAll() error {
	for i, p := range g.Portals {
		if _, err := p.Listen(); err != nil {
			for j := 0; j < i; j++ {
				_ = g.Portals[j].Close()
			}
			return err
		}
	}
	return nil
}

// CloseAll closes every bound listener in the group.
func (g *Group) CloseAll() error {
	var first error
	for _, p := range g.Portals {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
