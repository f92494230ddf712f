package acceptor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/piscisaureus/istgt/internal/portal"
)

func TestAcceptorDeliversAcceptedConnections(t *testing.T) {
	g := portal.NewGroup(7)
	g.Add("127.0.0.1", 0)
	require.NoError(t, g.ListenAll())
	defer g.CloseAll()

	a := New([]*portal.Group{g})
	a.idleTick = 20 * time.Millisecond

	accepted := make(chan Accepted, 1)
	done := make(chan struct{})
	go a.Serve(done, func(acc Accepted) { accepted <- acc })

	addr := g.Portals[0].Listener().Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case acc := <-accepted:
		require.Equal(t, 7, acc.PortalTag)
		require.NotNil(t, acc.Conn)
		acc.Conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted connection")
	}

	close(done)
}

func TestAcceptorWakeupOpExitStopsServe(t *testing.T) {
	g := portal.NewGroup(1)
	g.Add("127.0.0.1", 0)
	require.NoError(t, g.ListenAll())
	defer g.CloseAll()

	a := New([]*portal.Group{g})
	a.idleTick = 20 * time.Millisecond

	serveDone := make(chan struct{})
	done := make(chan struct{})
	go func() {
		a.Serve(done, func(Accepted) {})
		close(serveDone)
	}()

	a.Wakeup(Command{Op: OpExit})

	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after OpExit")
	}
}

func TestAcceptorDoneChannelStopsServe(t *testing.T) {
	g := portal.NewGroup(1)
	g.Add("127.0.0.1", 0)
	require.NoError(t, g.ListenAll())
	defer g.CloseAll()

	a := New([]*portal.Group{g})
	a.idleTick = 20 * time.Millisecond

	serveDone := make(chan struct{})
	done := make(chan struct{})
	go func() {
		a.Serve(done, func(Accepted) {})
		close(serveDone)
	}()

	close(done)

	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after done closed")
	}
}
