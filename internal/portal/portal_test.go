package portal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortalListenAndAddr(t *testing.T) {
	p := &Portal{Host: "127.0.0.1", Port: 0, Tag: 1}
	require.Equal(t, "127.0.0.1:0", p.Addr())

	ln, err := p.Listen()
	require.NoError(t, err)
	require.NotNil(t, ln)
	defer p.Close()

	// Listen is idempotent: a second call returns the same listener.
	ln2, err := p.Listen()
	require.NoError(t, err)
	require.Same(t, ln, ln2)
}

func TestPortalCloseWithoutListenIsNoop(t *testing.T) {
	p := &Portal{Host: "127.0.0.1", Port: 0, Tag: 1}
	require.NoError(t, p.Close())
}

func TestGroupListenAllStampsTagAndBindsEveryPortal(t *testing.T) {
	g := NewGroup(3)
	p1 := g.Add("127.0.0.1", 0)
	require.Equal(t, 3, p1.Tag)

	require.NoError(t, g.ListenAll())
	defer g.CloseAll()

	for _, p := range g.Portals {
		require.NotNil(t, p.Listener())
	}
}

func TestGroupListenAllRollsBackPartialBind(t *testing.T) {
	g := NewGroup(1)
	g.Add("127.0.0.1", 0)
	// An invalid host forces the second bind to fail; ListenAll must close
	// the first portal's listener rather than leaking it.
	bad := g.Add("not-a-real-host.invalid", 1)
	_ = bad

	err := g.ListenAll()
	require.Error(t, err)
	for _, p := range g.Portals {
		require.Nil(t, p.Listener())
	}
}

func TestGroupCloseAllIsIdempotent(t *testing.T) {
	g := NewGroup(1)
	g.Add("127.0.0.1", 0)
	require.NoError(t, g.ListenAll())
	require.NoError(t, g.CloseAll())
	// closing again is a no-op since listeners are nil after Close
	require.NoError(t, g.CloseAll())
}
