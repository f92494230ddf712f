package connection

import (
	"sort"
	"testing"

	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/metrics"
	"github.com/piscisaureus/istgt/internal/task"
	"github.com/stretchr/testify/require"
)

// fakeDiscoveryRuntime backs a *Connection in tests that only exercise
// discoverTargets, not the full accept/login/dispatch path.
type fakeDiscoveryRuntime struct {
	targets []*lu.Target
	portals map[int][]string
	acl     *aclpolicy.Registry
}

func (f *fakeDiscoveryRuntime) LookupTarget(string) (*lu.Target, bool)            { return nil, false }
func (f *fakeDiscoveryRuntime) QueueFor(*lu.Target, uint64) (*task.Queue, error)  { return nil, nil }
func (f *fakeDiscoveryRuntime) ACLRegistry() *aclpolicy.Registry                 { return f.acl }
func (f *fakeDiscoveryRuntime) Metrics() *metrics.Metrics                        { return nil }
func (f *fakeDiscoveryRuntime) AllTargets() []*lu.Target                         { return f.targets }
func (f *fakeDiscoveryRuntime) PortalAddrs(tag int) []string                     { return f.portals[tag] }

func TestDiscoverTargetsListsOnlyTargetsVisibleOnThisPortalAndInitiator(t *testing.T) {
	acl := aclpolicy.NewRegistry()
	acl.Add(&aclpolicy.InitiatorGroup{Tag: 1, Names: []string{"ALL"}, Netmasks: []string{"0.0.0.0/0"}})

	visible := lu.NewTarget("iqn.test:visible", 1, lu.UnitTypeDisk)
	visible.Mappings = []aclpolicy.Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}

	hidden := lu.NewTarget("iqn.test:hidden", 2, lu.UnitTypeDisk)
	hidden.Mappings = []aclpolicy.Mapping{{PortalGroupTag: 2, InitiatorGroupTag: 1}} // different portal group

	rt := &fakeDiscoveryRuntime{
		targets: []*lu.Target{visible, hidden},
		portals: map[int][]string{1: {"10.0.0.2:3260"}, 2: {"10.0.0.3:3260"}},
		acl:     acl,
	}

	c := &Connection{
		rt:    rt,
		cfg:   Config{PortalTag: 1},
		login: &LoginState{InitiatorName: "iqn.test:init1"},
	}

	reply := c.discoverTargets("All", "10.0.0.2")

	var names []string
	var addrs []string
	for _, kv := range reply {
		switch kv.Key {
		case "TargetName":
			names = append(names, kv.Value)
		case "TargetAddress":
			addrs = append(addrs, kv.Value)
		}
	}
	sort.Strings(names)

	require.Equal(t, []string{"iqn.test:visible"}, names)
	require.Equal(t, []string{"10.0.0.2:3260,1"}, addrs)
}

func TestDiscoverTargetsFiltersByExactNameWhenNotAll(t *testing.T) {
	acl := aclpolicy.NewRegistry()
	acl.Add(&aclpolicy.InitiatorGroup{Tag: 1, Names: []string{"ALL"}, Netmasks: []string{"0.0.0.0/0"}})

	a := lu.NewTarget("iqn.test:a", 1, lu.UnitTypeDisk)
	a.Mappings = []aclpolicy.Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}
	b := lu.NewTarget("iqn.test:b", 2, lu.UnitTypeDisk)
	b.Mappings = []aclpolicy.Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}

	rt := &fakeDiscoveryRuntime{
		targets: []*lu.Target{a, b},
		portals: map[int][]string{1: {"10.0.0.2:3260"}},
		acl:     acl,
	}
	c := &Connection{rt: rt, cfg: Config{PortalTag: 1}, login: &LoginState{InitiatorName: "iqn.test:init1"}}

	reply := c.discoverTargets("iqn.test:b", "10.0.0.2")
	require.Len(t, reply, 2)
	require.Equal(t, "iqn.test:b", reply[0].Value)
}

func TestDiscoverTargetsDeniesInitiatorNotInAnyMatchingGroup(t *testing.T) {
	acl := aclpolicy.NewRegistry()
	acl.Add(&aclpolicy.InitiatorGroup{Tag: 1, Names: []string{"iqn.test:allowed"}, Netmasks: []string{"0.0.0.0/0"}})

	target := lu.NewTarget("iqn.test:a", 1, lu.UnitTypeDisk)
	target.Mappings = []aclpolicy.Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}

	rt := &fakeDiscoveryRuntime{
		targets: []*lu.Target{target},
		portals: map[int][]string{1: {"10.0.0.2:3260"}},
		acl:     acl,
	}
	c := &Connection{rt: rt, cfg: Config{PortalTag: 1}, login: &LoginState{InitiatorName: "iqn.test:stranger"}}

	require.Empty(t, c.discoverTargets("All", "10.0.0.2"))
}
