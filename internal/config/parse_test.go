package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBytesGlobalAndTaggedSections(t *testing.T) {
	src := []byte(`
MaxSessions 16
NodeBase iqn.2026-01.test.istgt

[PortalGroup1]
Portal DA1 127.0.0.1:3260
Portal DA2 127.0.0.1:3261

[InitiatorGroup2]
InitiatorName iqn.initiator1
InitiatorName ALL
Netmask 192.168.1.0/24

[LogicalUnit0]
TargetName iqn.2026-01.test.istgt:disk0
Mapping 1 2
`)

	tree, err := ParseBytes(src)
	require.NoError(t, err)

	require.Equal(t, 16, tree.MaxSessions())
	require.Equal(t, "iqn.2026-01.test.istgt", tree.NodeBase())

	pg, ok := tree.ByTag(SectionPortalGroup, 1)
	require.True(t, ok)
	require.Equal(t, 2, pg.Count("Portal"))
	v, ok := pg.GetValueM("Portal", 0, 1)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:3260", v)

	ig, ok := tree.ByTag(SectionInitiatorGroup, 2)
	require.True(t, ok)
	require.Equal(t, []string{"iqn.initiator1", "ALL"}, ig.AllValues("InitiatorName"))

	lu, ok := tree.ByTag(SectionLogicalUnit, 0)
	require.True(t, ok)
	name, _ := lu.GetValue("TargetName", 0)
	require.Equal(t, "iqn.2026-01.test.istgt:disk0", name)
}

func TestParseBytesRepeatableKeysOnSameLine(t *testing.T) {
	src := []byte(`
[AuthGroup1]
Auth secretOne
Auth iqn.initiator1 secretTwo
`)
	tree, err := ParseBytes(src)
	require.NoError(t, err)

	ag, ok := tree.ByTag(SectionAuthGroup, 1)
	require.True(t, ok)
	require.Equal(t, 2, ag.Count("Auth"))
	require.Equal(t, [][]string{{"secretOne"}, {"iqn.initiator1", "secretTwo"}}, ag.AllFields("Auth"))
}

func TestParseBytesRejectsMalformedSectionType(t *testing.T) {
	src := []byte(`
[NotASection5]
Foo bar
`)
	_, err := ParseBytes(src)
	require.Error(t, err)
}

func TestParseBytesDefaultsWhenKeyAbsent(t *testing.T) {
	tree, err := ParseBytes([]byte(``))
	require.NoError(t, err)
	require.Equal(t, 32, tree.MaxSessions())
	require.Equal(t, 128, tree.QueueDepth())
}
