package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSectionGetValueAndGetValueM(t *testing.T) {
	s := NewSection(SectionLogicalUnit, 0, "LogicalUnit0")
	s.AddItem("Mapping", "1", "1")
	s.AddItem("Mapping", "2", "1")

	require.Equal(t, 2, s.Count("Mapping"))

	v, ok := s.GetValue("Mapping", 0)
	require.True(t, ok)
	require.Equal(t, "1", v)

	v, ok = s.GetValueM("Mapping", 1, 1)
	require.True(t, ok)
	require.Equal(t, "1", v)

	_, ok = s.GetValue("Mapping", 2)
	require.False(t, ok)

	_, ok = s.GetValueM("Mapping", 0, 5)
	require.False(t, ok)
}

func TestSectionAllValuesAndAllFields(t *testing.T) {
	s := NewSection(SectionInitiatorGroup, 0, "InitiatorGroup0")
	s.AddItem("InitiatorName", "iqn.initiator1")
	s.AddItem("InitiatorName", "iqn.initiator2")
	s.AddItem("Netmask", "192.168.1.0/24")

	require.Equal(t, []string{"iqn.initiator1", "iqn.initiator2"}, s.AllValues("InitiatorName"))
	require.Equal(t, [][]string{{"iqn.initiator1"}, {"iqn.initiator2"}}, s.AllFields("InitiatorName"))
	require.Empty(t, s.AllValues("NoSuchKey"))
}

func TestSectionTypeString(t *testing.T) {
	require.Equal(t, "LogicalUnit", SectionLogicalUnit.String())
	require.Equal(t, "Unknown", SectionType(99).String())
}
