package aclpolicy

import "testing"

func TestMatchNetmaskTable(t *testing.T) {
	cases := []struct {
		spec, addr string
		want       bool
	}{
		{"ALL", "10.0.0.5", true},
		{"10.0.0.5", "10.0.0.5", true},
		{"10.0.0.5", "10.0.0.6", false},
		{"10.0.0.0/24", "10.0.0.200", true},
		{"10.0.0.0/24", "10.0.1.1", false},
		{"10.0.0.0/255.255.255.0", "10.0.0.42", true},
		{"10.0.0.0/255.255.255.0", "10.0.1.42", false},
		{"fe80::1", "fe80::1", true},
		{"fe80::/64", "fe80::abcd", true},
		{"fe80::/64", "fe81::abcd", false},
		{"::1/128", "::1", true},
	}
	for _, c := range cases {
		if got := MatchNetmask(c.spec, c.addr); got != c.want {
			t.Errorf("MatchNetmask(%q, %q) = %v, want %v", c.spec, c.addr, got, c.want)
		}
	}
}

func TestAllowNegationTakesPrecedence(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&InitiatorGroup{
		Tag:      1,
		Names:    []string{"ALL", "!iqn.test:blocked"},
		Netmasks: []string{"ALL"},
	})
	mappings := []Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}

	if !reg.Allow(mappings, 1, "iqn.test:ok", "1.2.3.4") {
		t.Error("expected allowed initiator to pass")
	}
	if reg.Allow(mappings, 1, "iqn.test:blocked", "1.2.3.4") {
		t.Error("expected negated initiator to be denied despite ALL")
	}
}

func TestAllowRequiresPortalGroupMatch(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&InitiatorGroup{Tag: 1, Names: []string{"ALL"}, Netmasks: []string{"ALL"}})
	mappings := []Mapping{{PortalGroupTag: 2, InitiatorGroupTag: 1}}

	if reg.Allow(mappings, 1, "iqn.test:x", "1.2.3.4") {
		t.Error("expected no match for a different portal group tag")
	}
}

func TestAllowRequiresNetmaskMatch(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&InitiatorGroup{Tag: 1, Names: []string{"ALL"}, Netmasks: []string{"192.168.1.0/24"}})
	mappings := []Mapping{{PortalGroupTag: 1, InitiatorGroupTag: 1}}

	if reg.Allow(mappings, 1, "iqn.test:x", "10.0.0.1") {
		t.Error("expected address outside netmask to be denied")
	}
}
