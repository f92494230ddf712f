package config

import "strconv"

// Tree is the full parsed configuration: a flat sequence of sections (§6).
type Tree struct {
	Sections []*Section
}

// Global returns the (singleton) Global section, or an empty Section so
// every Global-key getter can fall through to its default.
func (t *Tree) Global() *Section {
	for _, s := range t.Sections {
		if s.Type == SectionGlobal {
			return s
		}
	}
	return NewSection(SectionGlobal, 0, "Global")
}

// ByType returns every section of the given type, in file order.
func (t *Tree) ByType(st SectionType) []*Section {
	var out []*Section
	for _, s := range t.Sections {
		if s.Type == st {
			out = append(out, s)
		}
	}
	return out
}

// ByTag returns the section of type st tagged tag, or ok=false.
func (t *Tree) ByTag(st SectionType, tag int) (*Section, bool) {
	for _, s := range t.Sections {
		if s.Type == st && s.Tag == tag {
			return s, true
		}
	}
	return nil, false
}

// globalDefaults is the §6 Global-key default table.
var globalDefaults = map[string]string{
	"NodeBase":                 "iqn.2007-09.jp.ne.peach.istgt",
	"MaxSessions":              "32",
	"MaxConnections":           "4",
	"MaxOutstandingR2T":        "16",
	"DefaultTime2Wait":         "2",
	"DefaultTime2Retain":       "20",
	"FirstBurstLength":         "65536",
	"MaxBurstLength":           "262144",
	"MaxRecvDataSegmentLength": "8192",
	"InitialR2T":               "Yes",
	"ImmediateData":            "Yes",
	"DataPDUInOrder":           "Yes",
	"DataSequenceInOrder":      "Yes",
	"ErrorRecoveryLevel":       "0",
	"Timeout":                  "60",
	"NopInInterval":            "20",
	"MaxR2T":                   "16",
	"DiscoveryAuthMethod":      "Auto",
	"DiscoveryAuthGroup":       "None",
	"QueueDepth":               "128",
}

func (t *Tree) globalString(key string) string {
	if v, ok := t.Global().GetValue(key, 0); ok {
		return v
	}
	return globalDefaults[key]
}

func (t *Tree) globalInt(key string) int {
	v := t.globalString(key)
	n, err := strconv.Atoi(v)
	if err != nil {
		n, _ = strconv.Atoi(globalDefaults[key])
	}
	return n
}

func (t *Tree) globalBool(key string) bool {
	v := t.globalString(key)
	return v == "Yes" || v == "yes" || v == "true" || v == "1"
}

// NodeBase is the IQN prefix used when a LogicalUnit section doesn't supply
// an explicit TargetName.
func (t *Tree) NodeBase() string { return t.globalString("NodeBase") }

// MaxSessions is the per-process session ceiling.
func (t *Tree) MaxSessions() int { return t.globalInt("MaxSessions") }

// MaxConnections is the per-session connection ceiling.
func (t *Tree) MaxConnections() int { return t.globalInt("MaxConnections") }

// MaxOutstandingR2T is the default negotiation window.
func (t *Tree) MaxOutstandingR2T() int { return t.globalInt("MaxOutstandingR2T") }

// DefaultTime2Wait in seconds.
func (t *Tree) DefaultTime2Wait() int { return t.globalInt("DefaultTime2Wait") }

// DefaultTime2Retain in seconds.
func (t *Tree) DefaultTime2Retain() int { return t.globalInt("DefaultTime2Retain") }

// FirstBurstLength in bytes.
func (t *Tree) FirstBurstLength() int { return t.globalInt("FirstBurstLength") }

// MaxBurstLength in bytes.
func (t *Tree) MaxBurstLength() int { return t.globalInt("MaxBurstLength") }

// MaxRecvDataSegmentLength in bytes.
func (t *Tree) MaxRecvDataSegmentLength() int { return t.globalInt("MaxRecvDataSegmentLength") }

// InitialR2T: only Yes is supported (§1 Non-goals); kept as a getter so
// config validation can flag an explicit No.
func (t *Tree) InitialR2T() bool { return t.globalBool("InitialR2T") }

// ImmediateData.
func (t *Tree) ImmediateData() bool { return t.globalBool("ImmediateData") }

// DataPDUInOrder: only Yes is supported (§1 Non-goals).
func (t *Tree) DataPDUInOrder() bool { return t.globalBool("DataPDUInOrder") }

// DataSequenceInOrder: only Yes is supported (§1 Non-goals).
func (t *Tree) DataSequenceInOrder() bool { return t.globalBool("DataSequenceInOrder") }

// ErrorRecoveryLevel: only 0 is supported (§1 Non-goals).
func (t *Tree) ErrorRecoveryLevel() int { return t.globalInt("ErrorRecoveryLevel") }

// Timeout is the connection idle timeout in seconds.
func (t *Tree) Timeout() int { return t.globalInt("Timeout") }

// NopInInterval in seconds.
func (t *Tree) NopInInterval() int { return t.globalInt("NopInInterval") }

// MaxR2T is the per-connection outstanding-R2T cap.
func (t *Tree) MaxR2T() int { return t.globalInt("MaxR2T") }

// DiscoveryAuthMethod is one of {CHAP, Mutual, Auto, None}.
func (t *Tree) DiscoveryAuthMethod() string { return t.globalString("DiscoveryAuthMethod") }

// DiscoveryAuthGroup is "AuthGroup<N>" or "None".
func (t *Tree) DiscoveryAuthGroup() string { return t.globalString("DiscoveryAuthGroup") }

// QueueDepth is the per-session CmdSN window depth: MaxCmdSN = ExpCmdSN +
// QueueDepth - 1 (§4.4). Distinct from MaxOutstandingR2T, which bounds
// concurrent R2Ts per write task rather than the number of commands a
// session may have outstanding.
func (t *Tree) QueueDepth() int { return t.globalInt("QueueDepth") }
