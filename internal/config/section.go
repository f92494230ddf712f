// Package config implements the §6 hierarchical configuration view: a flat
// sequence of typed, tagged sections, each an ordered list of repeatable
// key -> space-separated-fields items, consumed read-only by the rest of
// the daemon via GetValue/GetValueM accessors. The grammar is istgt's own
// (ordered "key value..." lines, repeatable keys, `#`-comments) but the
// parser underneath is gopkg.in/ini.v1 with shadow keys enabled, the way the
// gocanopen pack member drives its EDS/DCF object dictionary off ini.v1
// sections instead of a hand-rolled line scanner.
package config

// SectionType is the §6 section kind.
type SectionType int

const (
	SectionGlobal SectionType = iota
	SectionPortalGroup
	SectionInitiatorGroup
	SectionLogicalUnit
	SectionAuthGroup
	SectionUnitControl
)

func (t SectionType) String() string {
	switch t {
	case SectionGlobal:
		return "Global"
	case SectionPortalGroup:
		return "PortalGroup"
	case SectionInitiatorGroup:
		return "InitiatorGroup"
	case SectionLogicalUnit:
		return "LogicalUnit"
	case SectionAuthGroup:
		return "AuthGroup"
	case SectionUnitControl:
		return "UnitControl"
	default:
		return "Unknown"
	}
}

// item is one occurrence of a key within a section: istgt allows the same
// key to repeat (e.g. multiple "Portal" or "Mapping" lines), and each
// occurrence carries space-separated fields (e.g. "Mapping 1 1" has fields
// ["1", "1"]).
type item struct {
	key    string
	fields []string
}

// Section is one §6 configuration block: a type, a numeric tag, and its
// ordered items.
type Section struct {
	Type SectionType
	Tag  int
	// Name is the section's config-file label, e.g. "LogicalUnit0".
	Name string

	items []item
}

// NewSection returns an empty Section ready to have items appended.
func NewSection(t SectionType, tag int, name string) *Section {
	return &Section{Type: t, Tag: tag, Name: name}
}

// AddItem appends one occurrence of key with its space-separated fields.
func (s *Section) AddItem(key string, fields ...string) {
	s.items = append(s.items, item{key: key, fields: fields})
}

// occurrences returns every item whose key matches, in file order.
func (s *Section) occurrences(key string) []item {
	var out []item
	for _, it := range s.items {
		if it.key == key {
			out = append(out, it)
		}
	}
	return out
}

// Count returns how many times key occurs in the section.
func (s *Section) Count(key string) int {
	return len(s.occurrences(key))
}

// GetValue returns the first field of the idx'th (0-based) occurrence of
// key, istgt's classic get_value(section, key, idx) accessor.
func (s *Section) GetValue(key string, idx int) (string, bool) {
	return s.GetValueM(key, idx, 0)
}

// GetValueM returns the subIdx'th (0-based) field of the idx'th occurrence
// of key, istgt's classic get_value_m(section, key, idx, sub_idx) accessor.
func (s *Section) GetValueM(key string, idx, subIdx int) (string, bool) {
	occ := s.occurrences(key)
	if idx < 0 || idx >= len(occ) {
		return "", false
	}
	fields := occ[idx].fields
	if subIdx < 0 || subIdx >= len(fields) {
		return "", false
	}
	return fields[subIdx], true
}

// AllValues returns the first field of every occurrence of key, in file
// order; a convenience over repeatedly calling GetValue.
func (s *Section) AllValues(key string) []string {
	occ := s.occurrences(key)
	out := make([]string, 0, len(occ))
	for _, it := range occ {
		if len(it.fields) > 0 {
			out = append(out, it.fields[0])
		}
	}
	return out
}

// AllFields returns the full field list of every occurrence of key, in
// file order.
func (s *Section) AllFields(key string) [][]string {
	occ := s.occurrences(key)
	out := make([][]string, 0, len(occ))
	for _, it := range occ {
		out = append(out, it.fields)
	}
	return out
}
