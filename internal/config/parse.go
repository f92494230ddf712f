package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/piscisaureus/istgt/internal/istgterr"
	"gopkg.in/ini.v1"
)

// sectionNamePattern splits a config section label into its type prefix and
// numeric tag, e.g. "LogicalUnit0" -> ("LogicalUnit", 0), "Global" -> ("Global", 0).
var sectionNamePattern = regexp.MustCompile(`^([A-Za-z]+?)(\d*)$`)

var typeByPrefix = map[string]SectionType{
	"Global":         SectionGlobal,
	"PortalGroup":    SectionPortalGroup,
	"InitiatorGroup": SectionInitiatorGroup,
	"LogicalUnit":    SectionLogicalUnit,
	"AuthGroup":      SectionAuthGroup,
	"UnitControl":    SectionUnitControl,
}

// ParseFile loads an istgt-grammar config file (§6) from path: ordered
// `key value...` lines grouped into `[SectionName]` blocks, repeatable keys,
// `#`/`;` comments. The istgt grammar's repeatable keys map onto ini.v1's
// shadow-key support, and its "one section, many space-separated values per
// line" shape maps onto splitting each raw shadow value on whitespace.
func ParseFile(path string) (*Tree, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:             true,
		IgnoreInlineComment:      true,
		SpaceBeforeInlineComment: true,
		KeyValueDelimiters:       " \t",
	}, path)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w: %w", path, err, istgterr.ErrConfig)
	}
	return build(f)
}

// ParseBytes loads config source from an in-memory byte slice, with the
// same grammar as ParseFile.
func ParseBytes(data []byte) (*Tree, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:             true,
		IgnoreInlineComment:      true,
		SpaceBeforeInlineComment: true,
		KeyValueDelimiters:       " \t",
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", err, istgterr.ErrConfig)
	}
	return build(f)
}

func build(f *ini.File) (*Tree, error) {
	t := &Tree{}
	for _, s := range f.Sections() {
		name := s.Name()
		if name == ini.DefaultSection && len(s.Keys()) == 0 {
			continue
		}
		sectionType, tag, err := splitSectionName(name)
		if err != nil {
			return nil, err
		}
		sec := NewSection(sectionType, tag, name)
		for _, k := range s.Keys() {
			for _, raw := range k.ValueWithShadows() {
				sec.AddItem(k.Name(), strings.Fields(raw)...)
			}
		}
		t.Sections = append(t.Sections, sec)
	}
	return t, nil
}

func splitSectionName(name string) (SectionType, int, error) {
	if name == ini.DefaultSection {
		return SectionGlobal, 0, nil
	}
	m := sectionNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("malformed section name %q: %w", name, istgterr.ErrConfig)
	}
	prefix, digits := m[1], m[2]
	st, ok := typeByPrefix[prefix]
	if !ok {
		return 0, 0, fmt.Errorf("unrecognized section type %q: %w", prefix, istgterr.ErrConfig)
	}
	tag := 0
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0, 0, fmt.Errorf("bad section tag in %q: %w", name, istgterr.ErrConfig)
		}
		tag = n
	}
	return st, tag, nil
}
