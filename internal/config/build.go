package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/backingstore"
	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/portal"
)

// Built is the set of runtime objects assembled from a parsed Tree: portal
// groups (not yet listening), the ACL registry, the target registry, and
// the resolved CHAP secret table keyed by AuthGroup tag.
type Built struct {
	PortalGroups []*portal.Group
	ACL          *aclpolicy.Registry
	Targets      *lu.Registry
	Secrets      *SecretTable
}

// SecretTable resolves CHAP secrets per AuthGroup (§6 AuthGroup section),
// matching connection.SecretLookup's contract.
type SecretTable struct {
	// byGroup maps authGroup tag -> initiatorName -> secret. An entry keyed
	// by "" is the group's default secret, used when AuthGroup doesn't list
	// the initiator by name (istgt's single-secret-per-group common case).
	byGroup map[int]map[string]string
}

// Lookup resolves the CHAP secret for (authGroup, initiatorName), falling
// back to the group's unnamed default secret.
func (st *SecretTable) Lookup(authGroup int, initiatorName string) (string, bool) {
	group, ok := st.byGroup[authGroup]
	if !ok {
		return "", false
	}
	if secret, ok := group[initiatorName]; ok {
		return secret, true
	}
	if secret, ok := group[""]; ok {
		return secret, true
	}
	return "", false
}

// Build assembles runtime objects from a parsed Tree, validating §5's
// resource ceilings along the way (ConfigError is fatal to startup).
func Build(t *Tree) (*Built, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}

	b := &Built{
		ACL:     aclpolicy.NewRegistry(),
		Targets: lu.NewRegistry(),
		Secrets: &SecretTable{byGroup: make(map[int]map[string]string)},
	}

	for _, s := range t.ByType(SectionAuthGroup) {
		group := make(map[string]string)
		for _, fields := range s.AllFields("Auth") {
			// "Auth <initiator> <secret>" or "Auth <secret>" (group default).
			switch len(fields) {
			case 1:
				group[""] = fields[0]
			case 2:
				group[fields[0]] = fields[1]
			}
		}
		b.Secrets.byGroup[s.Tag] = group
	}

	for _, s := range t.ByType(SectionInitiatorGroup) {
		ig := &aclpolicy.InitiatorGroup{Tag: s.Tag}
		ig.Names = s.AllValues("InitiatorName")
		ig.Netmasks = s.AllValues("Netmask")
		b.ACL.Add(ig)
	}

	for _, s := range t.ByType(SectionPortalGroup) {
		g := portal.NewGroup(s.Tag)
		for _, fields := range s.AllFields("Portal") {
			if len(fields) < 2 {
				return nil, fmt.Errorf("PortalGroup%d: malformed Portal line %v: %w", s.Tag, fields, istgterr.ErrConfig)
			}
			host, port, err := splitHostPort(fields[1])
			if err != nil {
				return nil, fmt.Errorf("PortalGroup%d: %w", s.Tag, err)
			}
			g.Add(host, port)
		}
		b.PortalGroups = append(b.PortalGroups, g)
	}

	for _, s := range t.ByType(SectionLogicalUnit) {
		target, err := buildTarget(t, s)
		if err != nil {
			return nil, err
		}
		if err := b.Targets.Add(target); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// splitHostPort parses istgt's "host:port" / "[v6]:port" portal address
// form, matching §6's PortalGroup `Portal <label> <host:port|[v6]:port>`.
func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bad portal address %q: %w: %w", addr, err, istgterr.ErrConfig)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("bad portal port in %q: %w: %w", addr, err, istgterr.ErrConfig)
	}
	return host, uint16(port), nil
}

func buildTarget(t *Tree, s *Section) (*lu.Target, error) {
	name, _ := s.GetValue("TargetName", 0)
	if name == "" {
		name = fmt.Sprintf("%s:lu%d", t.NodeBase(), s.Tag)
	}

	unitType := lu.UnitTypeDisk
	if ut, ok := s.GetValue("UnitType", 0); ok && strings.EqualFold(ut, "Tape") {
		unitType = lu.UnitTypeTape
	}

	target := lu.NewTarget(name, s.Tag, unitType)

	if online, ok := s.GetValue("UnitOnline", 0); ok {
		target.Online = !strings.EqualFold(online, "No")
	}

	for _, fields := range s.AllFields("Mapping") {
		if len(fields) < 2 {
			continue
		}
		pgTag, err1 := strconv.Atoi(fields[0])
		igTag, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("LogicalUnit%d: malformed Mapping %v: %w", s.Tag, fields, istgterr.ErrConfig)
		}
		target.Mappings = append(target.Mappings, aclpolicy.Mapping{PortalGroupTag: pgTag, InitiatorGroupTag: igTag})
	}

	if am, ok := s.GetValue("AuthMethod", 0); ok {
		target.AuthRequired = strings.EqualFold(am, "CHAP")
	}
	if ag, ok := s.GetValue("AuthGroup", 0); ok {
		target.AuthGroup = parseAuthGroupTag(ag)
	}

	blockLen := uint32(512)
	if bl, ok := s.GetValue("BlockLength", 0); ok {
		n, err := strconv.Atoi(bl)
		if err != nil {
			return nil, fmt.Errorf("LogicalUnit%d: bad BlockLength %q: %w", s.Tag, bl, istgterr.ErrConfig)
		}
		blockLen = uint32(n)
	}

	for _, it := range s.items {
		lunN, ok := parseLUNKey(it.key)
		if !ok {
			continue
		}
		spec, err := buildLUN(s.Tag, lunN, blockLen, it.fields)
		if err != nil {
			return nil, err
		}
		if err := target.AddLUN(spec); err != nil {
			return nil, err
		}
	}

	return target, nil
}

// parseLUNKey recognizes istgt's "LUN<N>" key form.
func parseLUNKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, "LUN") {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(key, "LUN"), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// buildLUN parses one "LUN<N> <path> Size <bytes>[ Flags <ro|rw|...>]" line
// and opens its backing store driver.
func buildLUN(targetTag int, lunN uint64, blockLen uint32, fields []string) (*lu.BackingSpec, error) {
	if len(fields) < 1 {
		return nil, fmt.Errorf("LogicalUnit%d: LUN%d has no path: %w", targetTag, lunN, istgterr.ErrConfig)
	}
	path := fields[0]

	var size int64
	readOnly := false
	writeCache := true
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "Size":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("LogicalUnit%d: LUN%d Size missing value: %w", targetTag, lunN, istgterr.ErrConfig)
			}
			n, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("LogicalUnit%d: LUN%d bad Size %q: %w", targetTag, lunN, fields[i+1], istgterr.ErrConfig)
			}
			size = n
			i++
		case "Flags":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("LogicalUnit%d: LUN%d Flags missing value: %w", targetTag, lunN, istgterr.ErrConfig)
			}
			for _, f := range strings.Split(fields[i+1], ",") {
				switch f {
				case "ro":
					readOnly = true
				case "rw":
					readOnly = false
				case "nocache":
					writeCache = false
				}
			}
			i++
		}
	}

	driver, probedSize, err := openDriver(path, readOnly)
	if err != nil {
		return nil, fmt.Errorf("LogicalUnit%d: LUN%d: %w", targetTag, lunN, err)
	}
	if size == 0 {
		size = probedSize
	}

	return &lu.BackingSpec{
		LUN:        lunN,
		Path:       path,
		BlockLen:   blockLen,
		Size:       size,
		ReadOnly:   readOnly,
		WriteCache: writeCache,
		Driver:     driver,
	}, nil
}

// openDriver dispatches to RawFile or BlockDevice per §4.8, by probing the
// path's mode before sizing the backing file or device.
func openDriver(path string, readOnly bool) (backingstore.Driver, int64, error) {
	isBlockDevice, err := backingstore.IsBlockDevice(path)
	if err != nil {
		return nil, 0, fmt.Errorf("probe %s: %w: %w", path, err, istgterr.ErrConfig)
	}
	if isBlockDevice {
		bd, err := backingstore.OpenBlockDevice(path, readOnly)
		if err != nil {
			return nil, 0, fmt.Errorf("open block device %s: %w: %w", path, err, istgterr.ErrConfig)
		}
		size, err := bd.Size()
		if err != nil {
			return nil, 0, fmt.Errorf("size block device %s: %w: %w", path, err, istgterr.ErrConfig)
		}
		return bd, size, nil
	}
	rf, err := backingstore.OpenRawFile(path, readOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("open raw file %s: %w: %w", path, err, istgterr.ErrConfig)
	}
	size, err := rf.Size()
	if err != nil {
		return nil, 0, fmt.Errorf("size raw file %s: %w: %w", path, err, istgterr.ErrConfig)
	}
	return rf, size, nil
}

func parseAuthGroupTag(v string) int {
	if strings.EqualFold(v, "None") {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimPrefix(v, "AuthGroup"))
	return n
}
