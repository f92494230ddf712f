// Package lu holds the logical unit descriptor and registry (§3, §4.8):
// type, LUN map, block length, media size, cache flags and the backing
// store each LUN is bound to.
package lu

import (
	"fmt"
	"sync"

	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/backingstore"
	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/piscisaureus/istgt/internal/reservation"
)

// UnitType enumerates the supported LU media types. Tape is recognized but
// unsupported, matching §3's "type ∈ {Disk, Tape(unsupported), …}".
type UnitType int

const (
	UnitTypeDisk UnitType = iota
	UnitTypeTape
)

// BackingSpec is one LUN's backing store binding (§3).
type BackingSpec struct {
	LUN        uint64
	Path       string
	BlockLen   uint32
	Size       int64
	ReadOnly   bool
	WriteCache bool
	Driver     backingstore.Driver
	Reservations *reservation.Table
}

// Target is a configured logical unit group addressed by an IQN (§3). A
// Target may expose multiple LUNs, all currently of the same UnitType.
type Target struct {
	Name         string // target_name (IQN)
	Tag          int
	Type         UnitType
	Online       bool
	Mappings     []aclpolicy.Mapping
	AuthGroup    int
	AuthRequired bool

	mu   sync.RWMutex
	luns map[uint64]*BackingSpec

	// activeSessions counts sessions currently logged in to this target,
	// used only for operator-visible status. It is not enforced as a limit,
	// and login does not apply the global MaxSessions ceiling either.
	activeSessions int
}

// NewTarget returns an empty Target ready to have LUNs added.
func NewTarget(name string, tag int, unitType UnitType) *Target {
	return &Target{Name: name, Tag: tag, Type: unitType, Online: true, luns: make(map[uint64]*BackingSpec)}
}

// AddLUN binds a backing spec to the target. Block length must be one of
// the sizes §4.8 permits.
func (t *Target) AddLUN(spec *BackingSpec) error {
	if !backingstore.ValidBlockLengths[spec.BlockLen] {
		return fmt.Errorf("invalid block length %d: %w", spec.BlockLen, istgterr.ErrConfig)
	}
	if spec.Reservations == nil {
		spec.Reservations = reservation.NewTable()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.luns[spec.LUN] = spec
	return nil
}

// LUN returns the backing spec for lun, or ok=false if unmapped.
func (t *Target) LUN(lun uint64) (*BackingSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	spec, ok := t.luns[lun]
	return spec, ok
}

// LUNs returns a snapshot of all LUN numbers mapped on this target, sorted
// ascending, for REPORT LUNS (§4.7).
func (t *Target) LUNs() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint64, 0, len(t.luns))
	for lun := range t.luns {
		out = append(out, lun)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// IncrActiveSessions and DecrActiveSessions track the active session count
// exposed by the operator status surface.
func (t *Target) IncrActiveSessions() {
	t.mu.Lock()
	t.activeSessions++
	t.mu.Unlock()
}

func (t *Target) DecrActiveSessions() {
	t.mu.Lock()
	if t.activeSessions > 0 {
		t.activeSessions--
	}
	t.mu.Unlock()
}

func (t *Target) ActiveSessions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activeSessions
}
