// Package reservation implements the legacy RESERVE/RELEASE(6) holder and
// the SCSI-3 Persistent Reservation table (§4.7, §3 ReservationEntry),
// guarded by its own per-LU mutex per §5's lock ordering
// (connection → session → LU → reservation, never reversed).
package reservation

import "sync"

// Nexus identifies an I_T_L (Initiator-Target-LUN) tuple, the quantum for
// reservations.
type Nexus struct {
	InitiatorName string
	ISID          [6]byte
	LUN           uint64
}

// PRType enumerates the Persistent Reservation types this implementation
// supports (a practical SPC-3 subset).
type PRType byte

const (
	PRWriteExclusive PRType = iota
	PRExclusiveAccess
	PRWriteExclusiveRegistrantsOnly
	PRExclusiveAccessRegistrantsOnly
	PRWriteExclusiveAllRegistrants
	PRExclusiveAccessAllRegistrants
)

// Registrant is one PR OUT REGISTER record.
type Registrant struct {
	Nexus Nexus
	Key   uint64
}

// Table is one LU's reservation state: the legacy single-holder reservation
// plus the PR registrant set and current PR holder.
type Table struct {
	mu sync.Mutex

	legacyHolder *Nexus // RESERVE(6)/RELEASE(6); nil if unreserved

	registrants map[uint64]Nexus // PR key -> registrant nexus
	prHolder    *uint64          // registered key currently holding the PR, nil if none
	prType      PRType
	allRegistrants bool
	generation   uint32
}

// NewTable returns an empty reservation table.
func NewTable() *Table {
	return &Table{registrants: make(map[uint64]Nexus)}
}

// Reserve6 sets the legacy holder, failing if already held by a different nexus.
func (t *Table) Reserve6(n Nexus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.legacyHolder != nil && *t.legacyHolder != n {
		return false
	}
	t.legacyHolder = &n
	return true
}

// Release6 clears the legacy holder if held by n; releasing when unheld or
// held by a different nexus is a no-op (matches SCSI RELEASE semantics).
func (t *Table) Release6(n Nexus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.legacyHolder != nil && *t.legacyHolder == n {
		t.legacyHolder = nil
	}
}

// ConflictsLegacy reports whether n's media-access command should be
// rejected with RESERVATION CONFLICT because another nexus holds the legacy
// reservation (§8 property 7).
func (t *Table) ConflictsLegacy(n Nexus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.legacyHolder != nil && *t.legacyHolder != n
}

// Register adds or updates a PR registrant. serviceActionReservationKey==0
// combined with ignoreExisting removes any requirement that an existing key
// match (REGISTER_AND_IGNORE_EXISTING).
func (t *Table) Register(n Nexus, reservationKey, serviceActionKey uint64, ignoreExisting bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, has := t.registrants[reservationKey]
	if has && existing != n && !ignoreExisting {
		return false
	}
	if !ignoreExisting && has && reservationKey != 0 && serviceActionKey == 0 {
		delete(t.registrants, reservationKey)
		t.clearHolderIfKeyLocked(reservationKey)
		t.generation++
		return true
	}
	if serviceActionKey == 0 {
		delete(t.registrants, reservationKey)
		t.clearHolderIfKeyLocked(reservationKey)
	} else {
		t.registrants[serviceActionKey] = n
	}
	t.generation++
	return true
}

func (t *Table) clearHolderIfKeyLocked(key uint64) {
	if t.prHolder != nil && *t.prHolder == key {
		t.prHolder = nil
	}
}

// KeyFor returns the PR key n is currently registered under, if any.
func (t *Table) KeyFor(n Nexus) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, registrant := range t.registrants {
		if registrant == n {
			return key, true
		}
	}
	return 0, false
}

// IsRegistered reports whether key is a currently registered PR key.
func (t *Table) IsRegistered(key uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.registrants[key]
	return ok
}

// ReserveOut establishes a PR of prType held by key. Fails if key isn't
// registered, or a different key already holds an incompatible reservation.
func (t *Table) ReserveOut(key uint64, prType PRType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.registrants[key]; !ok {
		return false
	}
	if t.prHolder != nil && *t.prHolder != key {
		return false
	}
	t.prHolder = &key
	t.prType = prType
	t.allRegistrants = prType == PRWriteExclusiveAllRegistrants || prType == PRExclusiveAccessAllRegistrants
	t.generation++
	return true
}

// ReleaseOut releases the PR held by key; a release by a non-holder is a no-op.
func (t *Table) ReleaseOut(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prHolder != nil && *t.prHolder == key {
		t.prHolder = nil
		t.generation++
	}
}

// Clear removes all registrants and the PR holder (PR OUT CLEAR).
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registrants = make(map[uint64]Nexus)
	t.prHolder = nil
	t.generation++
}

// Preempt implements PREEMPT / PREEMPT_AND_ABORT: the preemptor (holding
// key) removes registrants matching preemptKey and, if preemptKey held the
// reservation, takes it over as newType. Returns the nexuses whose
// registration was removed, so the caller can abort their outstanding tasks
// for PREEMPT_AND_ABORT.
func (t *Table) Preempt(key, preemptKey uint64, newType PRType) []Nexus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.registrants[key]; !ok {
		return nil
	}

	var removed []Nexus
	wasHolder := t.prHolder != nil && *t.prHolder == preemptKey
	if preemptKey == 0 {
		// Preempt all registrants other than the preemptor.
		for k, n := range t.registrants {
			if k != key {
				removed = append(removed, n)
				delete(t.registrants, k)
			}
		}
	} else if n, ok := t.registrants[preemptKey]; ok {
		removed = append(removed, n)
		delete(t.registrants, preemptKey)
	}

	if wasHolder {
		t.prHolder = &key
		t.prType = newType
	}
	t.generation++
	return removed
}

// Generation returns the current PR generation counter (incremented on any
// registration or reservation change).
func (t *Table) Generation() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// ConflictsPR reports whether n (registered under key, or unregistered if
// key==0) should receive RESERVATION CONFLICT for a media-access command.
func (t *Table) ConflictsPR(key uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prHolder == nil {
		return false
	}
	if t.allRegistrants {
		_, ok := t.registrants[key]
		return !ok
	}
	return *t.prHolder != key
}

// ReadKeys renders the PERSISTENT RESERVE IN / READ KEYS parameter data
// (SPC-3): a 4-byte generation, 4-byte additional length, then one 8-byte
// key per registrant.
func (t *Table) ReadKeys() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 8+8*len(t.registrants))
	putUint32At(buf, 0, t.generation)
	putUint32At(buf, 4, uint32(8*len(t.registrants)))
	i := 0
	for key := range t.registrants {
		putUint64At(buf, 8+i*8, key)
		i++
	}
	return buf
}

// ReadReservation renders the PERSISTENT RESERVE IN / READ RESERVATION
// parameter data: generation plus, if a PR is held, its key and type.
func (t *Table) ReadReservation() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prHolder == nil {
		buf := make([]byte, 8)
		putUint32At(buf, 0, t.generation)
		return buf
	}
	buf := make([]byte, 24)
	putUint32At(buf, 0, t.generation)
	putUint32At(buf, 4, 16)
	putUint64At(buf, 8, *t.prHolder)
	buf[21] = byte(t.prType)
	return buf
}

func putUint32At(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func putUint64At(buf []byte, off int, v uint64) {
	putUint32At(buf, off, uint32(v>>32))
	putUint32At(buf, off+4, uint32(v))
}
