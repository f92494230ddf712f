package config

import (
	"fmt"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// §5's resource-limit ceilings, enforced at config load (and again at
// negotiation time by the connection/session packages).
const (
	maxSessions        = 65535
	maxConnections     = 65535
	maxOutstandingR2T  = 65535
	maxBurstLengthCap  = 0x00FFFFFF
	maxRecvSegmentCap  = 0x00FFFFFF
	maxTime2WaitRetain = 3600
	maxR2TCap          = 256
	maxGroupsOrLUs     = 4096
	maxQueueDepth      = 65535
)

// Validate checks the §5 resource ceilings and the §1/§9 "must be disabled"
// flags (ErrorRecoveryLevel > 0, InitialR2T=No, DataPDUInOrder=No,
// DataSequenceInOrder=No) against a parsed Tree, returning a wrapped
// ErrConfig describing the first violation found.
func Validate(t *Tree) error {
	if n := t.MaxSessions(); n <= 0 || n > maxSessions {
		return fmt.Errorf("Global MaxSessions %d out of range (1..%d): %w", n, maxSessions, istgterr.ErrConfig)
	}
	if n := t.MaxConnections(); n <= 0 || n > maxConnections {
		return fmt.Errorf("Global MaxConnections %d out of range (1..%d): %w", n, maxConnections, istgterr.ErrConfig)
	}
	if n := t.MaxOutstandingR2T(); n <= 0 || n > maxOutstandingR2T {
		return fmt.Errorf("Global MaxOutstandingR2T %d out of range (1..%d): %w", n, maxOutstandingR2T, istgterr.ErrConfig)
	}
	if n := t.MaxBurstLength(); n <= 0 || n > maxBurstLengthCap {
		return fmt.Errorf("Global MaxBurstLength %d out of range (1..%d): %w", n, maxBurstLengthCap, istgterr.ErrConfig)
	}
	if n := t.MaxRecvDataSegmentLength(); n <= 0 || n > maxRecvSegmentCap {
		return fmt.Errorf("Global MaxRecvDataSegmentLength %d out of range (1..%d): %w", n, maxRecvSegmentCap, istgterr.ErrConfig)
	}
	if n := t.DefaultTime2Wait(); n < 0 || n > maxTime2WaitRetain {
		return fmt.Errorf("Global DefaultTime2Wait %d out of range (0..%d): %w", n, maxTime2WaitRetain, istgterr.ErrConfig)
	}
	if n := t.DefaultTime2Retain(); n < 0 || n > maxTime2WaitRetain {
		return fmt.Errorf("Global DefaultTime2Retain %d out of range (0..%d): %w", n, maxTime2WaitRetain, istgterr.ErrConfig)
	}
	if n := t.MaxR2T(); n <= 0 || n > maxR2TCap {
		return fmt.Errorf("Global MaxR2T %d out of range (1..%d): %w", n, maxR2TCap, istgterr.ErrConfig)
	}
	if n := t.QueueDepth(); n <= 0 || n > maxQueueDepth {
		return fmt.Errorf("Global QueueDepth %d out of range (1..%d): %w", n, maxQueueDepth, istgterr.ErrConfig)
	}
	if n := t.ErrorRecoveryLevel(); n != 0 {
		return fmt.Errorf("ErrorRecoveryLevel %d unsupported, only ERL 0 is implemented: %w", n, istgterr.ErrConfig)
	}
	if !t.InitialR2T() {
		return fmt.Errorf("InitialR2T=No (unsolicited data) is unsupported: %w", istgterr.ErrConfig)
	}
	if !t.DataPDUInOrder() {
		return fmt.Errorf("DataPDUInOrder=No is unsupported: %w", istgterr.ErrConfig)
	}
	if !t.DataSequenceInOrder() {
		return fmt.Errorf("DataSequenceInOrder=No is unsupported: %w", istgterr.ErrConfig)
	}

	if n := len(t.ByType(SectionPortalGroup)); n > maxGroupsOrLUs {
		return fmt.Errorf("%d portal groups exceeds the %d ceiling: %w", n, maxGroupsOrLUs, istgterr.ErrConfig)
	}
	if n := len(t.ByType(SectionInitiatorGroup)); n > maxGroupsOrLUs {
		return fmt.Errorf("%d initiator groups exceeds the %d ceiling: %w", n, maxGroupsOrLUs, istgterr.ErrConfig)
	}
	if n := len(t.ByType(SectionLogicalUnit)); n > maxGroupsOrLUs {
		return fmt.Errorf("%d logical units exceeds the %d ceiling: %w", n, maxGroupsOrLUs, istgterr.ErrConfig)
	}
	return nil
}
