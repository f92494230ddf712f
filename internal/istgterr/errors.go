// Package istgterr defines the error kinds from the error handling design
// (§7): sentinels that connection, session and LU code wrap with context and
// that callers distinguish with errors.Is/errors.As to decide how severely to
// react (close the connection, return sense data, abort startup, ...).
package istgterr

import "errors"

var (
	// ErrProtocol covers malformed PDUs, digest mismatches, reserved-bit
	// violations and illegal phase transitions. Fatal to the connection.
	ErrProtocol = errors.New("iscsi protocol error")

	// ErrAuth is an authentication failure during login negotiation.
	ErrAuth = errors.New("authentication failure")

	// ErrAccessDenied is an authorization failure (ACL/portal/initiator group).
	ErrAccessDenied = errors.New("authorization failure")

	// ErrResourceExhausted signals the session/connection/R2T ceilings in §5
	// have been reached.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrBackingStore wraps a read/write/sync failure from the backing store.
	ErrBackingStore = errors.New("backing store error")

	// ErrConfig is an init-time configuration problem; fatal to startup.
	ErrConfig = errors.New("configuration error")

	// ErrInternalAssertion marks a broken invariant; the caller should treat
	// this as fatal to the process.
	ErrInternalAssertion = errors.New("internal assertion failure")
)

// Overflow is returned by the PDU codec when a declared length would exceed
// the caller-supplied ceiling, before any large buffer is allocated.
var Overflow = errors.New("pdu exceeds negotiated length ceiling")

// HeaderDigestError indicates a header digest mismatch.
var HeaderDigestError = errors.New("header digest mismatch")

// DataDigestError indicates a data digest mismatch.
var DataDigestError = errors.New("data digest mismatch")
