// Package connection implements the connection state machine and login
// negotiator of §4.5: CSG/NSG phase transitions, RFC 3720 key/value
// reconciliation, CHAP authentication, keepalive, and logout.
package connection

// Params is the negotiated set of operational parameters a connection
// carries into Full-Feature Phase (§4.5's reconciliation table).
type Params struct {
	MaxRecvDataSegmentLength uint32
	MaxBurstLength           uint32
	FirstBurstLength         uint32
	DefaultTime2Wait         uint32
	DefaultTime2Retain       uint32
	MaxOutstandingR2T        uint16
	InitialR2T               bool
	ImmediateData            bool
	DataPDUInOrder           bool
	DataSequenceInOrder      bool
	ErrorRecoveryLevel       byte
	HeaderDigestCRC32C       bool
	DataDigestCRC32C         bool
}

// DefaultParams returns the target defaults from §4.5's reconciliation table
// / §6's Global key defaults, used as the starting point for negotiation.
func DefaultParams() Params {
	return Params{
		MaxRecvDataSegmentLength: 8192,
		MaxBurstLength:           262144,
		FirstBurstLength:         65536,
		DefaultTime2Wait:         2,
		DefaultTime2Retain:       20,
		MaxOutstandingR2T:        16,
		InitialR2T:               true,
		ImmediateData:            true,
		DataPDUInOrder:           true,
		DataSequenceInOrder:      true,
		ErrorRecoveryLevel:       0,
	}
}
