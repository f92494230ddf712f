package connection

import "strconv"

// Negotiator applies the RFC 3720 reconciliation rules of §4.5 to each
// incoming login/text key, folding the initiator's offer into the running
// Params and producing the target's reply key/value list.
type Negotiator struct {
	params Params
	// seen records every key the initiator has offered this login.
	// Reconcile does not consult it: a repeated key is reconciled again.
	seen map[string]bool
}

// NewNegotiator starts from the target's defaults (§4.5/§6).
func NewNegotiator() *Negotiator {
	return &Negotiator{params: DefaultParams(), seen: make(map[string]bool)}
}

// Params returns the negotiated parameters accumulated so far.
func (n *Negotiator) Params() Params { return n.params }

// Reconcile folds one initiator key=value into the negotiator state and
// returns the target's reply value for that key, or ok=false if the key is
// not recognized (the caller then decides accept/counter-offer/reject per
// §4.5's NotUnderstood path).
func (n *Negotiator) Reconcile(key, value string) (reply string, ok bool) {
	n.seen[key] = true
	switch key {
	case "MaxRecvDataSegmentLength":
		// declared per direction; the initiator's declared value bounds what
		// the initiator will accept from us, so the reply is our own ceiling.
		return formatUint32(n.params.MaxRecvDataSegmentLength), true

	case "MaxBurstLength":
		n.params.MaxBurstLength = minUint32(n.params.MaxBurstLength, parseUint32(value, n.params.MaxBurstLength))
		return formatUint32(n.params.MaxBurstLength), true

	case "FirstBurstLength":
		fb := parseUint32(value, n.params.FirstBurstLength)
		n.params.FirstBurstLength = minUint32(n.params.FirstBurstLength, fb)
		if n.params.FirstBurstLength > n.params.MaxBurstLength {
			n.params.FirstBurstLength = n.params.MaxBurstLength
		}
		return formatUint32(n.params.FirstBurstLength), true

	case "DefaultTime2Wait":
		n.params.DefaultTime2Wait = maxUint32(n.params.DefaultTime2Wait, parseUint32(value, n.params.DefaultTime2Wait))
		return formatUint32(n.params.DefaultTime2Wait), true

	case "DefaultTime2Retain":
		n.params.DefaultTime2Retain = minUint32(n.params.DefaultTime2Retain, parseUint32(value, n.params.DefaultTime2Retain))
		return formatUint32(n.params.DefaultTime2Retain), true

	case "MaxOutstandingR2T":
		got := uint16(parseUint32(value, uint32(n.params.MaxOutstandingR2T)))
		if got < n.params.MaxOutstandingR2T {
			n.params.MaxOutstandingR2T = got
		}
		return formatUint32(uint32(n.params.MaxOutstandingR2T)), true

	case "InitialR2T":
		// Or, but this implementation only supports Yes (§9 open question);
		// a No offer is accepted as text but the effective value stays Yes.
		n.params.InitialR2T = n.params.InitialR2T || parseYesNo(value)
		return yesNo(true), true

	case "ImmediateData":
		n.params.ImmediateData = n.params.ImmediateData && parseYesNo(value)
		return yesNo(n.params.ImmediateData), true

	case "DataPDUInOrder":
		n.params.DataPDUInOrder = true
		return yesNo(true), true

	case "DataSequenceInOrder":
		n.params.DataSequenceInOrder = true
		return yesNo(true), true

	case "ErrorRecoveryLevel":
		n.params.ErrorRecoveryLevel = 0
		return "0", true

	case "HeaderDigest":
		n.params.HeaderDigestCRC32C = firstCommon(splitCSV(value), []string{"CRC32C", "None"}) == "CRC32C"
		return digestReply(n.params.HeaderDigestCRC32C), true

	case "DataDigest":
		n.params.DataDigestCRC32C = firstCommon(splitCSV(value), []string{"CRC32C", "None"}) == "CRC32C"
		return digestReply(n.params.DataDigestCRC32C), true

	default:
		return "", false
	}
}

func digestReply(crc32c bool) string {
	if crc32c {
		return "CRC32C"
	}
	return "None"
}

// firstCommon returns the first entry of preference (in preference order)
// that also appears in offered, or "" if none match.
func firstCommon(offered, preference []string) string {
	offeredSet := make(map[string]bool, len(offered))
	for _, o := range offered {
		offeredSet[o] = true
	}
	for _, p := range preference {
		if offeredSet[p] {
			return p
		}
	}
	return ""
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func formatUint32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
