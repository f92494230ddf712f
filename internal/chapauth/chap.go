// Package chapauth implements the CHAP challenge/response primitives used
// during login negotiation (§4.5). Spec §1 treats "ChallengeResponseAuth" as
// an opaque module; MD5 is the algorithm CHAP (RFC 1994) actually mandates,
// so this wraps crypto/md5 rather than adopting a general-purpose crypto
// library the rest of the pack doesn't otherwise need (see DESIGN.md).
package chapauth

import (
	"crypto/md5"
	"crypto/rand"
)

// MinChallengeLength is the minimum CHAP_C challenge length (RFC 3720, ≥16 bytes).
const MinChallengeLength = 16

// NewChallenge returns a random challenge of at least MinChallengeLength bytes
// and a fresh single-byte identifier.
func NewChallenge(length int) (id byte, challenge []byte, err error) {
	if length < MinChallengeLength {
		length = MinChallengeLength
	}
	var idBuf [1]byte
	if _, err := rand.Read(idBuf[:]); err != nil {
		return 0, nil, err
	}
	challenge = make([]byte, length)
	if _, err := rand.Read(challenge); err != nil {
		return 0, nil, err
	}
	return idBuf[0], challenge, nil
}

// Response computes CHAP_R = MD5(id || secret || challenge), per RFC 1994.
func Response(id byte, secret string, challenge []byte) []byte {
	h := md5.New()
	h.Write([]byte{id})
	h.Write([]byte(secret))
	h.Write(challenge)
	return h.Sum(nil)
}

// Verify reports whether response matches the expected CHAP_R for
// (id, secret, challenge).
func Verify(id byte, secret string, challenge, response []byte) bool {
	want := Response(id, secret, challenge)
	if len(want) != len(response) {
		return false
	}
	var diff byte
	for i := range want {
		diff |= want[i] ^ response[i]
	}
	return diff == 0
}
