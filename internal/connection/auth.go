package connection

import (
	"encoding/hex"
	"fmt"

	"github.com/piscisaureus/istgt/internal/chapauth"
	"github.com/piscisaureus/istgt/internal/istgterr"
)

// SecretLookup resolves an initiator/target CHAP secret pair for an auth
// group, mirroring the AuthGroup<N> config section (§6).
type SecretLookup func(authGroup int, initiatorName string) (secret string, ok bool)

// chapServer drives one side of the CHAP exchange (§4.5). It holds the
// challenge state between the CHAP_A/CHAP_I/CHAP_C offer and the initiator's
// CHAP_N/CHAP_R reply.
type chapServer struct {
	id        byte
	challenge []byte
}

// Offer produces the CHAP_A, CHAP_I, CHAP_C reply keys for a login response.
func (s *chapServer) Offer() ([]KV, error) {
	id, challenge, err := chapauth.NewChallenge(chapauth.MinChallengeLength)
	if err != nil {
		return nil, fmt.Errorf("generate CHAP challenge: %w", err)
	}
	s.id = id
	s.challenge = challenge
	return []KV{
		{Key: "CHAP_A", Value: "5"},
		{Key: "CHAP_I", Value: fmt.Sprintf("%d", id)},
		{Key: "CHAP_C", Value: "0x" + hex.EncodeToString(challenge)},
	}, nil
}

// Verify checks the initiator's CHAP_N/CHAP_R reply against the secret
// looked up for name, returning ErrAuth on mismatch (§4.5, §7).
func (s *chapServer) Verify(name, chapR, secret string) error {
	resp, err := decodeHexField(chapR)
	if err != nil {
		return fmt.Errorf("decode CHAP_R: %w: %w", err, istgterr.ErrProtocol)
	}
	if !chapauth.Verify(s.id, secret, s.challenge, resp) {
		return fmt.Errorf("CHAP response mismatch for %q: %w", name, istgterr.ErrAuth)
	}
	return nil
}

// decodeHexField decodes a "0x..." hex-encoded login key value.
func decodeHexField(v string) ([]byte, error) {
	if len(v) >= 2 && (v[0:2] == "0x" || v[0:2] == "0X") {
		v = v[2:]
	}
	return hex.DecodeString(v)
}
