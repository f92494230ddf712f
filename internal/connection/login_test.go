package connection

import (
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/piscisaureus/istgt/internal/chapauth"
	"github.com/piscisaureus/istgt/internal/pdu"
)

func loginRequestPDU(csg, nsg byte, transit bool, kvs []KV) *pdu.PDU {
	p := &pdu.PDU{}
	p.SetOpcode(pdu.OpLoginRequest)
	p.BHS[1] = (csg << 2) | nsg
	p.SetFinal(transit)
	p.Data = encodeTextKV(kvs)
	return p
}

func TestLoginNoAuthReachesFullFeature(t *testing.T) {
	ls := NewLoginState(false, 0, nil)

	secReq := loginRequestPDU(pdu.StageSecurityNegotiation, pdu.StageLoginOperationalNegotiate, true, []KV{
		{Key: "InitiatorName", Value: "iqn.test:init1"},
		{Key: "TargetName", Value: "iqn.test:tgt1"},
		{Key: "SessionType", Value: "Normal"},
	})
	res, err := ls.HandleRequest(secReq)
	if err != nil {
		t.Fatal(err)
	}
	if res.FullFeature {
		t.Fatal("should not reach full feature after security stage alone")
	}
	if ls.Phase != PhaseOperational {
		t.Fatalf("expected PhaseOperational, got %v", ls.Phase)
	}

	opReq := loginRequestPDU(pdu.StageLoginOperationalNegotiate, pdu.StageFullFeaturePhase, true, []KV{
		{Key: "MaxBurstLength", Value: "131072"},
	})
	res, err = ls.HandleRequest(opReq)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FullFeature {
		t.Fatal("expected full feature transition")
	}
	if ls.Negotiator.Params().MaxBurstLength != 131072 {
		t.Fatalf("expected negotiated MaxBurstLength=131072, got %d", ls.Negotiator.Params().MaxBurstLength)
	}
}

func TestLoginCHAPSuccess(t *testing.T) {
	const secret = "sekritsekritsekrit"
	lookup := func(authGroup int, initiatorName string) (string, bool) {
		if initiatorName == "iqn.test:init1" {
			return secret, true
		}
		return "", false
	}
	ls := NewLoginState(true, 1, lookup)

	offerReq := loginRequestPDU(pdu.StageSecurityNegotiation, pdu.StageSecurityNegotiation, false, []KV{
		{Key: "InitiatorName", Value: "iqn.test:init1"},
		{Key: "AuthMethod", Value: "CHAP,None"},
	})
	res, err := ls.HandleRequest(offerReq)
	if err != nil {
		t.Fatal(err)
	}
	var id byte
	var challenge []byte
	for _, kv := range res.Reply {
		if kv.Key == "CHAP_I" {
			id = parseCHAPID(t, kv.Value)
		}
		if kv.Key == "CHAP_C" {
			challenge = parseCHAPChallenge(t, kv.Value)
		}
	}
	if challenge == nil {
		t.Fatal("expected CHAP_C in offer")
	}

	response := chapauth.Response(id, secret, challenge)
	replyReq := loginRequestPDU(pdu.StageSecurityNegotiation, pdu.StageLoginOperationalNegotiate, true, []KV{
		{Key: "CHAP_N", Value: "iqn.test:init1"},
		{Key: "CHAP_R", Value: "0x" + hex.EncodeToString(response)},
	})
	res, err = ls.HandleRequest(replyReq)
	if err != nil {
		t.Fatalf("expected CHAP verification to succeed: %v", err)
	}
	if ls.Phase != PhaseOperational {
		t.Fatalf("expected transition to operational phase, got %v", ls.Phase)
	}
}

func TestLoginCHAPWrongSecretFails(t *testing.T) {
	lookup := func(authGroup int, initiatorName string) (string, bool) { return "correct-secret", true }
	ls := NewLoginState(true, 1, lookup)

	offerReq := loginRequestPDU(pdu.StageSecurityNegotiation, pdu.StageSecurityNegotiation, false, []KV{
		{Key: "AuthMethod", Value: "CHAP"},
	})
	res, err := ls.HandleRequest(offerReq)
	if err != nil {
		t.Fatal(err)
	}
	var id byte
	var challenge []byte
	for _, kv := range res.Reply {
		if kv.Key == "CHAP_I" {
			id = parseCHAPID(t, kv.Value)
		}
		if kv.Key == "CHAP_C" {
			challenge = parseCHAPChallenge(t, kv.Value)
		}
	}

	wrongResponse := chapauth.Response(id, "wrong-secret", challenge)
	replyReq := loginRequestPDU(pdu.StageSecurityNegotiation, pdu.StageLoginOperationalNegotiate, true, []KV{
		{Key: "CHAP_N", Value: "iqn.test:init1"},
		{Key: "CHAP_R", Value: "0x" + hex.EncodeToString(wrongResponse)},
	})
	if _, err := ls.HandleRequest(replyReq); err == nil {
		t.Fatal("expected CHAP verification to fail for wrong secret")
	}
}

func parseCHAPID(t *testing.T, v string) byte {
	t.Helper()
	n, err := strconv.Atoi(v)
	if err != nil {
		t.Fatal(err)
	}
	return byte(n)
}

func parseCHAPChallenge(t *testing.T, v string) []byte {
	t.Helper()
	b, err := decodeHexField(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
