package connection

import (
	"fmt"

	"github.com/piscisaureus/istgt/internal/aclpolicy"
	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/piscisaureus/istgt/internal/pdu"
)

// LoginPhase tracks progress through the CSG sequence a single login
// conversation moves through (§4.5): Security is optional and skipped when
// AuthMethod=None is selected immediately.
type LoginPhase int

const (
	PhaseSecurity LoginPhase = iota
	PhaseOperational
	PhaseDone
)

// LoginState is the per-connection login negotiation state, alive only
// between the first Login Request and the Full-Feature transition.
type LoginState struct {
	Negotiator *Negotiator
	Phase      LoginPhase

	TargetName    string
	InitiatorName string
	SessionType   string // "Normal" or "Discovery"
	ISID          [6]byte
	TSIH          uint16

	authRequired bool
	authDone     bool
	chap         *chapServer
	lookupSecret SecretLookup
	authGroup    int
}

// NewLoginState starts a login conversation. authRequired/authGroup/lookup
// come from the target's (or discovery) AuthGroup configuration (§6).
func NewLoginState(authRequired bool, authGroup int, lookup SecretLookup) *LoginState {
	return &LoginState{
		Negotiator:   NewNegotiator(),
		Phase:        PhaseSecurity,
		authRequired: authRequired,
		authGroup:    authGroup,
		lookupSecret: lookup,
	}
}

// LoginResult is what processing one Login Request PDU yields: the reply
// key/value list, the login status, and whether Full-Feature Phase was
// reached.
type LoginResult struct {
	Reply       []KV
	Status      byte
	Detail      byte
	FullFeature bool
}

// HandleRequest processes one Login Request PDU's CSG/NSG and key=value
// payload, advancing ls.Phase as appropriate.
func (ls *LoginState) HandleRequest(req *pdu.PDU) (LoginResult, error) {
	csg := (req.BHS[1] >> 2) & 0x03
	nsg := req.BHS[1] & 0x03
	transit := req.Final()

	kvs := decodeTextKV(req.Data)
	for _, kv := range kvs {
		switch kv.Key {
		case "InitiatorName":
			ls.InitiatorName = kv.Value
		case "TargetName":
			ls.TargetName = kv.Value
		case "SessionType":
			ls.SessionType = kv.Value
		}
	}

	switch csg {
	case pdu.StageSecurityNegotiation:
		return ls.handleSecurity(kvs, transit, nsg)
	case pdu.StageLoginOperationalNegotiate:
		return ls.handleOperational(kvs, transit, nsg)
	default:
		return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailInitiatorError},
			fmt.Errorf("unsupported login stage %d: %w", csg, istgterr.ErrProtocol)
	}
}

func (ls *LoginState) handleSecurity(kvs []KV, transit bool, nsg byte) (LoginResult, error) {
	var reply []KV

	if !ls.authRequired {
		ls.authDone = true
		if transit && nsg == pdu.StageLoginOperationalNegotiate {
			ls.Phase = PhaseOperational
		}
		return LoginResult{Reply: reply, Status: pdu.LoginStatusSuccess}, nil
	}

	for _, kv := range kvs {
		if kv.Key == "AuthMethod" {
			chosen := firstCommon(splitCSV(kv.Value), []string{"CHAP", "None"})
			if chosen != "CHAP" {
				return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailAuthFailure},
					fmt.Errorf("initiator refused CHAP: %w", istgterr.ErrAuth)
			}
			ls.chap = &chapServer{}
			offer, err := ls.chap.Offer()
			if err != nil {
				return LoginResult{}, err
			}
			reply = append([]KV{{Key: "AuthMethod", Value: "CHAP"}}, offer...)
			return LoginResult{Reply: reply, Status: pdu.LoginStatusSuccess}, nil
		}
		if kv.Key == "CHAP_N" {
			var chapR string
			for _, v := range kvs {
				if v.Key == "CHAP_R" {
					chapR = v.Value
				}
			}
			secret, ok := ls.lookupSecret(ls.authGroup, kv.Value)
			if !ok {
				return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailAuthFailure},
					fmt.Errorf("no secret configured for initiator %q: %w", kv.Value, istgterr.ErrAuth)
			}
			if ls.chap == nil {
				return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailAuthFailure},
					fmt.Errorf("CHAP_N received before CHAP_A offer: %w", istgterr.ErrProtocol)
			}
			if err := ls.chap.Verify(kv.Value, chapR, secret); err != nil {
				return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailAuthFailure}, err
			}
			ls.authDone = true
			if transit && nsg == pdu.StageLoginOperationalNegotiate {
				ls.Phase = PhaseOperational
			}
			return LoginResult{Status: pdu.LoginStatusSuccess}, nil
		}
	}

	return LoginResult{Status: pdu.LoginStatusSuccess}, nil
}

func (ls *LoginState) handleOperational(kvs []KV, transit bool, nsg byte) (LoginResult, error) {
	if ls.authRequired && !ls.authDone {
		return LoginResult{Status: pdu.LoginStatusInitiatorError, Detail: pdu.LoginDetailAuthFailure},
			fmt.Errorf("operational negotiation attempted before CHAP completed: %w", istgterr.ErrAuth)
	}

	reply := make([]KV, 0, len(kvs))
	for _, kv := range kvs {
		if kv.Key == "InitiatorName" || kv.Key == "TargetName" || kv.Key == "SessionType" {
			continue
		}
		if v, ok := ls.Negotiator.Reconcile(kv.Key, kv.Value); ok {
			reply = append(reply, KV{Key: kv.Key, Value: v})
		}
	}

	result := LoginResult{Reply: reply, Status: pdu.LoginStatusSuccess}
	if transit && nsg == pdu.StageFullFeaturePhase {
		ls.Phase = PhaseDone
		result.FullFeature = true
	}
	return result, nil
}

// CheckAccess enforces §4.3 access policy before a login is allowed to
// proceed past the operational phase.
func CheckAccess(registry *aclpolicy.Registry, mappings []aclpolicy.Mapping, portalTag int, initiatorName, sourceIP string) error {
	if registry.Allow(mappings, portalTag, initiatorName, sourceIP) {
		return nil
	}
	return fmt.Errorf("initiator %q from %s denied by access policy: %w", initiatorName, sourceIP, istgterr.ErrAccessDenied)
}
