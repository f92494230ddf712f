package connection

import (
	"net"
	"strconv"

	"github.com/piscisaureus/istgt/internal/pdu"
)

// handleTextRequest answers a Text Request PDU. The only operational text
// key this target services in Full-Feature Phase is SendTargets — a
// discovery session's way of enumerating the targets and portal addresses
// visible to it (§8 scenario S1). Every reply fits in one PDU, so the
// response always carries F=1 and a TTT of 0xFFFFFFFF (no continuation).
func (c *Connection) handleTextRequest(req *pdu.PDU, remote string) {
	host, _, _ := net.SplitHostPort(remote)

	var sendTargets string
	for _, kv := range decodeTextKV(req.Data) {
		if kv.Key == "SendTargets" {
			sendTargets = kv.Value
		}
	}

	var reply []KV
	if sendTargets != "" {
		reply = c.discoverTargets(sendTargets, host)
	}

	resp := &pdu.PDU{}
	resp.SetOpcode(pdu.OpTextResponse)
	resp.SetInitiatorTaskTag(req.InitiatorTaskTag())
	resp.SetTargetTransferTag(0xFFFFFFFF)
	resp.SetFinal(true)
	resp.Data = encodeTextKV(reply)
	c.stampResponse(resp)
	c.writePDU(resp)
}

// discoverTargets lists every target visible to this connection's
// initiator through the portal it connected on (sendTargets == "All"), or
// just the named target when it names one specifically — the same §4.3
// access check a Normal login's TargetName goes through, run across every
// configured target instead of one.
func (c *Connection) discoverTargets(sendTargets, sourceIP string) []KV {
	registry := c.rt.ACLRegistry()
	initiator := ""
	if c.login != nil {
		initiator = c.login.InitiatorName
	}

	var reply []KV
	for _, t := range c.rt.AllTargets() {
		if sendTargets != "All" && sendTargets != t.Name {
			continue
		}
		if registry != nil && !registry.Allow(t.Mappings, c.cfg.PortalTag, initiator, sourceIP) {
			continue
		}
		for _, m := range t.Mappings {
			for _, addr := range c.rt.PortalAddrs(m.PortalGroupTag) {
				reply = append(reply,
					KV{Key: "TargetName", Value: t.Name},
					KV{Key: "TargetAddress", Value: addr + "," + strconv.Itoa(m.PortalGroupTag)},
				)
			}
		}
	}
	return reply
}
