package connection

import (
	"net"
	"testing"

	"github.com/piscisaureus/istgt/internal/pdu"
	"github.com/piscisaureus/istgt/internal/scsi"
	"github.com/stretchr/testify/require"
)

// TestSendSCSIResponseReadDirectionUsesDataInPDUs exercises sendSCSIResponse
// at the wire level for a read-direction result (as INQUIRY/READ/REPORT
// LUNS/etc. all produce via scsi.Result.DataIn): the payload must travel on
// dedicated SCSI Data-In PDUs (opcode 0x25), not embedded in the SCSI
// Response's own data segment, per RFC 3720 (§4.7, §6, §8 property 5).
func TestSendSCSIResponseReadDirectionUsesDataInPDUs(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &Connection{
		conn: server,
		opts: pdu.Options{MaxDataSegmentLen: 512},
	}

	req := &pdu.PDU{}
	req.SetOpcode(pdu.OpSCSICommand)
	req.SetInitiatorTaskTag(42)

	payload := make([]byte, 1200)
	for i := range payload {
		payload[i] = 0xAB
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.sendSCSIResponse(req, scsi.Result{Status: scsi.StatusGood, DataIn: payload})
	}()

	var gotData []byte
	var sawFinal bool
	for !sawFinal {
		p, err := pdu.Decode(client, pdu.Options{MaxDataSegmentLen: 1 << 20})
		require.NoError(t, err)
		require.Equal(t, pdu.OpSCSIDataIn, p.Opcode())
		require.Equal(t, uint32(42), p.InitiatorTaskTag())
		require.Equal(t, uint32(len(gotData)), p.BufferOffset())
		gotData = append(gotData, p.Data...)
		sawFinal = p.Final()
		if sawFinal {
			require.Equal(t, byte(0x01), p.BHS[1]&0x01, "final Data-In must set the S bit")
			require.Equal(t, byte(scsi.StatusGood), p.BHS[3])
		} else {
			require.Zero(t, p.BHS[1]&0x01, "non-final Data-In must not set the S bit")
		}
	}
	require.Equal(t, payload, gotData)

	<-done
}

// TestSendSCSIResponseCheckConditionUsesResponsePDU confirms sense data
// still rides the SCSI Response's data segment (no Data-In involved) when a
// command fails, per §4.7/§6.
func TestSendSCSIResponseCheckConditionUsesResponsePDU(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := &Connection{
		conn: server,
		opts: pdu.Options{MaxDataSegmentLen: 8192},
	}

	req := &pdu.PDU{}
	req.SetOpcode(pdu.OpSCSICommand)
	req.SetInitiatorTaskTag(7)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.sendSCSIResponse(req, scsi.Result{Status: scsi.StatusCheckCondition, Sense: scsi.InvalidField()})
	}()

	p, err := pdu.Decode(client, pdu.Options{MaxDataSegmentLen: 8192})
	require.NoError(t, err)
	require.Equal(t, pdu.OpSCSIResponse, p.Opcode())
	require.Equal(t, byte(scsi.StatusCheckCondition), p.BHS[3])
	require.NotEmpty(t, p.Data)

	<-done
}
