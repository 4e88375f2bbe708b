package sis

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarioBindUnbind reproduces spec §8 scenario 1 byte-for-byte.
func TestScenarioBindUnbind(t *testing.T) {
	bindWire := []byte{0x90, 0xEB, 0x00, 0x00, 0x04, 0x01, 0x30, 0x12, 0x30}
	pdu, err := Decode(bindWire)
	require.NoError(t, err)
	require.Equal(t, OpBindRequest, pdu.Opcode)
	require.EqualValues(t, 3, pdu.BindRequest.SAP)
	require.EqualValues(t, 0, pdu.BindRequest.Rank)

	table := NewTable()
	accepted := table.Bind(pdu.BindRequest, 2048)
	require.Equal(t, OpBindAccepted, accepted.Opcode)
	require.EqualValues(t, 3, accepted.BindAccepted.SAP)
	require.EqualValues(t, 2048, accepted.BindAccepted.MTU)
	require.Equal(t, 1, table.Count())

	unbindWire := []byte{0x90, 0xEB, 0x00, 0x00, 0x02, 0x02, 0x00}
	upud, err := Decode(unbindWire)
	require.NoError(t, err)
	require.Equal(t, OpUnbindRequest, upud.Opcode)

	indication := table.Unbind(3)
	require.Equal(t, OpUnbindIndication, indication.Opcode)
	require.Equal(t, 0, table.Count())
}

// TestUnidataRoundTrip reproduces spec §8 scenario 2: a 3-byte payload
// "ABC" carried end to end.
func TestUnidataRoundTrip(t *testing.T) {
	req := PDU{
		Opcode: OpUnidataRequest,
		Unidata: Unidata{
			Header:  UnidataHeader{DestSAP: 3, SrcSAP: 3},
			Payload: []byte("ABC"),
		},
	}
	wire, err := Encode(req)
	require.NoError(t, err)

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, OpUnidataRequest, decoded.Opcode)
	require.True(t, bytes.Equal([]byte{0x41, 0x42, 0x43}, decoded.Unidata.Payload))
}

func TestFrameLengthMatchesDecode(t *testing.T) {
	pdu := PDU{Opcode: OpUnbindRequest}
	wire, err := Encode(pdu)
	require.NoError(t, err)
	n, err := FrameLength(wire[:HeaderSize])
	require.NoError(t, err)
	require.Equal(t, len(wire), n)
}

func TestBadPreambleRejected(t *testing.T) {
	wire := []byte{0x00, 0xEB, 0x00, 0x00, 0x02, 0x02, 0x00}
	_, err := Decode(wire)
	require.ErrorIs(t, err, ErrBadPreamble)
}

func TestLengthBoundaries(t *testing.T) {
	// len == 0: a zero-payload frame (shortest legal header alone is
	// invalid since opcode must be present, but the framing boundary
	// itself must still be accepted by FrameLength).
	zero := []byte{0x90, 0xEB, 0x00, 0x00, 0x00}
	n, err := FrameLength(zero)
	require.NoError(t, err)
	require.Equal(t, HeaderSize, n)

	maxLen := []byte{0x90, 0xEB, 0x00, 0x1F, 0xFB} // 0x1FFB = 8187 = MaxLength
	n, err = FrameLength(maxLen)
	require.NoError(t, err)
	require.Equal(t, MaxPDUSize, n)
}

func TestBindRejectsDuplicateSAP(t *testing.T) {
	table := NewTable()
	req := BindRequest{SAP: 5, Rank: 1}
	first := table.Bind(req, 1024)
	require.Equal(t, OpBindAccepted, first.Opcode)
	second := table.Bind(req, 1024)
	require.Equal(t, OpBindRejected, second.Opcode)
	require.Equal(t, RejectSAPInUse, second.BindRejected.Reason)
}

func TestUPDUTooLargeRejected(t *testing.T) {
	req := PDU{
		Opcode: OpUnidataRequest,
		Unidata: Unidata{
			Payload: make([]byte, BroadcastMTU+1),
		},
	}
	_, err := Encode(req)
	require.Error(t, err)
}
