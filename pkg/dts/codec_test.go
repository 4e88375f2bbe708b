package dts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataOnlyRoundTrip(t *testing.T) {
	pdu := PDU{
		DType:       TypeDataOnly,
		EOW:         12,
		EOT:         5,
		AddressSize: 2,
		Source:      0x3,
		Destination: 0x7,
		Data: DataHeader{
			Flags:   Flags{First: true, Last: true},
			SegSize: 123,
			TxSeq:   9,
		},
		Payload: []byte("hello dts"),
	}
	wire, err := Encode(pdu)
	require.NoError(t, err)

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, pdu.DType, decoded.DType)
	require.Equal(t, pdu.EOW, decoded.EOW)
	require.Equal(t, pdu.EOT, decoded.EOT)
	require.Equal(t, pdu.Source, decoded.Source)
	require.Equal(t, pdu.Destination, decoded.Destination)
	require.Equal(t, pdu.Data, decoded.Data)
	require.True(t, bytes.Equal(pdu.Payload, decoded.Payload))
}

// TestSegmentBoundaryFlags reproduces spec §8's boundary case: a
// segment at the exact 800-byte mark yields 0x80 on the first segment
// at offset 0 and 0x40 on the final segment.
func TestSegmentBoundaryFlags(t *testing.T) {
	first := DataHeader{Flags: Flags{First: true}, SegSize: 800, TxSeq: 1}
	b := make([]byte, 3)
	first.encode(b)
	require.Equal(t, byte(0x80), b[0]&0xF0)

	last := DataHeader{Flags: Flags{Last: true}, SegSize: 100, TxSeq: 2}
	b2 := make([]byte, 3)
	last.encode(b2)
	require.Equal(t, byte(0x40), b2[0]&0xF0)
}

func TestAckOnlyRoundTrip(t *testing.T) {
	pdu := PDU{
		DType:       TypeAckOnly,
		AddressSize: 1,
		Source:      1,
		Destination: 2,
		Ack:         AckHeader{RxLWE: 5, Bitmap: []byte{0b0000_1010}},
	}
	wire, err := Encode(pdu)
	require.NoError(t, err)
	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, pdu.Ack, decoded.Ack)
	require.Empty(t, decoded.Payload)
}

func TestReservedDTypeRejected(t *testing.T) {
	pdu := PDU{DType: DType(10)}
	_, err := Encode(pdu)
	require.Error(t, err)

	wire := []byte{0x90, 0xEB, 0xA0, 0x00, 0x00, 0x00}
	_, err = Decode(wire)
	require.Error(t, err)
}

func TestNonARQOffsetRangeRejected(t *testing.T) {
	pdu := PDU{
		DType: TypeNonARQ,
		NonARQ: NonARQHeader{
			SegSize:  800,
			CPDUID:   1,
			CPDUSize: 1000,
			Offset:   900, // 900+800 > 1000
		},
	}
	_, err := Encode(pdu)
	require.Error(t, err)
}

func TestAddressPackingRoundTrip(t *testing.T) {
	b := packAddresses(0x3A, 0x5, 3)
	src, dst := unpackAddresses(b, 3)
	require.EqualValues(t, 0x3A, src)
	require.EqualValues(t, 0x5, dst)
}

func TestCorruptedPayloadCRCDetected(t *testing.T) {
	pdu := PDU{
		DType:       TypeDataOnly,
		AddressSize: 0,
		Data:        DataHeader{SegSize: 3, TxSeq: 1},
		Payload:     []byte("abc"),
	}
	wire, err := Encode(pdu)
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	_, err = Decode(wire)
	require.ErrorIs(t, err, ErrPayloadCRC)
}
