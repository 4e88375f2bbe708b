package dts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameLengthMatchesEncodedSize(t *testing.T) {
	cases := []PDU{
		{
			DType: TypeDataOnly, AddressSize: 2, Source: 1, Destination: 2,
			Data:    DataHeader{Flags: Flags{First: true, Last: true}, SegSize: 5, TxSeq: 1},
			Payload: []byte("hello"),
		},
		{
			DType: TypeAckOnly, AddressSize: 2, Source: 1, Destination: 2,
			Ack: AckHeader{RxLWE: 3, Bitmap: []byte{0xFF, 0x01}},
		},
		{
			DType: TypeNonARQ, AddressSize: 1, Source: 1, Destination: 2,
			NonARQ: NonARQHeader{
				Flags: Flags{First: true, Last: true}, SegSize: 10,
				CPDUID: 4, CPDUSize: 10, Offset: 0, WindowHint: 0,
			},
			Payload: make([]byte, 10),
		},
		{
			DType: TypeReset, AddressSize: 2, Source: 1, Destination: 2,
		},
	}
	for _, pdu := range cases {
		wire, err := Encode(pdu)
		require.NoError(t, err)

		total, ok, err := FrameLength(wire)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, len(wire), total)
	}
}

func TestFrameLengthReportsMoreNeeded(t *testing.T) {
	pdu := PDU{
		DType: TypeDataOnly, AddressSize: 2, Source: 1, Destination: 2,
		Data:    DataHeader{Flags: Flags{First: true, Last: true}, SegSize: 5, TxSeq: 1},
		Payload: []byte("hello"),
	}
	wire, err := Encode(pdu)
	require.NoError(t, err)

	_, ok, err := FrameLength(wire[:3])
	require.NoError(t, err)
	require.False(t, ok)

	need, ok, err := FrameLength(wire[:6])
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, need, 6)

	total, ok, err := FrameLength(wire)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(wire), total)
}

func TestFrameLengthRejectsReservedDType(t *testing.T) {
	b := []byte{PreambleByte0, PreambleByte1, 0x90, 0x00, 0x00, 0x00}
	_, _, err := FrameLength(b)
	require.Error(t, err)
}
