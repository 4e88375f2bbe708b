// Package sis implements the Subnet Interface Sublayer (STANAG 5066
// Annex A): wire framing, the primitive set clients use to bind SAPs
// and exchange unit-data, and per-SAP session bookkeeping.
package sis

import "encoding/binary"

// Preamble bytes and frame-size limits (spec §4.3, §6).
const (
	PreambleByte0 = 0x90
	PreambleByte1 = 0xEB
	PreambleByte2 = 0x00

	HeaderSize   = 5 // preamble(3) + length(2)
	MinPDUSize   = 5
	MaxPDUSize   = 8192
	MaxLength    = MaxPDUSize - HeaderSize // 8187
	MaxSAPID     = 15
	BroadcastMTU = 4096
)

// Opcode identifies a SIS primitive (spec §4.3).
type Opcode uint8

const (
	OpBindRequest       Opcode = 0x01
	OpUnbindRequest     Opcode = 0x02
	OpBindAccepted      Opcode = 0x03
	OpBindRejected      Opcode = 0x04
	OpUnbindIndication  Opcode = 0x05
	OpUnidataRequest    Opcode = 0x14
	OpUnidataIndication Opcode = 0x15
)

// ServiceType carries the delivery and transmission mode negotiated at
// bind time; the two bytes are opaque to this layer beyond framing,
// since spec.md names them only as "2-byte service type".
type ServiceType struct {
	DeliveryMode     uint8
	TransmissionMode uint8
}

func (s ServiceType) encode() [2]byte {
	return [2]byte{s.DeliveryMode, s.TransmissionMode}
}

func decodeServiceType(b []byte) ServiceType {
	return ServiceType{DeliveryMode: b[0], TransmissionMode: b[1]}
}

// BindRequest is opcode 0x01: sap(nib)|rank(nib), 2-byte service type.
type BindRequest struct {
	SAP     uint8
	Rank    uint8
	Service ServiceType
}

// UnbindRequest is opcode 0x02: one reserved byte.
type UnbindRequest struct {
	SAP uint8 // not on the wire; Decode leaves it zero and the bridge unbinds every SAP on the endpoint
}

// BindAccepted is opcode 0x03: sap(nib)|_, 16-bit MTU.
type BindAccepted struct {
	SAP uint8
	MTU uint16
}

// BindRejected is opcode 0x04: 1-byte reason.
type BindRejected struct {
	Reason RejectCode
}

// UnbindIndication is opcode 0x05: 1-byte reason.
type UnbindIndication struct {
	Reason RejectCode
}

// UnidataHeader is the 12-byte header preceding the u_pdu size and
// payload in UNIDATA_REQUEST/UNIDATA_INDICATION. spec.md names the
// header only by its total size; this layout (destination/source SAP,
// priority, delivery/transmission mode, 1 reserved byte, a 4-byte
// destination address, 2 reserved bytes) is the concrete decision
// recorded in DESIGN.md.
type UnidataHeader struct {
	DestSAP          uint8
	SrcSAP           uint8
	Priority         uint8
	DeliveryMode     uint8
	TransmissionMode uint8
	Reserved1        uint8
	DestAddress      uint32
	Reserved2        uint16
}

const unidataHeaderSize = 12

func (h UnidataHeader) encode(b []byte) {
	b[0] = h.DestSAP
	b[1] = h.SrcSAP
	b[2] = h.Priority
	b[3] = h.DeliveryMode
	b[4] = h.TransmissionMode
	b[5] = h.Reserved1
	binary.BigEndian.PutUint32(b[6:10], h.DestAddress)
	binary.BigEndian.PutUint16(b[10:12], h.Reserved2)
}

func decodeUnidataHeader(b []byte) UnidataHeader {
	return UnidataHeader{
		DestSAP:          b[0],
		SrcSAP:           b[1],
		Priority:         b[2],
		DeliveryMode:     b[3],
		TransmissionMode: b[4],
		Reserved1:        b[5],
		DestAddress:      binary.BigEndian.Uint32(b[6:10]),
		Reserved2:        binary.BigEndian.Uint16(b[10:12]),
	}
}

// Unidata is the shared shape of UNIDATA_REQUEST (opcode 0x14) and
// UNIDATA_INDICATION (opcode 0x15): identical on the wire except for
// opcode, per spec.md §4.3 ("symmetric").
type Unidata struct {
	Header  UnidataHeader
	Payload []byte
}

// PDU is a decoded SIS primitive together with its opcode; exactly one
// of the typed fields is populated depending on Opcode.
type PDU struct {
	Opcode           Opcode
	BindRequest      BindRequest
	UnbindRequest    UnbindRequest
	BindAccepted     BindAccepted
	BindRejected     BindRejected
	UnbindIndication UnbindIndication
	Unidata          Unidata
}

// Encode renders pdu as a full wire frame, including preamble and
// length field.
func Encode(pdu PDU) ([]byte, error) {
	var payload []byte
	switch pdu.Opcode {
	case OpBindRequest:
		r := pdu.BindRequest
		if r.SAP > MaxSAPID {
			return nil, ErrBadSAPRange(r.SAP)
		}
		svc := r.Service.encode()
		payload = []byte{byte(pdu.Opcode), r.SAP<<4 | r.Rank&0x0F, svc[0], svc[1]}
	case OpUnbindRequest:
		payload = []byte{byte(pdu.Opcode), 0x00}
	case OpBindAccepted:
		a := pdu.BindAccepted
		payload = make([]byte, 4)
		payload[0] = byte(pdu.Opcode)
		payload[1] = a.SAP << 4
		binary.BigEndian.PutUint16(payload[2:4], a.MTU)
	case OpBindRejected:
		payload = []byte{byte(pdu.Opcode), byte(pdu.BindRejected.Reason)}
	case OpUnbindIndication:
		payload = []byte{byte(pdu.Opcode), byte(pdu.UnbindIndication.Reason)}
	case OpUnidataRequest, OpUnidataIndication:
		u := pdu.Unidata
		if len(u.Payload) > BroadcastMTU {
			return nil, ErrUPDUTooLarge(len(u.Payload))
		}
		payload = make([]byte, 1+unidataHeaderSize+2+len(u.Payload))
		payload[0] = byte(pdu.Opcode)
		u.Header.encode(payload[1 : 1+unidataHeaderSize])
		binary.BigEndian.PutUint16(payload[1+unidataHeaderSize:1+unidataHeaderSize+2], uint16(len(u.Payload)))
		copy(payload[1+unidataHeaderSize+2:], u.Payload)
	default:
		return nil, ErrUnknownOpcode
	}
	if len(payload) > MaxLength {
		return nil, ErrLengthTooLarge
	}
	out := make([]byte, HeaderSize+len(payload))
	out[0], out[1], out[2] = PreambleByte0, PreambleByte1, PreambleByte2
	binary.BigEndian.PutUint16(out[3:5], uint16(len(payload)))
	copy(out[5:], payload)
	return out, nil
}

// Decode parses one full SIS frame from b, which must contain exactly
// one PDU (HeaderSize + declared length bytes). Use FrameLength to find
// a frame's total length within a streaming buffer first.
func Decode(b []byte) (PDU, error) {
	if len(b) < MinPDUSize {
		return PDU{}, ErrShortPDU
	}
	if b[0] != PreambleByte0 || b[1] != PreambleByte1 || b[2] != PreambleByte2 {
		return PDU{}, ErrBadPreamble
	}
	length := int(binary.BigEndian.Uint16(b[3:5]))
	if length > MaxLength {
		return PDU{}, ErrLengthTooLarge
	}
	if len(b) < HeaderSize+length {
		return PDU{}, ErrTruncated
	}
	payload := b[HeaderSize : HeaderSize+length]
	if len(payload) < 1 {
		return PDU{}, ErrShortPDU
	}
	op := Opcode(payload[0])
	switch op {
	case OpBindRequest:
		if len(payload) < 4 {
			return PDU{}, ErrShortPDU
		}
		return PDU{Opcode: op, BindRequest: BindRequest{
			SAP:     payload[1] >> 4,
			Rank:    payload[1] & 0x0F,
			Service: decodeServiceType(payload[2:4]),
		}}, nil
	case OpUnbindRequest:
		return PDU{Opcode: op}, nil
	case OpBindAccepted:
		if len(payload) < 4 {
			return PDU{}, ErrShortPDU
		}
		return PDU{Opcode: op, BindAccepted: BindAccepted{
			SAP: payload[1] >> 4,
			MTU: binary.BigEndian.Uint16(payload[2:4]),
		}}, nil
	case OpBindRejected:
		if len(payload) < 2 {
			return PDU{}, ErrShortPDU
		}
		return PDU{Opcode: op, BindRejected: BindRejected{Reason: RejectCode(payload[1])}}, nil
	case OpUnbindIndication:
		if len(payload) < 2 {
			return PDU{}, ErrShortPDU
		}
		return PDU{Opcode: op, UnbindIndication: UnbindIndication{Reason: RejectCode(payload[1])}}, nil
	case OpUnidataRequest, OpUnidataIndication:
		if len(payload) < 1+unidataHeaderSize+2 {
			return PDU{}, ErrShortPDU
		}
		header := decodeUnidataHeader(payload[1 : 1+unidataHeaderSize])
		size := int(binary.BigEndian.Uint16(payload[1+unidataHeaderSize : 1+unidataHeaderSize+2]))
		if size > BroadcastMTU {
			return PDU{}, ErrUPDUTooLarge(size)
		}
		start := 1 + unidataHeaderSize + 2
		if len(payload) < start+size {
			return PDU{}, ErrTruncated
		}
		u := Unidata{Header: header, Payload: append([]byte(nil), payload[start:start+size]...)}
		return PDU{Opcode: op, Unidata: u}, nil
	default:
		return PDU{}, ErrUnknownOpcode
	}
}

// FrameLength inspects the 5-byte SIS header at the start of b (which
// must have at least HeaderSize bytes) and returns the total wire
// length of the frame it introduces, for use as a PDU buffer's Need.
func FrameLength(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, ErrShortPDU
	}
	if header[0] != PreambleByte0 || header[1] != PreambleByte1 || header[2] != PreambleByte2 {
		return 0, ErrBadPreamble
	}
	length := int(binary.BigEndian.Uint16(header[3:5]))
	if length > MaxLength {
		return 0, ErrLengthTooLarge
	}
	return HeaderSize + length, nil
}
