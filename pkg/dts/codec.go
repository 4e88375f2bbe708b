// Package dts implements the Data Transfer Sublayer (STANAG 5066
// Annex C): D_PDU framing, the type-specific headers that carry ARQ
// sequence/window information or non-ARQ segment placement, and the
// CRC integrity check over header and payload.
package dts

import (
	"encoding/binary"

	"github.com/hflink/stanag5066/internal/crc"
)

// Preamble bytes and frame-size limits (spec §4.4, §6).
const (
	PreambleByte0 = 0x90
	PreambleByte1 = 0xEB

	MinPDUSize     = 6
	MaxPDUSize     = 4096
	MaxSegmentSize = 800
	MaxCPDUSize    = 4096
	MaxCPDUID      = 4095
)

// DType identifies the shape of a D_PDU's type-specific header.
type DType uint8

const (
	TypeDataOnly   DType = 0
	TypeAckOnly    DType = 1
	TypeDataAck    DType = 2
	TypeReset      DType = 3
	TypeEDataOnly  DType = 4
	TypeEAckOnly   DType = 5
	TypeMgmt       DType = 6
	TypeNonARQ     DType = 7
	TypeENonARQ    DType = 8
	TypeWarning    DType = 15
)

// reserved reports whether dt falls in the 9-14 reserved range.
func (dt DType) reserved() bool { return dt >= 9 && dt <= 14 }

// enhanced reports whether dt is one of the "E"-prefixed enhanced
// variants, which this implementation selects CRC-32 payload
// checking for (spec §6: "CRC-16 or CRC-32 ... as selected by
// D_TYPE" — the concrete selection rule is this implementation's
// decision, recorded in DESIGN.md).
func (dt DType) enhanced() bool {
	return dt == TypeEDataOnly || dt == TypeEAckOnly || dt == TypeENonARQ
}

// Flags are the per-segment bits carried by DATA_ONLY/DATA_ACK/NONARQ
// headers (spec §4.4).
type Flags struct {
	First      bool // bit 7: first segment of C_PDU
	Last       bool // bit 6: last segment of C_PDU
	TxUWEEdge  bool // bit 5: tx_uwe marker
	TxLWEEdge  bool // bit 4: tx_lwe marker
}

func (f Flags) encodeByte(segSizeHi uint8) byte {
	var b byte
	if f.First {
		b |= 0x80
	}
	if f.Last {
		b |= 0x40
	}
	if f.TxUWEEdge {
		b |= 0x20
	}
	if f.TxLWEEdge {
		b |= 0x10
	}
	b |= segSizeHi & 0x03
	return b
}

func decodeFlagsByte(b byte) (Flags, uint8) {
	f := Flags{
		First:     b&0x80 != 0,
		Last:      b&0x40 != 0,
		TxUWEEdge: b&0x20 != 0,
		TxLWEEdge: b&0x10 != 0,
	}
	return f, b & 0x03
}

// DataHeader is the +3 byte header on DATA_ONLY (and the data half of
// DATA_ACK): flags, a 10-bit segment size, and the 8-bit tx sequence.
type DataHeader struct {
	Flags   Flags
	SegSize uint16 // 10 bits
	TxSeq   uint8
}

func (h DataHeader) encode(b []byte) {
	b[0] = h.Flags.encodeByte(uint8(h.SegSize >> 8))
	b[1] = uint8(h.SegSize & 0xFF)
	b[2] = h.TxSeq
}

func decodeDataHeader(b []byte) DataHeader {
	f, hi := decodeFlagsByte(b[0])
	return DataHeader{
		Flags:   f,
		SegSize: uint16(hi)<<8 | uint16(b[1]),
		TxSeq:   b[2],
	}
}

// AckHeader is the ACK_ONLY header: rx_lwe followed by a selective-ACK
// bitmap of (rx_uwe - rx_lwe) / 8 bytes.
type AckHeader struct {
	RxLWE  uint8
	Bitmap []byte
}

func (h AckHeader) size() int { return 1 + len(h.Bitmap) }

func (h AckHeader) encode(b []byte) {
	b[0] = h.RxLWE
	copy(b[1:], h.Bitmap)
}

func decodeAckHeader(b []byte) AckHeader {
	bitmap := append([]byte(nil), b[1:]...)
	return AckHeader{RxLWE: b[0], Bitmap: bitmap}
}

// NonARQHeader is the NONARQ header: segment flags/size, the C_PDU
// identity and placement, and a receive-window hint with no
// backpressure effect (spec §9 open-question decision).
type NonARQHeader struct {
	Flags      Flags
	SegSize    uint16 // 10 bits
	CPDUID     uint16 // 12 bits
	CPDUSize   uint16
	Offset     uint16
	WindowHint uint16
}

const nonARQHeaderSize = 10

func (h NonARQHeader) encode(b []byte) {
	b[0] = h.Flags.encodeByte(uint8(h.SegSize >> 8))
	b[1] = uint8(h.SegSize & 0xFF)
	binary.BigEndian.PutUint16(b[2:4], h.CPDUID)
	binary.BigEndian.PutUint16(b[4:6], h.CPDUSize)
	binary.BigEndian.PutUint16(b[6:8], h.Offset)
	binary.BigEndian.PutUint16(b[8:10], h.WindowHint)
}

func decodeNonARQHeader(b []byte) NonARQHeader {
	f, hi := decodeFlagsByte(b[0])
	return NonARQHeader{
		Flags:      f,
		SegSize:    uint16(hi)<<8 | uint16(b[1]),
		CPDUID:     binary.BigEndian.Uint16(b[2:4]) & 0x0FFF,
		CPDUSize:   binary.BigEndian.Uint16(b[4:6]),
		Offset:     binary.BigEndian.Uint16(b[6:8]),
		WindowHint: binary.BigEndian.Uint16(b[8:10]),
	}
}

// ManagementInfo carries MGMT/WARNING payload bytes opaquely upward,
// per spec §9's open-question decision: unknown EOW/management codes
// are never a parse failure.
type ManagementInfo struct {
	Code uint8
	Data []byte
}

// Address is a nibble-packed DTS node address, up to 7 nibbles (28
// bits) wide per the 3-bit address_size field.
type Address uint32

// PDU is one decoded D_PDU.
type PDU struct {
	DType        DType
	EOW          uint16 // 12 bits
	EOT          uint8  // 0-127
	AddressSize  uint8  // 0-7 nibbles per address
	Source       Address
	Destination  Address
	Data         DataHeader
	Ack          AckHeader
	NonARQ       NonARQHeader
	Management   ManagementInfo
	Payload      []byte
}

func packAddresses(src, dst Address, nibbles uint8) []byte {
	total := int(nibbles) * 2
	out := make([]byte, (total+1)/2)
	nibbleAt := func(i int) uint8 {
		if i < int(nibbles) {
			shift := uint(int(nibbles)-1-i) * 4
			return uint8(src>>shift) & 0x0F
		}
		j := i - int(nibbles)
		shift := uint(int(nibbles)-1-j) * 4
		return uint8(dst>>shift) & 0x0F
	}
	for i := 0; i < total; i++ {
		n := nibbleAt(i)
		if i%2 == 0 {
			out[i/2] = n << 4
		} else {
			out[i/2] |= n
		}
	}
	return out
}

func unpackAddresses(b []byte, nibbles uint8) (src, dst Address) {
	get := func(i int) uint8 {
		byteVal := b[i/2]
		if i%2 == 0 {
			return byteVal >> 4
		}
		return byteVal & 0x0F
	}
	for i := 0; i < int(nibbles); i++ {
		src = src<<4 | Address(get(i))
	}
	for i := int(nibbles); i < int(nibbles)*2; i++ {
		dst = dst<<4 | Address(get(i))
	}
	return src, dst
}

func headerLengthFor(pdu PDU) int {
	switch pdu.DType {
	case TypeDataOnly, TypeEDataOnly:
		return 3
	case TypeAckOnly, TypeEAckOnly:
		return pdu.Ack.size()
	case TypeDataAck:
		return 3 + pdu.Ack.size()
	case TypeNonARQ, TypeENonARQ:
		return nonARQHeaderSize
	case TypeMgmt, TypeWarning:
		return 1 + len(pdu.Management.Data)
	default: // RESET and any future no-payload type
		return 0
	}
}

// Encode renders pdu as a complete wire frame including CRC.
func Encode(pdu PDU) ([]byte, error) {
	if pdu.DType.reserved() {
		return nil, ErrReservedDType(pdu.DType)
	}
	addrBytes := packAddresses(pdu.Source, pdu.Destination, pdu.AddressSize)
	// header_length is the type-specific header length only (spec
	// §4.4's byte 5 low-5-bits field); addresses are counted
	// separately via address_size, matching Decode's
	// off += addrBytes; typeHeader := b[off:off+headerLen] and
	// framelen.go's preHeaderSize + addrBytes + headerLen + 4.
	headerLen := headerLengthFor(pdu)

	preHeader := make([]byte, 6)
	preHeader[0] = PreambleByte0
	preHeader[1] = PreambleByte1
	preHeader[2] = byte(pdu.DType)<<4 | byte(pdu.EOW>>8)&0x0F
	preHeader[3] = byte(pdu.EOW & 0xFF)
	preHeader[4] = pdu.EOT & 0x7F
	preHeader[5] = (pdu.AddressSize&0x07)<<5 | uint8(headerLen)&0x1F

	body := make([]byte, 0, 6+len(addrBytes)+headerLen+4+len(pdu.Payload)+4)
	body = append(body, preHeader...)
	body = append(body, addrBytes...)

	switch pdu.DType {
	case TypeDataOnly, TypeEDataOnly:
		h := make([]byte, 3)
		pdu.Data.encode(h)
		body = append(body, h...)
	case TypeAckOnly, TypeEAckOnly:
		h := make([]byte, pdu.Ack.size())
		pdu.Ack.encode(h)
		body = append(body, h...)
	case TypeDataAck:
		h := make([]byte, 3)
		pdu.Data.encode(h)
		body = append(body, h...)
		a := make([]byte, pdu.Ack.size())
		pdu.Ack.encode(a)
		body = append(body, a...)
	case TypeNonARQ, TypeENonARQ:
		if pdu.NonARQ.SegSize == 0 {
			return nil, ErrZeroSegSize
		}
		if pdu.NonARQ.SegSize > MaxSegmentSize {
			return nil, AbortSegSizeExceeded
		}
		if int(pdu.NonARQ.Offset)+int(pdu.NonARQ.SegSize) > int(pdu.NonARQ.CPDUSize) || pdu.NonARQ.CPDUSize > MaxCPDUSize {
			return nil, AbortCPDUOffsetRange
		}
		h := make([]byte, nonARQHeaderSize)
		pdu.NonARQ.encode(h)
		body = append(body, h...)
	case TypeMgmt, TypeWarning:
		body = append(body, pdu.Management.Code)
		body = append(body, pdu.Management.Data...)
	case TypeReset:
		// no type-specific header
	}

	headerCRC := crc.Checksum32(body, 0, len(body))
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, uint32(headerCRC))
	body = append(body, crcBuf...)

	body = append(body, pdu.Payload...)
	if len(pdu.Payload) > 0 {
		if pdu.DType.enhanced() {
			sum := crc.Checksum32(pdu.Payload, 0, len(pdu.Payload))
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(sum))
			body = append(body, b...)
		} else {
			sum := crc.Checksum16(pdu.Payload, 0, len(pdu.Payload))
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, sum)
			body = append(body, b...)
		}
	}

	if len(body) > MaxPDUSize {
		return nil, AbortLengthExceeded
	}
	return body, nil
}

// Decode parses one full D_PDU from b.
func Decode(b []byte) (PDU, error) {
	if len(b) < MinPDUSize {
		return PDU{}, ErrShortPDU
	}
	if b[0] != PreambleByte0 || b[1] != PreambleByte1 {
		return PDU{}, ErrBadPreamble
	}
	dt := DType(b[2] >> 4)
	if dt.reserved() {
		return PDU{}, ErrReservedDType(dt)
	}
	eow := uint16(b[2]&0x0F)<<8 | uint16(b[3])
	eot := b[4] & 0x7F
	addrSize := b[5] >> 5
	headerLen := int(b[5] & 0x1F)

	off := 6
	addrBytes := (int(addrSize)*2 + 1) / 2
	if len(b) < off+addrBytes {
		return PDU{}, ErrTruncated
	}
	src, dst := unpackAddresses(b[off:off+addrBytes], addrSize)
	off += addrBytes

	if len(b) < off+headerLen {
		return PDU{}, ErrTruncated
	}
	typeHeader := b[off : off+headerLen]
	off += headerLen

	pdu := PDU{DType: dt, EOW: eow, EOT: eot, AddressSize: addrSize, Source: src, Destination: dst}

	switch dt {
	case TypeDataOnly, TypeEDataOnly:
		if len(typeHeader) < 3 {
			return PDU{}, ErrShortPDU
		}
		pdu.Data = decodeDataHeader(typeHeader)
	case TypeAckOnly, TypeEAckOnly:
		if len(typeHeader) < 1 {
			return PDU{}, ErrShortPDU
		}
		pdu.Ack = decodeAckHeader(typeHeader)
	case TypeDataAck:
		if len(typeHeader) < 4 {
			return PDU{}, ErrShortPDU
		}
		pdu.Data = decodeDataHeader(typeHeader[:3])
		pdu.Ack = decodeAckHeader(typeHeader[3:])
	case TypeNonARQ, TypeENonARQ:
		if len(typeHeader) < nonARQHeaderSize {
			return PDU{}, ErrShortPDU
		}
		pdu.NonARQ = decodeNonARQHeader(typeHeader)
		if pdu.NonARQ.SegSize == 0 {
			return PDU{}, ErrZeroSegSize
		}
		if pdu.NonARQ.SegSize > MaxSegmentSize {
			return PDU{}, AbortSegSizeExceeded
		}
		if int(pdu.NonARQ.Offset)+int(pdu.NonARQ.SegSize) > int(pdu.NonARQ.CPDUSize) || pdu.NonARQ.CPDUSize > MaxCPDUSize {
			return PDU{}, AbortCPDUOffsetRange
		}
	case TypeMgmt, TypeWarning:
		if len(typeHeader) >= 1 {
			pdu.Management = ManagementInfo{Code: typeHeader[0], Data: append([]byte(nil), typeHeader[1:]...)}
		}
	case TypeReset:
		// no type-specific header
	}

	if len(b) < off+4 {
		return PDU{}, ErrTruncated
	}
	wantHeaderCRC := binary.BigEndian.Uint32(b[off : off+4])
	gotHeaderCRC := crc.Checksum32(b[:off], 0, off)
	if uint32(gotHeaderCRC) != wantHeaderCRC {
		return PDU{}, ErrHeaderCRC
	}
	off += 4

	payloadCRCWidth := 2
	if dt.enhanced() {
		payloadCRCWidth = 4
	}
	if len(b) == off {
		// no payload carried by this D_PDU (e.g. ACK_ONLY, RESET)
		return pdu, nil
	}
	if len(b) < off+payloadCRCWidth {
		return PDU{}, ErrTruncated
	}
	payload := b[off : len(b)-payloadCRCWidth]
	if dt.enhanced() {
		want := binary.BigEndian.Uint32(b[len(b)-4:])
		got := crc.Checksum32(payload, 0, len(payload))
		if uint32(got) != want {
			return PDU{}, ErrPayloadCRC
		}
	} else {
		want := binary.BigEndian.Uint16(b[len(b)-2:])
		got := crc.Checksum16(payload, 0, len(payload))
		if got != want {
			return PDU{}, ErrPayloadCRC
		}
	}
	pdu.Payload = append([]byte(nil), payload...)
	return pdu, nil
}
