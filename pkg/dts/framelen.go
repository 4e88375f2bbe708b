package dts

// FrameLength inspects the leading bytes of a D_PDU being assembled
// from a byte stream and reports the frame's total wire length once
// enough bytes have arrived to compute it (spec §4.2: "the codec sets
// need to 0 when the PDU is consumed or to a larger value when more
// bytes are required"). Unlike SIS, DTS has no single length field;
// the length is derived from header_length (known after 6 bytes) and,
// for segment-carrying types, the segment size embedded in the
// type-specific header (known once header_length bytes have arrived).
//
// FrameLength returns (total, true, nil) once the length is known, or
// (needed, false, nil) naming how many bytes must arrive before
// FrameLength can be called again productively.
func FrameLength(b []byte) (total int, ok bool, err error) {
	const preHeaderSize = 6
	if len(b) < preHeaderSize {
		return preHeaderSize, false, nil
	}
	dt := DType(b[2] >> 4)
	if dt.reserved() {
		return 0, false, ErrReservedDType(dt)
	}
	addrSize := b[5] >> 5
	headerLen := int(b[5] & 0x1F)
	addrBytes := (int(addrSize)*2 + 1) / 2
	need := preHeaderSize + addrBytes + headerLen + 4 // + header CRC
	if len(b) < need {
		return need, false, nil
	}

	typeHeaderOffset := preHeaderSize + addrBytes
	switch dt {
	case TypeDataOnly, TypeEDataOnly, TypeDataAck, TypeNonARQ, TypeENonARQ:
		if headerLen < 2 {
			return 0, false, ErrShortPDU
		}
		_, hi := decodeFlagsByte(b[typeHeaderOffset])
		segSize := int(hi)<<8 | int(b[typeHeaderOffset+1])
		if segSize == 0 {
			return need, true, nil
		}
		crcWidth := 2
		if dt.enhanced() {
			crcWidth = 4
		}
		return need + segSize + crcWidth, true, nil
	default: // ACK_ONLY, EACK_ONLY, MGMT, WARNING, RESET: no trailing payload segment
		return need, true, nil
	}
}
