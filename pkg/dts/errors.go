package dts

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that never produce an on-wire
// D_PDU, mirroring the root package's errors.go.
var (
	ErrShortPDU      = errors.New("dts: PDU shorter than minimum frame size")
	ErrBadPreamble   = errors.New("dts: preamble mismatch")
	ErrTruncated     = errors.New("dts: declared length exceeds bytes available")
	ErrHeaderCRC     = errors.New("dts: header CRC mismatch")
	ErrPayloadCRC    = errors.New("dts: payload CRC mismatch")
	ErrZeroSegSize   = errors.New("dts: segment size must be non-zero")
)

// AbortCode is a typed D_PDU rejection reason, mirroring
// sdo_common.go's SDOAbortCode: a numeric code with an Error() lookup
// table rather than a bare constant.
type AbortCode uint8

const (
	AbortNone             AbortCode = 0x00
	AbortReservedDType    AbortCode = 0x01
	AbortLengthExceeded   AbortCode = 0x02
	AbortZeroDeclaredSize AbortCode = 0x03
	AbortSegSizeExceeded  AbortCode = 0x04
	AbortCPDUOffsetRange  AbortCode = 0x05
)

var abortExplanation = map[AbortCode]string{
	AbortNone:             "no error",
	AbortReservedDType:    "D_TYPE value 9-14 is reserved",
	AbortLengthExceeded:   "PDU length exceeds maximum D_PDU size",
	AbortZeroDeclaredSize: "declared C_PDU size is zero",
	AbortSegSizeExceeded:  "segment size exceeds 800 bytes",
	AbortCPDUOffsetRange:  "segment offset + size exceeds declared C_PDU size",
}

func (c AbortCode) Error() string {
	if s, ok := abortExplanation[c]; ok {
		return s
	}
	return "unknown abort code"
}

// ErrReservedDType reports a reserved D_TYPE value (9-14).
func ErrReservedDType(dt DType) error {
	return fmt.Errorf("dts: D_TYPE %d is reserved: %w", dt, AbortReservedDType)
}
