package sis

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that never reach the wire, mirroring
// the root package's errors.go (ErrIllegalArgument, ErrTimeout, ...).
var (
	ErrShortPDU       = errors.New("sis: PDU shorter than minimum frame size")
	ErrBadPreamble    = errors.New("sis: preamble mismatch")
	ErrLengthTooLarge = errors.New("sis: length field exceeds maximum PDU size")
	ErrUnknownOpcode  = errors.New("sis: unrecognized opcode")
	ErrTruncated      = errors.New("sis: declared length exceeds bytes available")
)

// ErrBadSAPRange reports a SAP id outside [0, MaxSAPID].
func ErrBadSAPRange(sap uint8) error {
	return fmt.Errorf("sis: SAP id %d out of range [0,%d]", sap, MaxSAPID)
}

// ErrUPDUTooLarge reports a u_pdu size beyond the broadcast MTU.
func ErrUPDUTooLarge(size int) error {
	return fmt.Errorf("sis: u_pdu size %d exceeds broadcast MTU %d", size, BroadcastMTU)
}

// RejectCode is the 1-byte reason carried by BIND_REJECTED and
// UNBIND_INDICATION, mirroring sdo_common.go's SDOAbortCode: a typed
// code with an Error() lookup table rather than a bare byte.
type RejectCode uint8

const (
	RejectNone           RejectCode = 0x00
	RejectSAPInUse       RejectCode = 0x01
	RejectBadSAP         RejectCode = 0x02
	RejectServiceUnknown RejectCode = 0x03
	RejectResourceLimit  RejectCode = 0x04
	RejectAdministrative RejectCode = 0x05
)

var rejectExplanation = map[RejectCode]string{
	RejectNone:           "no error",
	RejectSAPInUse:       "SAP already bound on this endpoint",
	RejectBadSAP:         "SAP id out of range",
	RejectServiceUnknown: "requested service type not supported",
	RejectResourceLimit:  "no resources available to bind SAP",
	RejectAdministrative: "administratively refused",
}

func (c RejectCode) Error() string {
	if s, ok := rejectExplanation[c]; ok {
		return s
	}
	return "unknown reject code"
}
