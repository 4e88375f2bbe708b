package segment

import "errors"

// Sentinel errors for reassembly conditions, mirroring the root
// package's errors.go convention used throughout this module.
var (
	ErrBadCPDUSize  = errors.New("segment: declared C_PDU size out of range")
	ErrOffsetRange  = errors.New("segment: offset + size exceeds declared C_PDU size")
	ErrSizeMismatch = errors.New("segment: declared C_PDU size changed mid-reassembly")
)
