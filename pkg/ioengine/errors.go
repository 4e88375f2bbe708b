package ioengine

import "errors"

// Sentinel errors for I/O endpoint and dispatcher conditions,
// mirroring the root package's errors.go convention used throughout
// this module.
var (
	// ErrPeerClosed is returned by Endpoint.Read when the transport
	// reports a clean end-of-stream (spec §4.8: "On 0 bytes: peer
	// closed").
	ErrPeerClosed = errors.New("ioengine: peer closed connection")
	// ErrFrameTooLarge is a framing-fatal error: the handler's
	// declared frame length exceeds the PDU buffer's capacity, so no
	// read could ever complete it (spec §4.2's "minimum protocol PDU
	// size must be non-zero" progress guarantee, generalized to
	// oversize frames).
	ErrFrameTooLarge = errors.New("ioengine: frame length exceeds buffer capacity")
	// ErrZeroLengthFrame guards the spec §4.2 progress invariant: a
	// handler must never report a zero-byte frame length.
	ErrZeroLengthFrame = errors.New("ioengine: handler reported a zero-length frame")
)
