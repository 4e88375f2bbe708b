package arq

import "errors"

// Sentinel errors for ARQ state-machine conditions, mirroring the root
// package's errors.go (ErrRxOverflow, ErrTxOverflow, ...).
var (
	ErrWindowFull      = errors.New("arq: transmit window full")
	ErrOutsideWindow   = errors.New("arq: sequence number outside receive window")
	ErrRetryExhausted  = errors.New("arq: retry budget exhausted, resetting channel")
	ErrNotActive       = errors.New("arq: connection is not in the active state")
	ErrResetInProgress = errors.New("arq: reset already in progress")
)
