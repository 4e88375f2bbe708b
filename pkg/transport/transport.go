// Package transport names the two collaborators spec.md §1 places at
// the engine's boundary without specifying their implementation: a
// byte-stream-delivering "link-layer transport" and a generic
// readiness source. FDTransport and StreamTransport in this package
// implement Transport; the epoller, loopback and blocking subpackages
// implement Readiness (loopback also supplies a Transport pair).
package transport

import "time"

// Transport is one connection's byte stream, read from and written to
// by the dispatcher (spec §4.8, §6). WriteV performs a scatter-gather
// write of iovs and returns the number of bytes actually accepted,
// which may be less than the sum of their lengths.
type Transport interface {
	Read(p []byte) (int, error)
	WriteV(iovs [][]byte) (int, error)
	Close() error
	Fd() int
}

// Events is a bitmask of readiness conditions a Readiness source
// reports or is asked to watch for.
type Events uint8

const (
	EventReadable Events = 1 << iota
	EventWritable
)

// Event is one fd's observed readiness transition.
type Event struct {
	Fd     int
	Events Events
}

// Readiness is the generic readiness source the Dispatcher polls
// (spec §4.8, §9: "any edge-triggered or level-triggered readiness
// mechanism is acceptable provided the engine drains each readable
// endpoint to would-block before yielding, and re-registers
// writability as the outbound FIFO transitions empty<->non-empty").
type Readiness interface {
	Add(fd int, want Events) error
	Modify(fd int, want Events) error
	Remove(fd int) error
	Wait(timeout time.Duration) ([]Event, error)
}
