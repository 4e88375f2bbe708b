// Package loopback provides an in-process transport.Transport pair and
// a manually-driven transport.Readiness, grounded on the teacher's
// virtual.go in-memory CAN bus: a same-process stand-in for the real
// socket/epoll plumbing, used by tests and by any deployment that
// wants SIS and DTS endpoints wired directly together without a
// kernel socket in between.
package loopback

import (
	"net"
	"sync"
	"time"

	"github.com/hflink/stanag5066/pkg/transport"
)

// Pair returns two connected transports, each side's writes readable
// from the other (net.Pipe semantics: unbuffered, synchronous).
func Pair() (a, b transport.Transport) {
	ca, cb := net.Pipe()
	return &transport.StreamTransport{Conn: ca}, &transport.StreamTransport{Conn: cb}
}

// Readiness is a transport.Readiness driven entirely by explicit
// MarkReady calls rather than a kernel polling mechanism (spec §9:
// "any ... readiness mechanism is acceptable"). Intended for tests and
// same-process loopback wiring, where fds are arbitrary small integers
// assigned by the caller rather than real kernel descriptors.
type Readiness struct {
	mu      sync.Mutex
	want    map[int]transport.Events
	pending map[int]transport.Events
	signal  chan struct{}
}

// New returns an empty manually-driven readiness source.
func New() *Readiness {
	return &Readiness{
		want:    make(map[int]transport.Events),
		pending: make(map[int]transport.Events),
		signal:  make(chan struct{}, 1),
	}
}

func (r *Readiness) Add(fd int, want transport.Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.want[fd] = want
	return nil
}

func (r *Readiness) Modify(fd int, want transport.Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.want[fd] = want
	return nil
}

func (r *Readiness) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.want, fd)
	delete(r.pending, fd)
	return nil
}

// MarkReady records that fd is ready for events, waking the next Wait
// call (or an in-progress one). Callers typically mark EventReadable
// right after writing into fd's peer half of a Pair.
func (r *Readiness) MarkReady(fd int, events transport.Events) {
	r.mu.Lock()
	r.pending[fd] |= events
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until some marked-ready fd is also currently wanted, or
// timeout elapses, returning the matching events and clearing them
// from the pending set.
func (r *Readiness) Wait(timeout time.Duration) ([]transport.Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		if events := r.drain(); len(events) > 0 {
			return events, nil
		}
		remaining := time.Until(deadline)
		if timeout <= 0 {
			return nil, nil
		}
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-r.signal:
		case <-time.After(remaining):
			return nil, nil
		}
	}
}

func (r *Readiness) drain() []transport.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transport.Event
	for fd, ev := range r.pending {
		want := r.want[fd]
		matched := ev & want
		if matched == 0 {
			continue
		}
		out = append(out, transport.Event{Fd: fd, Events: matched})
		r.pending[fd] &^= matched
		if r.pending[fd] == 0 {
			delete(r.pending, fd)
		}
	}
	return out
}
