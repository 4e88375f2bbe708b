// Package blocking implements a trivial transport.Readiness for
// transports backed by a blocking net.Conn (spec §9: "any
// edge-triggered or level-triggered readiness mechanism is acceptable").
// A blocking socket's Read/WriteV calls already park the calling
// goroutine until data or buffer space is available, so this Readiness
// simply reports every registered fd as always wanting whatever it was
// last told to watch for; the dispatcher's own Read/FlushWrites calls
// do the actual waiting inside the kernel.
package blocking

import (
	"sync"
	"time"

	"github.com/hflink/stanag5066/pkg/transport"
)

// Readiness is a level-triggered stand-in for poll/epoll that assumes
// every watched fd is backed by a blocking transport. It is sized for
// the one-endpoint-per-worker shape ioengine.Engine.accept creates
// (spec §5: one worker owns one readiness source).
type Readiness struct {
	mu   sync.Mutex
	want map[int]transport.Events
}

// New returns an empty blocking-mode readiness source.
func New() *Readiness {
	return &Readiness{want: make(map[int]transport.Events)}
}

func (r *Readiness) Add(fd int, want transport.Events) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.want[fd] = want
	return nil
}

func (r *Readiness) Modify(fd int, want transport.Events) error {
	return r.Add(fd, want)
}

func (r *Readiness) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.want, fd)
	return nil
}

// Wait returns every currently watched fd as ready for whatever events
// it last registered interest in, without waiting: the dispatcher's
// subsequent Read/FlushWrites calls block in the kernel until there is
// real work to do. timeout is used only when no fd is watched, in which
// case Wait sleeps for timeout and returns no events.
func (r *Readiness) Wait(timeout time.Duration) ([]transport.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.want) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}
	out := make([]transport.Event, 0, len(r.want))
	for fd, want := range r.want {
		out = append(out, transport.Event{Fd: fd, Events: want})
	}
	return out, nil
}
