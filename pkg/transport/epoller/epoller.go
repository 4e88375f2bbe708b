// Package epoller implements a Linux epoll-based transport.Readiness,
// grounded directly on pkg/can/socketcanv3's raw-socket/unsafe.Pointer/
// unix.Syscall6 idiom: that file builds unix.Iovec arrays for
// recvmmsg; this one builds unix.EpollEvent arrays for epoll_wait the
// same way, same dependency (golang.org/x/sys/unix), new domain.
package epoller

import (
	"time"

	"github.com/hflink/stanag5066/pkg/transport"
	"golang.org/x/sys/unix"
)

// Epoller is the reference Readiness implementation (spec §4.9): any
// other implementation is equally valid per spec §9's open design
// note, this is simply the one the dispatcher ships with.
type Epoller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates an epoll instance sized to hold up to maxEvents ready
// descriptors per Wait call.
func New(maxEvents int) (*Epoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 64
	}
	return &Epoller{epfd: epfd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

func toEpollMask(want transport.Events) uint32 {
	var mask uint32
	if want&transport.EventReadable != 0 {
		mask |= unix.EPOLLIN
	}
	if want&transport.EventWritable != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func fromEpollMask(mask uint32) transport.Events {
	var ev transport.Events
	if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ev |= transport.EventReadable
	}
	if mask&unix.EPOLLOUT != 0 {
		ev |= transport.EventWritable
	}
	return ev
}

// Add registers fd for the given readiness conditions.
func (e *Epoller) Add(fd int, want transport.Events) error {
	ev := unix.EpollEvent{Events: toEpollMask(want), Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify changes the watched readiness conditions for fd, used when
// the dispatcher's outbound FIFO transitions empty<->non-empty and
// writability needs to be (de)registered (spec §9).
func (e *Epoller) Modify(fd int, want transport.Events) error {
	ev := unix.EpollEvent{Events: toEpollMask(want), Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove stops watching fd.
func (e *Epoller) Remove(fd int) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeout for readiness events, returning one Event
// per ready fd.
func (e *Epoller) Wait(timeout time.Duration) ([]transport.Event, error) {
	msec := int(timeout / time.Millisecond)
	if timeout < 0 {
		msec = -1
	}
	n, err := unix.EpollWait(e.epfd, e.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]transport.Event, n)
	for i := 0; i < n; i++ {
		out[i] = transport.Event{
			Fd:     int(e.events[i].Fd),
			Events: fromEpollMask(e.events[i].Events),
		}
	}
	return out, nil
}

// Close releases the epoll instance.
func (e *Epoller) Close() error {
	return unix.Close(e.epfd)
}
