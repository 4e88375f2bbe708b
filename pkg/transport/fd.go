package transport

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FDTransport adapts a raw, already-connected, non-blocking socket
// file descriptor to Transport, grounded on pkg/can/socketcanv3's
// raw-fd style (unix.Read, and unix.Syscall6 for the vectored-write
// syscall the x/sys/unix package does not wrap directly, the same way
// socketcanv3 calls unix.Syscall6(unix.SYS_RECVMMSG, ...)).
type FDTransport struct {
	fd int
}

// NewFDTransport wraps an already-bound, non-blocking fd.
func NewFDTransport(fd int) *FDTransport {
	return &FDTransport{fd: fd}
}

func (t *FDTransport) Fd() int { return t.fd }

func (t *FDTransport) Read(p []byte) (int, error) {
	return unix.Read(t.fd, p)
}

// iovecFor builds a unix.Iovec pointing at b without copying.
func iovecFor(b []byte) unix.Iovec {
	var iov unix.Iovec
	if len(b) > 0 {
		iov.Base = &b[0]
	}
	iov.SetLen(len(b))
	return iov
}

// WriteV issues a single writev(2) syscall over iovs, returning the
// number of bytes the kernel accepted (which may be fewer than the sum
// of iovs' lengths, per spec §4.8's partial-completion contract).
func (t *FDTransport) WriteV(iovs [][]byte) (int, error) {
	if len(iovs) == 0 {
		return 0, nil
	}
	raw := make([]unix.Iovec, len(iovs))
	for i, iov := range iovs {
		raw[i] = iovecFor(iov)
	}
	n, _, errno := unix.Syscall6(
		unix.SYS_WRITEV,
		uintptr(t.fd),
		uintptr(unsafe.Pointer(&raw[0])),
		uintptr(len(raw)),
		0, 0, 0,
	)
	if errno != 0 {
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, errors.New("transport: writev: " + errno.Error())
	}
	return int(n), nil
}

func (t *FDTransport) Close() error {
	return unix.Close(t.fd)
}
