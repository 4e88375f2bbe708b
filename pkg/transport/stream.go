package transport

import "net"

// StreamTransport adapts any net.Conn-like byte stream to Transport.
// WriteV falls back to sequential net.Conn.Write calls since net.Conn
// has no vectored-write primitive of its own; Fd returns -1, since a
// StreamTransport is meant for readiness sources (like loopback's)
// that do not key on file descriptors.
type StreamTransport struct {
	Conn net.Conn
}

// NewStreamTransport wraps conn.
func NewStreamTransport(conn net.Conn) *StreamTransport {
	return &StreamTransport{Conn: conn}
}

func (s *StreamTransport) Read(p []byte) (int, error) { return s.Conn.Read(p) }

// WriteV writes iovs in order, stopping at the first short write or
// error so the caller's partial-completion accounting (spec §4.8) sees
// an accurate byte count.
func (s *StreamTransport) WriteV(iovs [][]byte) (int, error) {
	total := 0
	for _, iov := range iovs {
		if len(iov) == 0 {
			continue
		}
		n, err := s.Conn.Write(iov)
		total += n
		if err != nil {
			return total, err
		}
		if n < len(iov) {
			return total, nil
		}
	}
	return total, nil
}

func (s *StreamTransport) Close() error { return s.Conn.Close() }

func (s *StreamTransport) Fd() int { return -1 }
