// Package fifo implements a small circular byte ring buffer. No other
// package in this module imports it; pkg/transport/loopback is built
// on net.Pipe instead.
package fifo

// Ring is a circular byte buffer with one reader and one writer. One
// slot is always left empty to distinguish full from empty.
type Ring struct {
	buffer   []byte
	writePos int
	readPos  int
}

// NewRing allocates a ring able to hold size-1 bytes at once.
func NewRing(size int) *Ring {
	return &Ring{buffer: make([]byte, size)}
}

func (r *Ring) Reset() {
	r.readPos = 0
	r.writePos = 0
}

// Space returns how many bytes can still be written without blocking.
func (r *Ring) Space() int {
	left := r.readPos - r.writePos - 1
	if left < 0 {
		left += len(r.buffer)
	}
	return left
}

// Occupied returns how many bytes are available to read.
func (r *Ring) Occupied() int {
	n := r.writePos - r.readPos
	if n < 0 {
		n += len(r.buffer)
	}
	return n
}

// Write copies as much of p into the ring as fits, returning the number
// of bytes written. sum, if non-nil, is fed every byte actually written
// so a caller can keep a running CRC over what passed through.
func (r *Ring) Write(p []byte, sum func(byte)) int {
	written := 0
	for _, b := range p {
		next := r.writePos + 1
		if next == r.readPos || (next == len(r.buffer) && r.readPos == 0) {
			break
		}
		r.buffer[r.writePos] = b
		written++
		if sum != nil {
			sum(b)
		}
		if next == len(r.buffer) {
			r.writePos = 0
		} else {
			r.writePos = next
		}
	}
	return written
}

// Read copies as many bytes as fit into p from the ring, returning the
// count actually read.
func (r *Ring) Read(p []byte) int {
	read := 0
	for i := range p {
		if r.readPos == r.writePos {
			break
		}
		p[i] = r.buffer[r.readPos]
		read++
		r.readPos++
		if r.readPos == len(r.buffer) {
			r.readPos = 0
		}
	}
	return read
}
