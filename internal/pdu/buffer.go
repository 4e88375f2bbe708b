// Package pdu implements the fixed-capacity PDU buffer and its
// free-list pool (spec §4.2): four cursors over one byte array, and the
// overflow discipline that splits a decoded PDU from the surplus bytes
// that follow it on the wire.
package pdu

import "fmt"

// DefaultCapacity is the default buffer size in bytes (spec §6,
// pdu_buffer_bytes).
const DefaultCapacity = 2200

// Buffer is a single fixed-capacity byte buffer with four cursors:
// Base <= Scan <= Append <= Limit. Base never moves in this
// implementation (a Buffer is never re-based in place; overflow
// handling allocates a fresh Buffer instead), but it is kept as an
// explicit field so the invariant reads the same as spec §3/§8.
type Buffer struct {
	data   []byte
	Base   int
	Scan   int
	Append int
	Limit  int
	// Need is the next byte count required before decoding is
	// meaningful; 0 suppresses decoding.
	Need int
}

// NewBuffer allocates a buffer of the given capacity, initialized per
// spec §4.2: Scan = Append = Base, Need = 1 (at least one read is
// required before any decode attempt).
func NewBuffer(capacity int) *Buffer {
	b := &Buffer{data: make([]byte, capacity)}
	b.reset()
	return b
}

func (b *Buffer) reset() {
	b.Base = 0
	b.Scan = 0
	b.Append = 0
	b.Limit = len(b.data)
	b.Need = 1
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of bytes delivered so far (Append - Base).
func (b *Buffer) Len() int { return b.Append - b.Base }

// Unscanned returns the bytes the codec has not yet consumed:
// data[Scan:Append].
func (b *Buffer) Unscanned() []byte { return b.data[b.Scan:b.Append] }

// Bytes returns the full delivered range: data[Base:Append].
func (b *Buffer) Bytes() []byte { return b.data[b.Base:b.Append] }

// Free returns the writable tail: data[Append:Limit].
func (b *Buffer) Free() []byte { return b.data[b.Append:b.Limit] }

// Advance moves Append forward by n bytes after an I/O read delivered
// n bytes into the tail returned by Free. It panics if n would violate
// Append <= Limit, which would indicate a caller bug, not a protocol
// error.
func (b *Buffer) Advance(n int) {
	if b.Append+n > b.Limit {
		panic(fmt.Sprintf("pdu: advance %d overflows limit (append=%d limit=%d)", n, b.Append, b.Limit))
	}
	b.Append += n
}

// MarkScanned moves Scan forward by n bytes after a codec has consumed
// them.
func (b *Buffer) MarkScanned(n int) {
	b.Scan += n
	if b.Scan > b.Append {
		panic("pdu: scan overran append")
	}
}

// Invariant reports whether Base <= Scan <= Append <= Limit and Need >= 0,
// the per-endpoint invariant in spec §8.
func (b *Buffer) Invariant() bool {
	return b.Base <= b.Scan && b.Scan <= b.Append && b.Append <= b.Limit && b.Need >= 0
}

// Overflow implements the post-read adjustment of spec §4.2: once a
// codec has established that the current buffer holds exactly one PDU
// of declared length total (measured from Base), split it off. If the
// buffer holds more than total bytes, the surplus is copied into a
// fresh buffer of the same capacity which becomes the new "current
// read" buffer; this one is trimmed to contain exactly the PDU. If the
// buffer holds total bytes or fewer, nil is returned: the whole buffer
// is the decoded PDU and there is no successor.
func (b *Buffer) Overflow(total int) (surplus *Buffer) {
	n := b.Len()
	if n <= total {
		return nil
	}
	extra := n - total
	fresh := NewBuffer(len(b.data))
	copy(fresh.data[0:extra], b.data[b.Base+total:b.Base+n])
	fresh.Append = extra
	fresh.Need = 1
	b.Limit = b.Base + total
	b.Append = b.Base + total
	if b.Scan > b.Append {
		b.Scan = b.Append
	}
	return fresh
}
