// Package segment implements the Segmentation Engine (spec §4.6):
// splitting an outgoing C_PDU into fixed-size D_PDU segments, and
// reassembling incoming segments back into a complete C_PDU with gap
// tracking.
package segment

import "time"

// MaxSegmentSize is the maximum D_PDU segment size (spec §4.4, §6:
// dts_segment_size).
const MaxSegmentSize = 800

// MaxCPDUSize is the maximum C_PDU size accepted for segmentation or
// reassembly (spec §4.4, §6: dts_max_pdu_size).
const MaxCPDUSize = 4096

// Piece is one outgoing segment of a C_PDU: its byte range and the
// first/last flags spec §4.6 assigns by offset.
type Piece struct {
	Offset  int
	Data    []byte
	First   bool
	Last    bool
}

// Split breaks payload into MaxSegmentSize-byte pieces per spec §4.6:
// offsets 0, 800, 1600, ...; the first piece carries First, the last
// carries Last (a single-piece C_PDU carries both).
func Split(payload []byte) []Piece {
	total := len(payload)
	if total == 0 {
		return nil
	}
	n := (total + MaxSegmentSize - 1) / MaxSegmentSize
	pieces := make([]Piece, 0, n)
	for offset := 0; offset < total; offset += MaxSegmentSize {
		size := MaxSegmentSize
		if offset+size > total {
			size = total - offset
		}
		pieces = append(pieces, Piece{
			Offset: offset,
			Data:   payload[offset : offset+size],
			First:  offset == 0,
			Last:   offset+size == total,
		})
	}
	return pieces
}

// Key identifies one in-progress reassembly: the remote node address
// and the 12-bit C_PDU id (spec §3's "C_PDU reassembly record").
type Key struct {
	Remote uint32
	CPDUID uint16
}

type record struct {
	size     int
	buf      []byte
	coverage []byte // one bit per byte of buf
	covered  int
	deadline time.Time
}

func newRecord(size int, deadline time.Time) *record {
	return &record{
		size:     size,
		buf:      make([]byte, size),
		coverage: make([]byte, (size+7)/8),
		deadline: deadline,
	}
}

func (r *record) write(offset int, data []byte) {
	for i, b := range data {
		pos := offset + i
		if bitSet(r.coverage, pos) {
			r.buf[pos] = b
			continue
		}
		setBit(r.coverage, pos)
		r.buf[pos] = b
		r.covered++
	}
}

func (r *record) complete() bool { return r.covered == r.size }

// Reassembler holds in-progress C_PDU reassembly records for one DTS
// connection owner (spec §5: a DTS connection and everything hanging
// off it is mutated only by its owning worker, so Reassembler carries
// no internal locking).
type Reassembler struct {
	records map[Key]*record
	timeout time.Duration
}

// NewReassembler returns an empty reassembler using timeout as the
// reassembly-timeout configuration value (spec §6: reassembly_timeout).
func NewReassembler(timeout time.Duration) *Reassembler {
	return &Reassembler{records: make(map[Key]*record), timeout: timeout}
}

// Put writes one incoming segment into the record for key, allocating
// the record on its first segment. If the segment completes the
// record's coverage, the reassembled bytes are returned and the record
// is freed (spec §4.6: "Complete C_PDUs are handed to the Bridge and
// the record is freed").
func (ra *Reassembler) Put(key Key, cpduSize int, offset int, data []byte, now time.Time) (complete []byte, done bool, err error) {
	if cpduSize <= 0 || cpduSize > MaxCPDUSize {
		return nil, false, ErrBadCPDUSize
	}
	if offset < 0 || offset+len(data) > cpduSize {
		return nil, false, ErrOffsetRange
	}
	rec, ok := ra.records[key]
	if !ok {
		rec = newRecord(cpduSize, now.Add(ra.timeout))
		ra.records[key] = rec
	} else if rec.size != cpduSize {
		return nil, false, ErrSizeMismatch
	}
	rec.write(offset, data)
	if !rec.complete() {
		return nil, false, nil
	}
	delete(ra.records, key)
	return rec.buf, true, nil
}

// ExpireTimeouts removes and returns the keys of every record whose
// reassembly deadline has passed as of now (spec §3: "a timestamp for
// reassembly timeout").
func (ra *Reassembler) ExpireTimeouts(now time.Time) []Key {
	var expired []Key
	for key, rec := range ra.records {
		if now.After(rec.deadline) {
			expired = append(expired, key)
			delete(ra.records, key)
		}
	}
	return expired
}

// Pending returns the number of in-progress reassembly records.
func (ra *Reassembler) Pending() int { return len(ra.records) }

func bitSet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func setBit(bitmap []byte, i int) {
	bitmap[i/8] |= 1 << uint(i%8)
}
