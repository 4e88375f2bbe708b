// Package arq implements the DTS ARQ state machine (spec §4.5):
// transmit/receive sliding windows, sequence allocation, selective-ACK
// bitmaps and retransmission scheduling for one DTS connection.
package arq

import "time"

const (
	// WindowMax is the sliding-window size cap (spec §3, §4.5).
	WindowMax = 127
	// RingSize is the fixed in-flight ring: 256 slots keyed by
	// seq & 0xFF suffice because the window cap is 127, so no two
	// in-flight sequences can alias the same slot (spec §9).
	RingSize = 256
)

// State is one of the three ARQ connection states (spec §4.5).
type State uint8

const (
	StateIdle State = iota
	StateActive
	StateResetting
)

// Pending is a buffered transmit D_PDU awaiting acknowledgment.
type Pending struct {
	Seq      uint32
	Payload  []byte
	Deadline time.Time
	Retries  int
}

// Connection holds the full ARQ state for one DTS connection (spec
// §3's "DTS connection").
type Connection struct {
	TxLWE, TxUWE uint32
	RxLWE, RxUWE uint32

	txPDUs [RingSize]*Pending
	rxAcks [WindowMax/8 + 1]byte // 128-bit selective-ACK bitmap over the receive window

	State State

	RetryMax          int
	RetransmitTimeout time.Duration
}

// NewConnection returns an idle connection with the given retry and
// retransmission-timeout policy. TxLWE/TxUWE start at 0 since
// AllocateTx pre-increments TxUWE before use, making the first
// transmitted sequence 1; RxLWE/RxUWE start at 1 to match, since the
// peer's first transmitted sequence is also 1 and ReceiveData's
// contiguous-prefix release only advances RxLWE past sequences it has
// actually seen (seq 0 is never sent, so RxLWE would otherwise never
// leave 0).
func NewConnection(retryMax int, retransmitTimeout time.Duration) *Connection {
	return &Connection{
		RxLWE:             1,
		RxUWE:             1,
		RetryMax:          retryMax,
		RetransmitTimeout: retransmitTimeout,
	}
}

// AllocateTx allocates the next transmit sequence number for payload,
// returning the sequence and whether it is the window's lower/upper
// edge at send time (spec §4.5). Fails with ErrWindowFull once
// tx_uwe - tx_lwe reaches WindowMax.
func (c *Connection) AllocateTx(payload []byte, now time.Time) (seq uint32, isLWE, isUWE bool, err error) {
	if c.TxUWE-c.TxLWE >= WindowMax {
		return 0, false, false, ErrWindowFull
	}
	c.TxUWE++
	seq = c.TxUWE
	slot := seq & 0xFF
	c.txPDUs[slot] = &Pending{
		Seq:      seq,
		Payload:  payload,
		Deadline: now.Add(c.RetransmitTimeout),
	}
	if c.State == StateIdle {
		c.State = StateActive
	}
	// TxLWE is the last released sequence, so the lowest sequence
	// still in flight is TxLWE+1.
	isLWE = seq == c.TxLWE+1
	isUWE = seq == c.TxUWE
	return seq, isLWE, isUWE, nil
}

// windowDelta computes the modulo-256 distance of wire sequence seq
// from the low 8 bits of lwe, matching spec §4.5's "modulo-256 window
// test".
func windowDelta(seq uint8, lwe uint32) uint8 {
	return seq - uint8(lwe)
}

// ReceiveData processes an incoming DATA_ONLY/DATA_ACK/EDATA sequence
// number. accepted is false if seq lies outside [rx_lwe, rx_lwe+127);
// duplicate is true if the sequence was already marked received
// (spec §4.5: "discarded but re-ACKed"). On acceptance, rx_lwe
// advances past any newly-contiguous prefix.
func (c *Connection) ReceiveData(seq uint8) (accepted, duplicate bool) {
	delta := windowDelta(seq, c.RxLWE)
	if delta >= WindowMax {
		return false, false
	}
	if bitSet(c.rxAcks[:], int(delta)) {
		return true, true
	}
	setBit(c.rxAcks[:], int(delta))
	if c.RxUWE-c.RxLWE < uint32(delta)+1 {
		c.RxUWE = c.RxLWE + uint32(delta) + 1
	}
	for bitSet(c.rxAcks[:], 0) {
		shiftRight1(c.rxAcks[:])
		c.RxLWE++
	}
	if c.State == StateIdle {
		c.State = StateActive
	}
	return true, false
}

// BuildAck returns the low 8 bits of rx_lwe and a selective-ACK bitmap
// covering [rx_lwe, rx_uwe), rounded up to a whole number of bytes
// (spec §4.4's ACK_ONLY header shape).
func (c *Connection) BuildAck() (rxLWE uint8, bitmap []byte) {
	span := c.RxUWE - c.RxLWE
	nbytes := (int(span) + 7) / 8
	bitmap = make([]byte, nbytes)
	copy(bitmap, c.rxAcks[:nbytes])
	return uint8(c.RxLWE), bitmap
}

// ApplyAck processes an incoming selective-ACK bitmap referenced to
// peerLWE (the acknowledger's rx_lwe, i.e. our tx_lwe space): for
// every set bit, the corresponding buffered D_PDU is released, and
// tx_lwe advances past the contiguous prefix of now-cleared slots
// (spec §4.5).
func (c *Connection) ApplyAck(peerLWE uint8, bitmap []byte) {
	for i := 0; i < len(bitmap)*8; i++ {
		if !bitSet(bitmap, i) {
			continue
		}
		slot := (uint32(peerLWE) + uint32(i)) & 0xFF
		c.txPDUs[slot] = nil
	}
	for c.TxLWE < c.TxUWE && c.txPDUs[(c.TxLWE+1)&0xFF] == nil {
		c.TxLWE++
	}
}

// ExpireTimeouts scans the in-flight window for D_PDUs whose deadline
// has passed. Expired D_PDUs have their retry counter incremented and
// deadline refreshed, and are returned for re-enqueue; if any exceeds
// RetryMax, exhausted is true and the caller should Reset the
// connection (spec §4.5: "exhaustion triggers channel RESET").
func (c *Connection) ExpireTimeouts(now time.Time) (retransmit []*Pending, exhausted bool) {
	for seq := c.TxLWE + 1; seq <= c.TxUWE; seq++ {
		p := c.txPDUs[seq&0xFF]
		if p == nil || now.Before(p.Deadline) {
			continue
		}
		p.Retries++
		if p.Retries > c.RetryMax {
			exhausted = true
			continue
		}
		p.Deadline = now.Add(c.RetransmitTimeout)
		retransmit = append(retransmit, p)
	}
	return retransmit, exhausted
}

// Reset clears all ARQ state on both the transmit and receive sides,
// per spec §4.5: "RESET ... always clears windows and bitmaps on both
// sides." The connection enters StateResetting; FinishReset completes
// the transition back to StateIdle once the peer's RESET exchange
// concludes.
func (c *Connection) Reset() {
	*c = Connection{
		RxLWE:             1,
		RxUWE:             1,
		State:             StateResetting,
		RetryMax:          c.RetryMax,
		RetransmitTimeout: c.RetransmitTimeout,
	}
}

// FinishReset transitions a resetting connection back to idle.
func (c *Connection) FinishReset() {
	c.State = StateIdle
}

func bitSet(bitmap []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	return bitmap[byteIdx]&(1<<uint(i%8)) != 0
}

func setBit(bitmap []byte, i int) {
	byteIdx := i / 8
	if byteIdx >= len(bitmap) {
		return
	}
	bitmap[byteIdx] |= 1 << uint(i%8)
}

// shiftRight1 shifts the whole bitmap right by one bit (bit 0 of byte
// N+1 becomes bit 7 of byte N's carry), used when rx_lwe advances.
func shiftRight1(bitmap []byte) {
	var carry byte
	for i := len(bitmap) - 1; i >= 0; i-- {
		next := bitmap[i] & 0x01
		bitmap[i] = (bitmap[i] >> 1) | (carry << 7)
		carry = next
	}
}
