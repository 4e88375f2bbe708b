// Package ioengine implements the event-driven I/O substrate (spec
// §4.8): the per-connection Endpoint (read queue, write queue,
// in-flight write list, scatter-gather iov staging) and the
// readiness-driven Dispatcher that runs read -> decode -> act -> write
// for each ready endpoint.
package ioengine

import (
	"errors"
	"syscall"

	"github.com/hflink/stanag5066/internal/pdu"
	"github.com/hflink/stanag5066/pkg/transport"
)

// Protocol tags an endpoint with the sublayer its bytes belong to
// (spec §3: "protocol tag (SIS or DTS-side client, or an inner
// protocol)").
type Protocol uint8

const (
	ProtocolSIS Protocol = iota
	ProtocolDTS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSIS:
		return "sis"
	case ProtocolDTS:
		return "dts"
	default:
		return "unknown"
	}
}

// Handler decodes and reacts to complete frames delivered on one
// endpoint (spec §4.8's "decode -> act"). SIS and DTS each supply one.
type Handler interface {
	// MinHeaderSize is the smallest prefix FrameLength needs to make
	// any progress toward determining a frame's total length.
	MinHeaderSize() int
	// FrameLength inspects the leading bytes of a PDU being assembled
	// (at least MinHeaderSize of them) and reports the frame's total
	// wire length once known. If more bytes are required first, ok is
	// false and total names the byte count to wait for next.
	FrameLength(header []byte) (total int, ok bool, err error)
	// Handle processes one complete frame's bytes for ep. Handler
	// implementations use ep.EnqueueWrite to emit replies.
	Handle(ep *Endpoint, frame []byte) error
}

// outbound is one queued or in-flight PDU's write state: spec §4.8's
// per-PDU iov entries, plus the weak request/response back-reference
// of spec §4.8/§9 (by generation id, not ownership).
type outbound struct {
	genID      uint64
	requestGen uint64 // 0 if this PDU answers nothing
	next       *outbound
	iovs       [][]byte
	orphaned   bool
}

// Endpoint is one accepted connection (spec §3): current read buffer,
// outbound FIFO, in-flight write list, and running counters. Owned by
// exactly one worker goroutine; never touched by another (spec §5).
type Endpoint struct {
	ID        int
	Protocol  Protocol
	Transport transport.Transport
	Handler   Handler

	pool    *pdu.LocalPool
	current *pdu.Buffer

	fifo     []*outbound
	inflight []*outbound

	nextGen   uint64
	responses map[uint64]*outbound

	BytesRead, BytesWritten uint64
	PDUsRead, PDUsWritten   uint64

	// IOVMax bounds the scatter-gather staging area (spec §3:
	// min(IOV_MAX, 32)). Defaults to 32; callers lower it to match
	// config.Config.IOVStagingMax.
	IOVMax int

	closed bool
}

// NewEndpoint returns an endpoint reading/writing t through handler,
// acquiring PDU buffers from pool.
func NewEndpoint(id int, proto Protocol, t transport.Transport, h Handler, pool *pdu.LocalPool) *Endpoint {
	return &Endpoint{
		ID:        id,
		Protocol:  proto,
		Transport: t,
		Handler:   h,
		pool:      pool,
		responses: make(map[uint64]*outbound),
		IOVMax:    32,
	}
}

// EnqueueWrite queues iovs (1-3 entries per spec §3's IOV staging
// area) as one outbound PDU. requestGen, if non-zero, links this PDU
// as a response to the request PDU carrying that generation id (spec
// §4.8: "a request carries the head of its responses list"). Returns
// this PDU's own generation id, usable as a future requestGen.
func (ep *Endpoint) EnqueueWrite(iovs [][]byte, requestGen uint64) uint64 {
	ep.nextGen++
	gen := ep.nextGen
	ob := &outbound{genID: gen, requestGen: requestGen, iovs: iovs}
	ep.fifo = append(ep.fifo, ob)
	if requestGen != 0 {
		if head, ok := ep.responses[requestGen]; ok {
			last := head
			for last.next != nil {
				last = last.next
			}
			last.next = ob
		} else {
			ep.responses[requestGen] = ob
		}
	}
	return gen
}

// HasPendingWrites reports whether the outbound FIFO or in-flight list
// still holds unsent bytes.
func (ep *Endpoint) HasPendingWrites() bool {
	return len(ep.fifo) > 0 || len(ep.inflight) > 0
}

// ReleaseRequest drops request's linked-responses bookkeeping. Any
// response PDUs of that request already sent are unaffected; any still
// queued are marked orphaned (spec §5: "for each in-flight request,
// marks linked responses as orphaned so their release is safe").
func (ep *Endpoint) ReleaseRequest(requestGen uint64) {
	head, ok := ep.responses[requestGen]
	if !ok {
		return
	}
	for r := head; r != nil; r = r.next {
		r.orphaned = true
	}
	delete(ep.responses, requestGen)
}

// Close releases the endpoint's current read buffer and drops any
// in-flight writes whose bytes have not yet been accepted by the
// transport (spec §5 cancellation).
func (ep *Endpoint) Close() error {
	if ep.closed {
		return nil
	}
	ep.closed = true
	if ep.current != nil {
		ep.pool.Release(ep.current)
		ep.current = nil
	}
	ep.fifo = nil
	ep.inflight = nil
	ep.responses = nil
	return ep.Transport.Close()
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

func isTransientErr(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// Read drains the transport to would-block (spec §4.8): allocates a
// read buffer if none is current, reads repeatedly until the transport
// reports no more data without blocking, running the decode loop after
// every successful read. Returns ErrPeerClosed or a transport-fatal
// error when the endpoint must be closed; transient conditions are
// retried or absorbed without returning an error.
func (ep *Endpoint) Read() error {
	for {
		if ep.current == nil {
			ep.current = ep.pool.Acquire()
		}
		buf := ep.current
		free := buf.Free()
		if len(free) == 0 {
			return ErrFrameTooLarge
		}
		n, err := ep.Transport.Read(free)
		if n > 0 {
			buf.Advance(n)
			ep.BytesRead += uint64(n)
			if derr := ep.decodeLoop(); derr != nil {
				return derr
			}
		}
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			if isTransientErr(err) {
				continue
			}
			return err
		}
		if n == 0 {
			return ErrPeerClosed
		}
		if n < len(free) {
			// A short read without an error from a blocking-style
			// transport (net.Conn semantics) means this is all that
			// is available right now; a real nonblocking fd would
			// have returned EAGAIN instead, handled above.
			return nil
		}
	}
}

// decodeLoop implements spec §4.2/§4.8's "while need > 0 && (append -
// base) >= need, invoke the codec" loop, plus the overflow discipline
// that splits surplus bytes into a fresh buffer.
func (ep *Endpoint) decodeLoop() error {
	for {
		buf := ep.current
		min := ep.Handler.MinHeaderSize()
		if buf.Len() < min {
			buf.Need = min
			return nil
		}
		total, ok, err := ep.Handler.FrameLength(buf.Bytes())
		if err != nil {
			return err
		}
		if !ok {
			buf.Need = total
			return nil
		}
		if total <= 0 {
			return ErrZeroLengthFrame
		}
		if buf.Len() < total {
			buf.Need = total
			return nil
		}

		frame := append([]byte(nil), buf.Bytes()[:total]...)
		buf.MarkScanned(total - (buf.Scan - buf.Base))
		if err := ep.Handler.Handle(ep, frame); err != nil {
			return err
		}
		ep.PDUsRead++

		surplus := buf.Overflow(total)
		ep.pool.Release(buf)
		if surplus == nil {
			ep.current = nil
			return nil
		}
		ep.current = surplus
		// loop again: the surplus buffer may already contain another
		// complete, pipelined frame.
	}
}

// stageIOVs moves PDUs from the outbound FIFO into the in-flight list,
// flattening their iov entries up to maxEntries total (spec §3's "IOV
// staging area": up to min(IOV_MAX, 32) entries). A PDU already
// in-flight from a prior flush contributes its remaining iovs first.
func (ep *Endpoint) stageIOVs(maxEntries int) (iovs [][]byte, owners []*outbound) {
	for _, ob := range ep.inflight {
		for _, iov := range ob.iovs {
			if len(iovs) >= maxEntries {
				return iovs, owners
			}
			iovs = append(iovs, iov)
			owners = append(owners, ob)
		}
	}
	for len(ep.fifo) > 0 {
		ob := ep.fifo[0]
		if len(iovs) > 0 && len(iovs)+len(ob.iovs) > maxEntries {
			break
		}
		ep.fifo = ep.fifo[1:]
		ep.inflight = append(ep.inflight, ob)
		for _, iov := range ob.iovs {
			if len(iovs) >= maxEntries {
				return iovs, owners
			}
			iovs = append(iovs, iov)
			owners = append(owners, ob)
		}
	}
	return iovs, owners
}

// clearIOVs applies spec §4.8's write-completion algorithm: for the n
// bytes the transport accepted, full iov entries (iov_len <= n) are
// consumed in order, releasing their owning PDU on its last entry;
// the remaining partially-written entry, if any, is split by advancing
// its base and decrementing its length. n == 0 leaves every iov
// unchanged.
func (ep *Endpoint) clearIOVs(owners []*outbound, n int) {
	for _, ob := range owners {
		if n == 0 {
			break
		}
		if len(ob.iovs) == 0 {
			continue // already fully consumed by an earlier entry in this same pass
		}
		iov := ob.iovs[0]
		if len(iov) <= n {
			n -= len(iov)
			ob.iovs = ob.iovs[1:]
		} else {
			ob.iovs[0] = iov[n:]
			n = 0
		}
		if len(ob.iovs) == 0 {
			ep.completeOutbound(ob)
		}
	}
}

func (ep *Endpoint) completeOutbound(ob *outbound) {
	for i, o := range ep.inflight {
		if o == ob {
			ep.inflight = append(ep.inflight[:i], ep.inflight[i+1:]...)
			break
		}
	}
	ep.PDUsWritten++
}

// FlushWrites stages and issues one scatter-gather write covering as
// much of the outbound FIFO and in-flight list as the staging area
// allows, then clears the iov array per the bytes actually accepted
// (spec §4.8).
func (ep *Endpoint) FlushWrites() error {
	if !ep.HasPendingWrites() {
		return nil
	}
	iovs, owners := ep.stageIOVs(ep.IOVMax)
	if len(iovs) == 0 {
		return nil
	}
	n, err := ep.Transport.WriteV(iovs)
	if n > 0 {
		ep.BytesWritten += uint64(n)
	}
	ep.clearIOVs(owners, n)
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		return err
	}
	return nil
}
