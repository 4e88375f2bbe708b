package bridge

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/dts"
	"github.com/hflink/stanag5066/pkg/ioengine"
	"github.com/hflink/stanag5066/pkg/segment"
	"github.com/hflink/stanag5066/pkg/sis"
)

// handleSIS reacts to one decoded SIS PDU arriving on ep (spec §4.3,
// §4.7).
func (b *Bridge) handleSIS(ep *ioengine.Endpoint, pdu sis.PDU) error {
	b.mu.Lock()
	sc, ok := b.sisByEP[ep.ID]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	switch pdu.Opcode {
	case sis.OpBindRequest:
		resp := sc.table.Bind(pdu.BindRequest, uint16(b.cfg.SISBroadcastMTU))
		if resp.Opcode == sis.OpBindAccepted {
			b.NoteBind(ep, pdu.BindRequest.SAP)
		}
		b.replySIS(ep, resp)

	case sis.OpUnbindRequest:
		for _, resp := range b.unbindAll(ep, sc) {
			b.replySIS(ep, resp)
		}

	case sis.OpUnidataRequest:
		if err := b.Send(ep, pdu.Unidata); err != nil {
			b.logger.WithFields(log.Fields{"endpoint": ep.ID, "cause": err}).Warn("dropping undeliverable UNIDATA_REQUEST")
		}
	}
	return nil
}

func (b *Bridge) replySIS(ep *ioengine.Endpoint, pdu sis.PDU) {
	frame, err := sis.Encode(pdu)
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": ep.ID, "cause": err}).Warn("failed to encode SIS reply")
		return
	}
	ep.EnqueueWrite([][]byte{frame}, 0)
}

// unbindAll unbinds every SAP currently bound on sc. spec.md's
// UNBIND_REQUEST carries no SAP on the wire and doesn't name which
// bound SAP to close on an endpoint that bound more than one, so this
// implementation closes every session on ep, matching CloseAll's
// "close everything bound here" semantics (recorded in DESIGN.md).
func (b *Bridge) unbindAll(ep *ioengine.Endpoint, sc *sisConn) []sis.PDU {
	saps := sc.table.SAPs()
	pdus := make([]sis.PDU, 0, len(saps))
	for _, sap := range saps {
		b.NoteUnbind(ep, sap)
		pdus = append(pdus, sc.table.Unbind(sap))
	}
	return pdus
}

// handleDTS reacts to one decoded D_PDU arriving on ep (spec §4.4,
// §4.5, §4.7).
func (b *Bridge) handleDTS(ep *ioengine.Endpoint, pdu dts.PDU) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dc, ok := b.dtsByEP[ep.ID]
	if !ok {
		return nil
	}

	switch pdu.DType {
	case dts.TypeDataOnly, dts.TypeEDataOnly:
		b.receiveARQSegment(dc, pdu.Data, pdu.Payload)
		b.sendAck(dc)

	case dts.TypeAckOnly, dts.TypeEAckOnly:
		dc.conn.ApplyAck(pdu.Ack.RxLWE, pdu.Ack.Bitmap)

	case dts.TypeDataAck:
		dc.conn.ApplyAck(pdu.Ack.RxLWE, pdu.Ack.Bitmap)
		b.receiveARQSegment(dc, pdu.Data, pdu.Payload)
		b.sendAck(dc)

	case dts.TypeNonARQ, dts.TypeENonARQ:
		b.receiveNonARQSegment(dc, pdu.NonARQ, pdu.Payload, time.Now())

	case dts.TypeReset:
		// Reset-on-receive mirrors ExpireTimeouts's own-side exhaustion
		// handling: this implementation completes the RESET handshake
		// immediately rather than tracking a separate reply timer
		// (recorded in DESIGN.md).
		dc.conn.Reset()
		dc.conn.FinishReset()
		dc.segments = make(map[uint8]arqSegment)
		dc.cpduBuf = dc.cpduBuf[:0]

	case dts.TypeMgmt, dts.TypeWarning:
		b.logger.WithFields(log.Fields{
			"endpoint": ep.ID,
			"code":     pdu.Management.Code,
		}).Info("received DTS management frame")
	}
	return nil
}

// receiveARQSegment applies an incoming DATA segment to dc's ARQ
// receive window and, as rx_lwe advances past a contiguous run of
// buffered segments, releases them in order into dc's in-progress
// C_PDU assembly (spec §4.5's "releases in-order segments" feeding
// spec §4.6's "Segmentation Engine reassembles C_PDUs"). Caller holds
// b.mu.
func (b *Bridge) receiveARQSegment(dc *dtsConn, h dts.DataHeader, payload []byte) {
	oldLWE := dc.conn.RxLWE
	accepted, duplicate := dc.conn.ReceiveData(h.TxSeq)
	if !accepted {
		return
	}
	if !duplicate {
		dc.segments[h.TxSeq] = arqSegment{flags: h.Flags, payload: append([]byte(nil), payload...)}
	}

	newLWE := dc.conn.RxLWE
	for seq := oldLWE; seq != newLWE; seq++ {
		wire := uint8(seq)
		s, ok := dc.segments[wire]
		if !ok {
			// Released slot with no buffered payload: its DATA D_PDU
			// was lost after being counted as contiguous by a later
			// duplicate bitmap entry. Nothing to append; the C_PDU
			// this segment belonged to can never complete and is left
			// to the reassembly timeout (none kept here: the ARQ
			// channel has no offset/id fields to recover it by).
			continue
		}
		delete(dc.segments, wire)
		if s.flags.First {
			dc.cpduBuf = dc.cpduBuf[:0]
		}
		dc.cpduBuf = append(dc.cpduBuf, s.payload...)
		if s.flags.Last {
			cpdu := append([]byte(nil), dc.cpduBuf...)
			dc.cpduBuf = dc.cpduBuf[:0]
			b.deliverFromDTS(dc, cpdu)
		}
	}
}

// receiveNonARQSegment feeds an incoming NONARQ segment to dc's
// reassembler, delivering the C_PDU once every offset is covered
// (spec §4.6). Caller holds b.mu.
func (b *Bridge) receiveNonARQSegment(dc *dtsConn, h dts.NonARQHeader, payload []byte, now time.Time) {
	key := segment.Key{Remote: uint32(dc.remote), CPDUID: h.CPDUID}
	complete, done, err := dc.reassembler.Put(key, int(h.CPDUSize), int(h.Offset), payload, now)
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "cause": err}).Warn("dropping invalid NONARQ segment")
		return
	}
	if done {
		b.deliverFromDTS(dc, complete)
	}
}

// deliverFromDTS strips cpdu's leading destSAP/srcSAP header (added by
// sendViaChannel on transmit) and routes the remaining payload to
// every SIS endpoint with destSAP bound, as a UNIDATA_INDICATION
// (spec §4.7: "otherwise drop"). Caller holds b.mu.
func (b *Bridge) deliverFromDTS(dc *dtsConn, cpdu []byte) {
	if len(cpdu) < headerBytes {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID}).Warn("dropping undersized C_PDU")
		return
	}
	destSAP, srcSAP := cpdu[0], cpdu[1]
	payload := cpdu[headerBytes:]

	conns := b.sisBySAP[destSAP]
	if len(conns) == 0 {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "sap": destSAP}).Warn("dropping C_PDU for unbound SAP")
		return
	}
	header := sis.UnidataHeader{
		DestSAP:     destSAP,
		SrcSAP:      srcSAP,
		DestAddress: uint32(dc.remote),
	}
	u := sis.Unidata{Header: header, Payload: payload}
	for _, sc := range conns {
		b.indicate(sc, u)
	}
}
