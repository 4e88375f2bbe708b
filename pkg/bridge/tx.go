package bridge

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/dts"
	"github.com/hflink/stanag5066/pkg/ioengine"
	"github.com/hflink/stanag5066/pkg/segment"
	"github.com/hflink/stanag5066/pkg/sis"
)

// Send implements spec §4.7's UNIDATA_REQUEST handling: a destination
// address of localAddress is delivered directly to any other SIS
// endpoint with the same SAP bound, without ever reaching a DTS
// channel; any other destination is segmented onto the DTS channel
// registered for it, on its ARQ or non-ARQ framing per AddDTS's
// arqMode.
func (b *Bridge) Send(fromEP *ioengine.Endpoint, req sis.Unidata) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dest := dts.Address(req.Header.DestAddress)
	if dest == localAddress {
		return b.deliverLocal(fromEP, req)
	}

	dc, ok := b.dtsByAddr[dest]
	if !ok {
		return ErrNoRoute
	}
	return b.sendViaChannel(dc, req)
}

// deliverLocal hands req straight to every other SIS endpoint with
// req's destination SAP bound, as a UNIDATA_INDICATION, skipping
// fromEP itself so a client never gets its own request echoed back.
// Caller holds b.mu.
func (b *Bridge) deliverLocal(fromEP *ioengine.Endpoint, req sis.Unidata) error {
	delivered := false
	for _, sc := range b.sisBySAP[req.Header.DestSAP] {
		if sc.ep == fromEP {
			continue
		}
		b.indicate(sc, req)
		delivered = true
	}
	if !delivered {
		return ErrNoRoute
	}
	return nil
}

func (b *Bridge) indicate(sc *sisConn, u sis.Unidata) {
	frame, err := sis.Encode(sis.PDU{Opcode: sis.OpUnidataIndication, Unidata: u})
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": sc.ep.ID, "cause": err}).Warn("failed to encode UNIDATA_INDICATION")
		return
	}
	sc.ep.EnqueueWrite([][]byte{frame}, 0)
}

// headerBytes is the SAP addressing prepended to every C_PDU this
// bridge emits: the DTS wire format carries no SAP field of its own,
// so destSAP/srcSAP have to survive the round trip inside the C_PDU
// itself (this implementation's decision, recorded in DESIGN.md).
const headerBytes = 2

// sendViaChannel segments req's u_pdu into D_PDUs on dc, allocating
// ARQ sequence numbers (arqMode) or a C_PDU id (non-ARQ broadcast).
// Caller holds b.mu.
func (b *Bridge) sendViaChannel(dc *dtsConn, req sis.Unidata) error {
	cpdu := make([]byte, 0, headerBytes+len(req.Payload))
	cpdu = append(cpdu, req.Header.DestSAP, req.Header.SrcSAP)
	cpdu = append(cpdu, req.Payload...)

	pieces := segment.Split(cpdu)
	if dc.arqMode {
		return b.sendARQPieces(dc, pieces)
	}
	b.sendNonARQPieces(dc, cpdu, pieces)
	return nil
}

func (b *Bridge) sendARQPieces(dc *dtsConn, pieces []segment.Piece) error {
	now := time.Now()
	for _, p := range pieces {
		seq, _, _, err := dc.conn.AllocateTx(p.Data, now)
		if err != nil {
			return err
		}
		flags := dts.Flags{First: p.First, Last: p.Last}
		dc.txFlags[uint8(seq)] = flags
		b.sendDataPiece(dc, seq, p.Data, flags)
	}
	return nil
}

func (b *Bridge) sendNonARQPieces(dc *dtsConn, cpdu []byte, pieces []segment.Piece) {
	id := dc.nextCPDUID
	dc.nextCPDUID = (dc.nextCPDUID + 1) & dts.MaxCPDUID
	for _, p := range pieces {
		pdu := dts.PDU{
			DType:       dts.TypeNonARQ,
			AddressSize: b.addressSize,
			Source:      b.localAddr,
			Destination: dc.remote,
			NonARQ: dts.NonARQHeader{
				Flags:    dts.Flags{First: p.First, Last: p.Last},
				SegSize:  uint16(len(p.Data)),
				CPDUID:   id,
				CPDUSize: uint16(len(cpdu)),
				Offset:   uint16(p.Offset),
			},
			Payload: p.Data,
		}
		frame, err := dts.Encode(pdu)
		if err != nil {
			b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "cause": err}).Warn("failed to encode NONARQ D_PDU, dropping segment")
			continue
		}
		dc.ep.EnqueueWrite([][]byte{frame}, 0)
	}
}

// sendDataPiece encodes and queues one DATA_ONLY D_PDU, shared by a
// fresh AllocateTx send and ExpireTimeouts's retransmit path (which
// replays the original flags looked up from dc.txFlags).
func (b *Bridge) sendDataPiece(dc *dtsConn, seq uint32, payload []byte, flags dts.Flags) {
	pdu := dts.PDU{
		DType:       dts.TypeDataOnly,
		AddressSize: b.addressSize,
		Source:      b.localAddr,
		Destination: dc.remote,
		Data: dts.DataHeader{
			Flags:   flags,
			SegSize: uint16(len(payload)),
			TxSeq:   uint8(seq),
		},
		Payload: payload,
	}
	frame, err := dts.Encode(pdu)
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "cause": err}).Warn("failed to encode D_PDU, dropping segment")
		return
	}
	dc.ep.EnqueueWrite([][]byte{frame}, 0)
}

// sendAck queues an ACK_ONLY D_PDU reflecting dc's current receive
// window (spec §4.5's selective-ACK bitmap).
func (b *Bridge) sendAck(dc *dtsConn) {
	rxLWE, bitmap := dc.conn.BuildAck()
	pdu := dts.PDU{
		DType:       dts.TypeAckOnly,
		AddressSize: b.addressSize,
		Source:      b.localAddr,
		Destination: dc.remote,
		Ack:         dts.AckHeader{RxLWE: rxLWE, Bitmap: bitmap},
	}
	frame, err := dts.Encode(pdu)
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "cause": err}).Warn("failed to encode ACK_ONLY")
		return
	}
	dc.ep.EnqueueWrite([][]byte{frame}, 0)
}

// sendReset queues a RESET D_PDU, used on ARQ retry exhaustion (spec
// §4.5, §7).
func (b *Bridge) sendReset(dc *dtsConn) {
	pdu := dts.PDU{
		DType:       dts.TypeReset,
		AddressSize: b.addressSize,
		Source:      b.localAddr,
		Destination: dc.remote,
	}
	frame, err := dts.Encode(pdu)
	if err != nil {
		b.logger.WithFields(log.Fields{"endpoint": dc.ep.ID, "cause": err}).Warn("failed to encode RESET")
		return
	}
	dc.ep.EnqueueWrite([][]byte{frame}, 0)
}
