// Package bridge implements the Bridge (spec §4.7): it moves SDUs
// between SIS SAPs and DTS ARQ/non-ARQ channels, keeping the
// (dest_address, dest_sap) -> DTS channel mapping spec §4.7 and §5
// describe ("read-mostly... updates serialized by assigning each
// channel to exactly one worker").
package bridge

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/arq"
	"github.com/hflink/stanag5066/pkg/config"
	"github.com/hflink/stanag5066/pkg/dts"
	"github.com/hflink/stanag5066/pkg/ioengine"
	"github.com/hflink/stanag5066/pkg/segment"
	"github.com/hflink/stanag5066/pkg/sis"
)

// localAddress is this implementation's concrete decision (recorded
// in DESIGN.md) for spec §4.7's otherwise-unspecified addressing: a
// UNIDATA_REQUEST whose destination address equals localAddress is
// delivered directly to any other SIS endpoint with the same SAP
// bound, without going over a DTS channel at all. Any other
// destination is routed to the DTS channel registered for it.
const localAddress = 0

type sisConn struct {
	ep    *ioengine.Endpoint
	table *sis.Table
}

// arqSegment is one ARQ-delivered segment buffered until ReceiveData
// releases it in order (spec §4.6's "Segmentation Engine reassembles
// C_PDUs" from the ARQ channel's in-order release, as distinct from
// the NONARQ channel's offset/bitmap-based segment.Reassembler, which
// has no sequencing guarantee to rely on).
type arqSegment struct {
	flags   dts.Flags
	payload []byte
}

type dtsConn struct {
	ep          *ioengine.Endpoint
	remote      dts.Address
	conn        *arq.Connection
	reassembler *segment.Reassembler // NONARQ channel only
	nextCPDUID  uint16

	segments map[uint8]arqSegment    // ARQ channel only: wire seq -> buffered segment
	cpduBuf  []byte                 // ARQ channel only: in-progress C_PDU
	txFlags  [arq.RingSize]dts.Flags // wire seq&0xFF -> First/Last flags, for retransmission

	arqMode bool // true: DATA_ONLY/ACK_ONLY/DATA_ACK channel; false: NONARQ broadcast channel
}

// Bridge owns every SIS and DTS endpoint's routing state for one
// worker's share of the engine.
type Bridge struct {
	cfg    *config.Config
	logger *log.Logger

	// localAddr/addressSize are this node's own DTS address and the
	// nibble width used to encode every address field this bridge
	// emits. spec.md never names a "local node address" configuration
	// item, so the concrete default (a 2-byte/4-nibble address space)
	// and the SetLocalAddress setter are this implementation's
	// decision, recorded in DESIGN.md.
	localAddr   dts.Address
	addressSize uint8

	mu        sync.Mutex
	sisByEP   map[int]*sisConn
	sisBySAP  map[uint8][]*sisConn
	dtsByEP   map[int]*dtsConn
	dtsByAddr map[dts.Address]*dtsConn
}

// New returns a bridge configured per cfg.
func New(cfg *config.Config, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bridge{
		cfg:         cfg,
		logger:      logger,
		addressSize: 4,
		sisByEP:     make(map[int]*sisConn),
		sisBySAP:    make(map[uint8][]*sisConn),
		dtsByEP:     make(map[int]*dtsConn),
		dtsByAddr:   make(map[dts.Address]*dtsConn),
	}
}

// SetLocalAddress configures this node's own DTS address and the
// nibble width (1-7) used to encode addresses on frames this bridge
// emits.
func (b *Bridge) SetLocalAddress(addr dts.Address, addressSize uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.localAddr = addr
	b.addressSize = addressSize
}

// AddSIS registers ep as a SIS endpoint and returns its session table.
func (b *Bridge) AddSIS(ep *ioengine.Endpoint) *sis.Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc := &sisConn{ep: ep, table: sis.NewTable()}
	b.sisByEP[ep.ID] = sc
	return sc.table
}

// RemoveSIS unregisters ep (on endpoint close), returning one
// UnbindIndication per SAP that was bound there (spec §7).
func (b *Bridge) RemoveSIS(ep *ioengine.Endpoint) []sis.PDU {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc, ok := b.sisByEP[ep.ID]
	if !ok {
		return nil
	}
	delete(b.sisByEP, ep.ID)
	for sap, conns := range b.sisBySAP {
		b.sisBySAP[sap] = removeConn(conns, sc)
	}
	return sc.table.CloseAll()
}

func removeConn(conns []*sisConn, target *sisConn) []*sisConn {
	out := conns[:0]
	for _, c := range conns {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// NoteBind records that sap is now bound on ep's table, so incoming
// traffic addressed to sap can be routed there.
func (b *Bridge) NoteBind(ep *ioengine.Endpoint, sap uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc, ok := b.sisByEP[ep.ID]
	if !ok {
		return
	}
	b.sisBySAP[sap] = append(b.sisBySAP[sap], sc)
}

// NoteUnbind forgets that sap is bound on ep's table.
func (b *Bridge) NoteUnbind(ep *ioengine.Endpoint, sap uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc, ok := b.sisByEP[ep.ID]
	if !ok {
		return
	}
	b.sisBySAP[sap] = removeConn(b.sisBySAP[sap], sc)
}

// AddDTS registers ep as the DTS channel carrying traffic to remote.
// arqMode selects DATA_ONLY/ACK_ONLY/DATA_ACK framing (true) or NONARQ
// broadcast framing (false), per the destination's negotiated
// transmission mode (spec §4.7: "on the appropriate ARQ or non-ARQ
// channel as indicated by the transmission mode").
func (b *Bridge) AddDTS(ep *ioengine.Endpoint, remote dts.Address, arqMode bool) *dtsConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	dc := &dtsConn{
		ep:          ep,
		remote:      remote,
		conn:        arq.NewConnection(b.cfg.ARQRetryMax, b.cfg.ARQRetransmitTimeout),
		reassembler: segment.NewReassembler(b.cfg.ReassemblyTimeout),
		segments:    make(map[uint8]arqSegment),
		arqMode:     arqMode,
	}
	b.dtsByEP[ep.ID] = dc
	b.dtsByAddr[remote] = dc
	return dc
}

// RemoveDTS unregisters ep's DTS channel on close.
func (b *Bridge) RemoveDTS(ep *ioengine.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dc, ok := b.dtsByEP[ep.ID]
	if !ok {
		return
	}
	delete(b.dtsByEP, ep.ID)
	if b.dtsByAddr[dc.remote] == dc {
		delete(b.dtsByAddr, dc.remote)
	}
}

// ExpireTimeouts drives every registered DTS channel's retransmission
// and reassembly timers (spec §5: "driven by a monotonic wheel checked
// at each loop iteration"), returning any channel whose ARQ retry
// budget is exhausted (spec §4.5, §7: caller should reset or close it).
func (b *Bridge) ExpireTimeouts(now time.Time) (exhausted []*ioengine.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dc := range b.dtsByEP {
		retransmit, isExhausted := dc.conn.ExpireTimeouts(now)
		for _, p := range retransmit {
			b.sendDataPiece(dc, p.Seq, p.Payload, dc.txFlags[uint8(p.Seq)])
		}
		for _, key := range dc.reassembler.ExpireTimeouts(now) {
			b.logger.WithFields(log.Fields{
				"endpoint": dc.ep.ID,
				"protocol": "dts",
				"cause":    "reassembly timeout",
				"cpdu_id":  key.CPDUID,
			}).Warn("dropping incomplete C_PDU")
		}
		if isExhausted {
			// spec §4.5/§7: retry exhaustion initiates RESET, clearing
			// all ARQ state on this side; the exchange with the peer
			// is not separately tracked, so FinishReset completes it
			// immediately (this implementation's decision, recorded in
			// DESIGN.md) rather than waiting for a RESET reply.
			dc.conn.Reset()
			b.sendReset(dc)
			dc.conn.FinishReset()
			dc.segments = make(map[uint8]arqSegment)
			dc.cpduBuf = dc.cpduBuf[:0]
			exhausted = append(exhausted, dc.ep)
		}
	}
	return exhausted
}
