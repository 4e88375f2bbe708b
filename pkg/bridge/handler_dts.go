package bridge

import (
	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/dts"
	"github.com/hflink/stanag5066/pkg/ioengine"
)

// dtsHandler implements ioengine.Handler for endpoints carrying D_PDUs,
// decoding each complete frame and dispatching it into b.
type dtsHandler struct {
	bridge *Bridge
}

// NewDTSHandler returns a Handler for DTS-side endpoints registered
// with b.
func NewDTSHandler(b *Bridge) ioengine.Handler { return &dtsHandler{bridge: b} }

func (h *dtsHandler) MinHeaderSize() int { return 6 }

func (h *dtsHandler) FrameLength(header []byte) (int, bool, error) {
	return dts.FrameLength(header)
}

func (h *dtsHandler) Handle(ep *ioengine.Endpoint, frame []byte) error {
	pdu, err := dts.Decode(frame)
	if err != nil {
		// Framing-recoverable (spec §7): drop this PDU and do not ACK
		// it, so the sender's retransmission timer does the rest.
		h.bridge.logger.WithFields(log.Fields{"endpoint": ep.ID, "cause": err}).Warn("dropping unparseable D_PDU")
		return nil
	}
	return h.bridge.handleDTS(ep, pdu)
}
