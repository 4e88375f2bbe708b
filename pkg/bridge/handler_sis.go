package bridge

import (
	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/ioengine"
	"github.com/hflink/stanag5066/pkg/sis"
)

// sisHandler implements ioengine.Handler for endpoints carrying SIS
// PDUs, decoding each complete frame and dispatching it into b.
type sisHandler struct {
	bridge *Bridge
}

// NewSISHandler returns a Handler for SIS-side endpoints registered
// with b.
func NewSISHandler(b *Bridge) ioengine.Handler { return &sisHandler{bridge: b} }

func (h *sisHandler) MinHeaderSize() int { return sis.HeaderSize }

func (h *sisHandler) FrameLength(header []byte) (int, bool, error) {
	total, err := sis.FrameLength(header)
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

func (h *sisHandler) Handle(ep *ioengine.Endpoint, frame []byte) error {
	pdu, err := sis.Decode(frame)
	if err != nil {
		// Framing-recoverable (spec §7): drop this PDU, keep the
		// endpoint open.
		h.bridge.logger.WithFields(log.Fields{"endpoint": ep.ID, "cause": err}).Warn("dropping unparseable SIS PDU")
		return nil
	}
	return h.bridge.handleSIS(ep, pdu)
}
