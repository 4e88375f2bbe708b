package ioengine

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/transport"
)

// Dispatcher is the readiness-driven loop of spec §4.8: for each ready
// endpoint, run read -> decode -> act -> write.
type Dispatcher struct {
	Readiness transport.Readiness
	endpoints map[int]*Endpoint
	logger    *log.Logger

	// OnClose, if set, runs just before a closed endpoint is dropped
	// from the dispatcher (e.g. a Bridge unregistering its SIS/DTS
	// routing state for ep, per spec §7's "emit UNBIND_INDICATION for
	// each bound SAP" on endpoint close).
	OnClose func(ep *Endpoint)
}

// NewDispatcher returns a dispatcher polling r, using logger for the
// structured close/rejection records spec §7 requires.
func NewDispatcher(r transport.Readiness, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{
		Readiness: r,
		endpoints: make(map[int]*Endpoint),
		logger:    logger,
	}
}

// Register starts watching ep for readability.
func (d *Dispatcher) Register(ep *Endpoint) error {
	d.endpoints[ep.ID] = ep
	return d.Readiness.Add(ep.ID, transport.EventReadable)
}

// Unregister stops watching ep. Safe to call more than once.
func (d *Dispatcher) Unregister(ep *Endpoint) {
	if _, ok := d.endpoints[ep.ID]; !ok {
		return
	}
	d.Readiness.Remove(ep.ID)
	delete(d.endpoints, ep.ID)
}

// EndpointCount returns the number of endpoints currently registered.
func (d *Dispatcher) EndpointCount() int { return len(d.endpoints) }

// RunOnce waits up to timeout for readiness events and services every
// ready endpoint once.
func (d *Dispatcher) RunOnce(timeout time.Duration) error {
	events, err := d.Readiness.Wait(timeout)
	if err != nil {
		return err
	}
	for _, ev := range events {
		ep, ok := d.endpoints[ev.Fd]
		if !ok {
			continue
		}
		d.service(ep, ev.Events)
	}
	return nil
}

func (d *Dispatcher) service(ep *Endpoint, events transport.Events) {
	if events&transport.EventReadable != 0 {
		if err := ep.Read(); err != nil {
			d.closeEndpoint(ep, err)
			return
		}
	}
	if events&transport.EventWritable != 0 || ep.HasPendingWrites() {
		if err := ep.FlushWrites(); err != nil {
			d.closeEndpoint(ep, err)
			return
		}
	}
	want := transport.EventReadable
	if ep.HasPendingWrites() {
		want |= transport.EventWritable
	}
	if err := d.Readiness.Modify(ep.ID, want); err != nil {
		d.closeEndpoint(ep, err)
	}
}

func (d *Dispatcher) closeEndpoint(ep *Endpoint, cause error) {
	d.logger.WithFields(log.Fields{
		"endpoint": ep.ID,
		"protocol": ep.Protocol,
		"cause":    cause,
	}).Warn("closing endpoint")
	if d.OnClose != nil {
		d.OnClose(ep)
	}
	ep.Close()
	d.Unregister(ep)
}
