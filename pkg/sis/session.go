package sis

// Session is one bound SAP on one SIS endpoint (spec §3): created by
// BIND_REQUEST -> BIND_ACCEPTED, destroyed by UNBIND_REQUEST or
// endpoint close.
type Session struct {
	SAP     uint8
	Rank    uint8
	Service ServiceType
	MTU     uint16
}

// Table tracks the sessions bound on a single SIS endpoint. At most
// one session may exist per SAP id, per spec §3's invariant. Grounded
// on bus_manager.go's fixed-array-plus-mutex registry, simplified to a
// bare map since a Table is owned by exactly one worker goroutine
// (spec §5: "a SIS session is mutated only by the worker owning its
// endpoint") and needs no internal locking of its own.
type Table struct {
	sessions map[uint8]*Session
}

// NewTable returns an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[uint8]*Session)}
}

// Lookup returns the session bound to sap, or nil if none.
func (t *Table) Lookup(sap uint8) *Session {
	return t.sessions[sap]
}

// Bind processes a BindRequest, returning either a BindAccepted PDU (on
// success, after installing the session) or a BindRejected PDU with a
// RejectCode explaining the failure.
func (t *Table) Bind(req BindRequest, mtu uint16) PDU {
	if req.SAP > MaxSAPID {
		return PDU{Opcode: OpBindRejected, BindRejected: BindRejected{Reason: RejectBadSAP}}
	}
	if _, exists := t.sessions[req.SAP]; exists {
		return PDU{Opcode: OpBindRejected, BindRejected: BindRejected{Reason: RejectSAPInUse}}
	}
	t.sessions[req.SAP] = &Session{SAP: req.SAP, Rank: req.Rank, Service: req.Service, MTU: mtu}
	return PDU{Opcode: OpBindAccepted, BindAccepted: BindAccepted{SAP: req.SAP, MTU: mtu}}
}

// Unbind removes the session for sap, returning an UnbindIndication
// with RejectNone (meaning "clean unbind") if one existed, or
// RejectBadSAP if sap was never bound.
func (t *Table) Unbind(sap uint8) PDU {
	if _, exists := t.sessions[sap]; !exists {
		return PDU{Opcode: OpUnbindIndication, UnbindIndication: UnbindIndication{Reason: RejectBadSAP}}
	}
	delete(t.sessions, sap)
	return PDU{Opcode: OpUnbindIndication, UnbindIndication: UnbindIndication{Reason: RejectNone}}
}

// Count returns the number of currently bound sessions.
func (t *Table) Count() int { return len(t.sessions) }

// SAPs returns the ids of every currently bound session.
func (t *Table) SAPs() []uint8 {
	out := make([]uint8, 0, len(t.sessions))
	for sap := range t.sessions {
		out = append(out, sap)
	}
	return out
}

// CloseAll unbinds every session on endpoint close, returning one
// UnbindIndication per session that was bound (spec §7: "emit
// UNBIND_INDICATION for each bound SAP").
func (t *Table) CloseAll() []PDU {
	out := make([]PDU, 0, len(t.sessions))
	for sap := range t.sessions {
		out = append(out, PDU{Opcode: OpUnbindIndication, UnbindIndication: UnbindIndication{Reason: RejectNone}})
		delete(t.sessions, sap)
	}
	return out
}
