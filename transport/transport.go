// Package transport defines the plugin contract that every CCI wire
// transport implements. It deliberately has no dependency on package cci:
// the cci package imports transport, so transport must stand on its own
// (the same split database/sql and database/sql/driver use, and for the
// same reason — a plugin contract that imported its own host package
// could never be implemented without a cycle).
package transport

import "time"

// Caps describes what a transport's Init reported back to the core.
type Caps struct {
	ThreadSafe bool
}

// EndpointHandle, ConnectionHandle, EventHandle and RMAHandleRef are opaque
// references owned by a Transport implementation. The cci package never
// inspects them; it only threads them back through subsequent calls.
type EndpointHandle interface{}
type ConnectionHandle interface{}
type EventHandle interface{}
type RMAHandleRef interface{}

// WakeHandle is a pollable signal a caller can block on externally before
// calling GetEvent, per spec.md §4.6. Signal fires (without blocking) when
// the endpoint's event queue transitions from empty to non-empty. A
// transport may make it one-shot (transport/udp does): after firing it stays
// silent until ArmWake re-arms it.
type WakeHandle interface {
	Signal() <-chan struct{}
	Close() error
}

// Attribute is the transport-side mirror of cci.Attribute.
type Attribute uint8

const (
	AttrRO Attribute = iota
	AttrRU
	AttrUU
	AttrUUMCTx
	AttrUUMCRx
)

// Reliable reports whether the attribute carries reliable-transport
// semantics (ACKs, retransmission, RMA eligibility).
func (a Attribute) Reliable() bool {
	return a == AttrRO || a == AttrRU
}

// MRAccessFlag is the transport-side mirror of cci.MRAccessFlag.
type MRAccessFlag uint32

const (
	MRRead  MRAccessFlag = 1 << 0
	MRWrite MRAccessFlag = 1 << 1
)

// Status is the transport-side mirror of cci.Status's kind taxonomy. cci
// translates it to the public enum at the package boundary (see
// cci/registry.go's translateTransportErr) rather than importing this type
// directly, keeping the dependency one-directional.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusError
	StatusDisconnected
	StatusRNR
	StatusDeviceDead
	StatusRMAHandle
	StatusRMAOp
	StatusNotImplemented
	StatusNotFound
	StatusInval
	StatusTimedOut
	StatusNoMem
	StatusNoDevice
	StatusNetDown
	StatusBusy
	StatusRange
	StatusAgain
	StatusNoBufferSpace
	StatusMsgSize
	StatusNoMsg
	StatusAddrNotAvail
	StatusConnRefused
)

// Error pairs a Status with the failing op and optional cause.
type Error struct {
	Status Status
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// Device is the transport-side mirror of cci.Device's enumerable fields.
// cci/registry.go merges this with config-supplied priority/default.
type Device struct {
	Name        string
	Up          bool
	Params      map[string]string
	MaxSendSize uint32
	Rate        uint64
}

// EventKind mirrors cci.EventKind's ordering so GetEvent's caller can cast
// directly.
type EventKind int

const (
	EventSend EventKind = iota
	EventRecv
	EventConnect
	EventConnectRequest
	EventAccept
	EventKeepaliveTimedOut
	EventEndpointDeviceFailed
)

// EventRecord is what GetEvent hands back to cci/. Handle is threaded back
// through ReturnEvent/Accept/Reject; Conn, when non-nil, names the
// connection the event belongs to and is resolved against the endpoint's
// own handle->*cci.Connection cache.
type EventRecord struct {
	Kind         EventKind
	Handle       EventHandle
	Status       Status
	Context      any
	Conn         ConnectionHandle
	Data         []byte
	ReqAttribute Attribute
	ReqData      []byte
}

// RMARequest bundles the parameters of a single RMA() call. The remote
// side is carried as the raw fields of a 32-byte cci.RMAHandle rather than
// that type itself, again to avoid importing cci.
type RMARequest struct {
	Conn          ConnectionHandle
	Local         RMAHandleRef
	LocalOffset   uint64
	RemoteToken   uint64
	RemoteLength  uint64
	RemoteAccess  MRAccessFlag
	RemoteOffset  uint64
	Length        uint64
	CompletionMsg []byte
	Context       any
	Flags         uint32
}

// ConnectRequest bundles the parameters of a single Connect() call.
type ConnectRequest struct {
	Endpoint  EndpointHandle
	ServerURI string
	Payload   []byte
	Attribute Attribute
	Context   any
	Flags     uint32
	Timeout   time.Duration
}

// Transport is the contract every wire transport implements. It mirrors
// §4.1 of the specification and is deliberately small: init/enumerate,
// endpoint lifecycle, connection lifecycle, data-plane ops, RMA, the event
// pump, and option get/set.
type Transport interface {
	Name() string
	Init(abiVersion int, flags uint32) (Caps, error)
	Devices() ([]Device, error)

	CreateEndpoint(dev Device, service string, flags uint32) (EndpointHandle, WakeHandle, error)
	DestroyEndpoint(ep EndpointHandle) error

	Connect(req ConnectRequest) error
	Accept(ev EventHandle, ctx any) (ConnectionHandle, error)
	Reject(ev EventHandle) error
	Disconnect(conn ConnectionHandle) error

	Send(conn ConnectionHandle, msg []byte, ctx any, flags uint32) error
	Sendv(conn ConnectionHandle, iov [][]byte, ctx any, flags uint32) error

	RMARegister(ep EndpointHandle, buf []byte, access MRAccessFlag) (RMAHandleRef, uint64, error)
	RMADeregister(h RMAHandleRef) error
	RMA(req RMARequest) error

	GetEvent(ep EndpointHandle) (EventRecord, error)
	ReturnEvent(ev EventHandle) error
	ArmWake(ep EndpointHandle, flags uint32) error

	SetOpt(target any, name string, value any) error
	GetOpt(target any, name string) (any, error)
}
