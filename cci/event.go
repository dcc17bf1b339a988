package cci

import "github.com/rocketbitz/cci-go/transport"

// EventKind identifies which member of the Event tagged union is valid.
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

func (k EventKind) String() string {
	switch k {
	case EventSend:
		return "SEND"
	case EventRecv:
		return "RECV"
	case EventConnect:
		return "CONNECT"
	case EventConnectRequest:
		return "CONNECT_REQUEST"
	case EventAccept:
		return "ACCEPT"
	case EventKeepaliveTimedOut:
		return "KEEPALIVE_TIMEDOUT"
	case EventEndpointDeviceFailed:
		return "ENDPOINT_DEVICE_FAILED"
	default:
		return "NONE"
	}
}

// Event is the tagged union of asynchronous notifications produced by the
// progress engine and consumed via GetEvent/ReturnEvent. Exactly one lease
// is outstanding per event: from the moment the transport enqueues it until
// the application calls ReturnEvent (see the event-lease design note).
type Event struct {
	Kind     EventKind
	Endpoint *Endpoint

	handle   transport.EventHandle
	consumed bool // CONNECT_REQUEST must be accepted/rejected before return

	Status  Status
	Context any
	Conn    *Connection

	// RECV
	Data []byte

	// CONNECT_REQUEST
	ReqAttribute Attribute
	ReqData      []byte
}

// ReturnEvent releases the event's buffer lease back to the endpoint's free
// list. A CONNECT_REQUEST event that has not been accepted or rejected
// fails with ErrInval, per spec.md §4.5.
func (e *Event) ReturnEvent() error {
	if e == nil || e.Endpoint == nil {
		return NewError("return_event", StatusEInval, nil)
	}
	if e.Kind == EventConnectRequest && !e.consumed {
		return NewError("return_event", StatusEInval, nil)
	}
	if err := e.Endpoint.transport().ReturnEvent(e.handle); err != nil {
		return translateTransportErr("return_event", err)
	}
	return nil
}

// Accept acknowledges a pending CONNECT_REQUEST event, allocating a local
// connection ID and emitting the REPLY handshake packet.
func (e *Event) Accept(ctx any) (*Connection, error) {
	if e == nil || e.Kind != EventConnectRequest {
		return nil, NewError("accept", StatusEInval, nil)
	}
	connHandle, err := e.Endpoint.transport().Accept(e.handle, ctx)
	if err != nil {
		return nil, translateTransportErr("accept", err)
	}
	e.consumed = true
	e.Conn = e.Endpoint.connFor(connHandle, e.ReqAttribute)
	e.Conn.setStatus(ConnRequested)
	return e.Conn, nil
}

// Reject declines a pending CONNECT_REQUEST event, emitting REJECT.
func (e *Event) Reject() error {
	if e == nil || e.Kind != EventConnectRequest {
		return NewError("reject", StatusEInval, nil)
	}
	if err := e.Endpoint.transport().Reject(e.handle); err != nil {
		return translateTransportErr("reject", err)
	}
	e.consumed = true
	return nil
}
