package cci

import (
	"sync"

	"github.com/rocketbitz/cci-go/transport"
)

// Endpoint is a local communication resource collection bound to one
// device. Its URI is unique per process; destroying it invalidates every
// connection, RMA handle and event it owns (see the container fan-in design
// note — cci holds only ID-keyed handles, the transport owns the tables).
type Endpoint struct {
	mu sync.RWMutex

	device Device
	tp     transport.Transport
	handle transport.EndpointHandle
	wake   transport.WakeHandle
	closed bool

	conns map[transport.ConnectionHandle]*Connection
}

// CreateEndpoint opens an endpoint on the named device (empty string
// selects the highest-priority default device).
func CreateEndpoint(deviceName string, flags uint32) (*Endpoint, transport.WakeHandle, error) {
	return CreateEndpointAt(deviceName, "", flags)
}

// CreateEndpointAt opens an endpoint bound to an explicit service hint
// (e.g. a UDP port) on the named device.
func CreateEndpointAt(deviceName, service string, flags uint32) (*Endpoint, transport.WakeHandle, error) {
	dev, err := defaultDeviceNamed(deviceName)
	if err != nil {
		return nil, nil, err
	}
	tp, err := transportFor(dev.Name)
	if err != nil {
		return nil, nil, err
	}
	handle, wake, err := tp.CreateEndpoint(toTransportDevice(dev), service, flags)
	if err != nil {
		return nil, nil, translateTransportErr("create_endpoint", err)
	}
	ep := &Endpoint{device: dev, tp: tp, handle: handle, wake: wake, conns: map[transport.ConnectionHandle]*Connection{}}
	return ep, wake, nil
}

// connFor returns the cached *Connection for a transport connection
// handle, creating and caching one with the given attribute if this is the
// first time the endpoint has seen it (e.g. the CONNECT event for a
// connection this process initiated).
func (e *Endpoint) connFor(handle transport.ConnectionHandle, attr Attribute) *Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.conns[handle]; ok {
		return c
	}
	c := newConnection(e, handle, attr)
	e.conns[handle] = c
	return c
}

// DestroyEndpoint releases the endpoint and every child resource.
func (e *Endpoint) DestroyEndpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.closed {
		return nil
	}
	e.closed = true
	if e.wake != nil {
		_ = e.wake.Close()
	}
	if err := e.tp.DestroyEndpoint(e.handle); err != nil {
		return translateTransportErr("destroy_endpoint", err)
	}
	return nil
}

// Device returns the device this endpoint is bound to.
func (e *Endpoint) Device() Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.device
}

func (e *Endpoint) transport() transport.Transport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tp
}

func (e *Endpoint) handleRef() transport.EndpointHandle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle
}

// SetOpt sets a tunable option. See cci.Opt for the full list.
func (e *Endpoint) SetOpt(name Opt, value any) error {
	if e == nil {
		return NewError("set_opt", StatusEInval, nil)
	}
	if err := e.transport().SetOpt(e.handleRef(), name.String(), value); err != nil {
		return translateTransportErr("set_opt", err)
	}
	return nil
}

// GetOpt reads a tunable option.
func (e *Endpoint) GetOpt(name Opt) (any, error) {
	if e == nil {
		return nil, NewError("get_opt", StatusEInval, nil)
	}
	v, err := e.transport().GetOpt(e.handleRef(), name.String())
	if err != nil {
		return nil, translateTransportErr("get_opt", err)
	}
	return v, nil
}

// URI returns the endpoint's provider-specific address, equivalent to
// GetOpt(ENDPT_URI).
func (e *Endpoint) URI() (string, error) {
	v, err := e.GetOpt(OptEndpointURI)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// ArmWake re-enables level signalling on the endpoint's wake handle for
// platforms where the underlying primitive is one-shot.
func (e *Endpoint) ArmWake(flags uint32) error {
	if e == nil {
		return NewError("arm_wake", StatusEInval, nil)
	}
	if err := e.transport().ArmWake(e.handleRef(), flags); err != nil {
		return translateTransportErr("arm_wake", err)
	}
	return nil
}

// GetEvent pops the next ready event, transferring its buffer lease to the
// caller. It drives the progress engine internally (see spec.md §4.6).
func (e *Endpoint) GetEvent() (*Event, error) {
	if e == nil {
		return nil, NewError("get_event", StatusEInval, nil)
	}
	rec, err := e.transport().GetEvent(e.handleRef())
	if err != nil {
		return nil, translateTransportErr("get_event", err)
	}
	ev := &Event{
		Kind:         EventKind(rec.Kind),
		Endpoint:     e,
		handle:       rec.Handle,
		Status:       statusFromTransport(rec.Status),
		Context:      rec.Context,
		Data:         rec.Data,
		ReqAttribute: Attribute(rec.ReqAttribute),
		ReqData:      rec.ReqData,
	}
	if rec.Conn != nil {
		ev.Conn = e.connFor(rec.Conn, Attribute(rec.ReqAttribute))
		switch ev.Kind {
		case EventConnect:
			switch ev.Status {
			case StatusSuccess:
				ev.Conn.setStatus(ConnReady)
			case StatusEConnRefused:
				ev.Conn.setStatus(ConnRejected)
			default:
				ev.Conn.setStatus(ConnFailed)
			}
		case EventAccept:
			ev.Conn.setStatus(ConnReady)
		}
	}
	return ev, nil
}

// Send posts a short reliable or unreliable message on conn.
func (e *Endpoint) Send(conn *Connection, msg []byte, ctx any, flags uint32) error {
	if e == nil || conn == nil {
		return NewError("send", StatusEInval, nil)
	}
	if err := e.transport().Send(conn.handle, msg, ctx, flags); err != nil {
		return translateTransportErr("send", err)
	}
	return nil
}

// Sendv posts a scatter/gather message on conn.
func (e *Endpoint) Sendv(conn *Connection, iov [][]byte, ctx any, flags uint32) error {
	if e == nil || conn == nil {
		return NewError("sendv", StatusEInval, nil)
	}
	if err := e.transport().Sendv(conn.handle, iov, ctx, flags); err != nil {
		return translateTransportErr("sendv", err)
	}
	return nil
}
