package cci

import (
	"sync"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// Connection is a bound pair of endpoints exchanging messages under one
// reliability/ordering attribute. All mutable state beyond the cached
// status is owned by the transport; Connection is a thin, lock-protected
// handle cci/ threads back through Transport calls.
type Connection struct {
	mu sync.RWMutex

	endpoint  *Endpoint
	handle    transport.ConnectionHandle
	attribute Attribute
	status    ConnStatus
	uri       string
}

func newConnection(ep *Endpoint, handle transport.ConnectionHandle, attr Attribute) *Connection {
	return &Connection{endpoint: ep, handle: handle, attribute: attr, status: ConnInit}
}

// Endpoint returns the local endpoint this connection belongs to.
func (c *Connection) Endpoint() *Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Attribute returns the reliability/ordering attribute negotiated at
// connect time.
func (c *Connection) Attribute() Attribute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attribute
}

// Status returns the connection's last-known lifecycle state.
func (c *Connection) Status() ConnStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// URI returns the peer address string cached on this handle. Nothing in
// this package sets it, so it is empty for every connection handed out by
// GetEvent or Accept.
func (c *Connection) URI() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uri
}

func (c *Connection) setStatus(s ConnStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Connect initiates the three-way handshake described in spec.md §4.3. The
// CONNECT event delivered later by GetEvent carries the outcome; Connect
// itself only enqueues the REQUEST packet (or fails synchronously on a
// malformed call).
func Connect(ep *Endpoint, serverURI string, payload []byte, attr Attribute, ctx any, flags uint32, timeout time.Duration) error {
	if ep == nil {
		return NewError("connect", StatusEInval, nil)
	}
	if len(payload) > ConnReqLen {
		return NewError("connect", StatusEMsgSize, nil)
	}
	req := transport.ConnectRequest{
		Endpoint:  ep.handleRef(),
		ServerURI: serverURI,
		Payload:   payload,
		Attribute: transport.Attribute(attr),
		Context:   ctx,
		Flags:     flags,
		Timeout:   timeout,
	}
	if err := ep.transport().Connect(req); err != nil {
		return translateTransportErr("connect", err)
	}
	return nil
}

// Disconnect tears down the connection. Queued sends complete with
// ErrDisconnected; no further CONNECT/SEND/RECV events are delivered for
// it after this call returns.
func (c *Connection) Disconnect() error {
	if c == nil {
		return NewError("disconnect", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	if err := ep.transport().Disconnect(handle); err != nil {
		return translateTransportErr("disconnect", err)
	}
	c.setStatus(ConnDisconnected)
	return nil
}

// Send posts a short message on the connection.
func (c *Connection) Send(msg []byte, ctx any, flags uint32) error {
	if c == nil {
		return NewError("send", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	if err := ep.transport().Send(handle, msg, ctx, flags); err != nil {
		return translateTransportErr("send", err)
	}
	return nil
}

// Sendv posts a scatter/gather message on the connection.
func (c *Connection) Sendv(iov [][]byte, ctx any, flags uint32) error {
	if c == nil {
		return NewError("sendv", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	if err := ep.transport().Sendv(handle, iov, ctx, flags); err != nil {
		return translateTransportErr("sendv", err)
	}
	return nil
}

// SetOpt sets a connection-scoped tunable (CONN_SEND_TIMEOUT,
// CONN_KEEPALIVE_TIMEOUT). See cci.Opt for the full list.
func (c *Connection) SetOpt(name Opt, value any) error {
	if c == nil {
		return NewError("set_opt", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	if err := ep.transport().SetOpt(handle, name.String(), value); err != nil {
		return translateTransportErr("set_opt", err)
	}
	return nil
}

// GetOpt reads a connection-scoped tunable.
func (c *Connection) GetOpt(name Opt) (any, error) {
	if c == nil {
		return nil, NewError("get_opt", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	v, err := ep.transport().GetOpt(handle, name.String())
	if err != nil {
		return nil, translateTransportErr("get_opt", err)
	}
	return v, nil
}

// RMA posts a remote-memory read or write against a handle obtained from
// the peer's RMARegister (exchanged out-of-band, typically in the connect
// payload or a short message).
func (c *Connection) RMA(local *LocalRMAHandle, localOffset uint64, remote RMAHandle, remoteOffset, length uint64, completionMsg []byte, ctx any, flags uint32) error {
	if c == nil || local == nil {
		return NewError("rma", StatusEInval, nil)
	}
	c.mu.RLock()
	ep, handle := c.endpoint, c.handle
	c.mu.RUnlock()
	req := transport.RMARequest{
		Conn:          handle,
		Local:         local.ref,
		LocalOffset:   localOffset,
		RemoteToken:   remote.Token,
		RemoteLength:  remote.Length,
		RemoteAccess:  transport.MRAccessFlag(remote.Access),
		RemoteOffset:  remoteOffset,
		Length:        length,
		CompletionMsg: completionMsg,
		Context:       ctx,
		Flags:         flags,
	}
	if err := ep.transport().RMA(req); err != nil {
		return translateTransportErr("rma", err)
	}
	return nil
}
