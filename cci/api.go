package cci

// This file collects the flat, spec.md §6-shaped entry points as thin
// wrappers over the idiomatic Go methods defined alongside each type
// (Endpoint, Connection, Event, LocalRMAHandle). Most callers will prefer
// the methods; these exist so the package's exported surface maps onto the
// original API's function list one-to-one.

// Accept acknowledges a pending CONNECT_REQUEST event. Equivalent to
// ev.Accept(ctx).
func Accept(ev *Event, ctx any) (*Connection, error) {
	return ev.Accept(ctx)
}

// Reject declines a pending CONNECT_REQUEST event. Equivalent to
// ev.Reject().
func Reject(ev *Event) error {
	return ev.Reject()
}

// Disconnect tears down conn. Equivalent to conn.Disconnect().
func Disconnect(conn *Connection) error {
	return conn.Disconnect()
}

// Send posts a short message on conn. Equivalent to conn.Send(...).
func Send(conn *Connection, msg []byte, ctx any, flags uint32) error {
	return conn.Send(msg, ctx, flags)
}

// Sendv posts a scatter/gather message on conn. Equivalent to
// conn.Sendv(...).
func Sendv(conn *Connection, iov [][]byte, ctx any, flags uint32) error {
	return conn.Sendv(iov, ctx, flags)
}

// RMADeregister releases an RMA registration. Equivalent to h.Deregister().
func RMADeregister(h *LocalRMAHandle) error {
	return h.Deregister()
}

// RMA posts a remote-memory operation on conn. Equivalent to conn.RMA(...).
func RMA(conn *Connection, local *LocalRMAHandle, localOffset uint64, remote RMAHandle, remoteOffset, length uint64, completionMsg []byte, ctx any, flags uint32) error {
	return conn.RMA(local, localOffset, remote, remoteOffset, length, completionMsg, ctx, flags)
}

// GetEvent pops the next ready event from ep. Equivalent to ep.GetEvent().
func GetEvent(ep *Endpoint) (*Event, error) {
	return ep.GetEvent()
}

// ReturnEvent releases ev's buffer lease. Equivalent to ev.ReturnEvent().
func ReturnEvent(ev *Event) error {
	return ev.ReturnEvent()
}

// ArmWake re-arms ep's wake handle. Equivalent to ep.ArmWake(flags).
func ArmWake(ep *Endpoint, flags uint32) error {
	return ep.ArmWake(flags)
}

// SetOpt sets a tunable on ep. Equivalent to ep.SetOpt(name, value).
func SetOpt(ep *Endpoint, name Opt, value any) error {
	return ep.SetOpt(name, value)
}

// GetOpt reads a tunable from ep. Equivalent to ep.GetOpt(name).
func GetOpt(ep *Endpoint, name Opt) (any, error) {
	return ep.GetOpt(name)
}
