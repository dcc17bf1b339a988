package udp

import (
	"fmt"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

const (
	optEndpointSendTimeout      = "ENDPT_SEND_TIMEOUT"
	optEndpointRecvBufCount     = "ENDPT_RECV_BUF_COUNT"
	optEndpointSendBufCount     = "ENDPT_SEND_BUF_COUNT"
	optEndpointKeepaliveTimeout = "ENDPT_KEEPALIVE_TIMEOUT"
	optEndpointURI              = "ENDPT_URI"
	optEndpointRMAAlign         = "ENDPT_RMA_ALIGN"
	optConnSendTimeout          = "CONN_SEND_TIMEOUT"
	optConnKeepaliveTimeout     = "CONN_KEEPALIVE_TIMEOUT"
)

// setOpt implements transport.Transport.SetOpt for both endpoint- and
// connection-scoped tunables, per spec.md §4.1's option table.
func (e *endpoint) setOpt(target any, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch name {
	case optEndpointSendTimeout:
		d, ok := value.(time.Duration)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		e.cfg.SendTimeout = d
		return nil
	case optEndpointRecvBufCount:
		n, ok := value.(int)
		if !ok || n <= 0 {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		e.cfg.RecvBufCount = n
		return nil
	case optEndpointSendBufCount:
		n, ok := value.(int)
		if !ok || n <= 0 {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		e.cfg.SendBufCount = n
		return nil
	case optEndpointKeepaliveTimeout:
		d, ok := value.(time.Duration)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		for _, c := range e.conns {
			e.armKeepaliveLocked(c, d)
		}
		return nil
	case optConnSendTimeout:
		c, ok := target.(*conn)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		d, ok := value.(time.Duration)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		c.sendTimeout = d
		return nil
	case optConnKeepaliveTimeout:
		c, ok := target.(*conn)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		d, ok := value.(time.Duration)
		if !ok {
			return &transport.Error{Status: transport.StatusInval, Op: "set_opt"}
		}
		e.armKeepaliveLocked(c, d)
		return nil
	case optEndpointURI, optEndpointRMAAlign:
		return &transport.Error{Status: transport.StatusNotImplemented, Op: "set_opt", Err: fmt.Errorf("%s is get-only", name)}
	default:
		return &transport.Error{Status: transport.StatusNotImplemented, Op: "set_opt", Err: fmt.Errorf("unknown option %q", name)}
	}
}

func (e *endpoint) armKeepaliveLocked(c *conn, d time.Duration) {
	c.keepaliveInterval = d
	c.keepaliveArmed = d > 0
	c.keepaliveFired = false
	c.lastRecvTime = time.Now()
	c.lastKeepaliveSent = time.Time{}
}

func (e *endpoint) getOpt(target any, name string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch name {
	case optEndpointSendTimeout:
		return e.cfg.SendTimeout, nil
	case optEndpointRecvBufCount:
		return e.cfg.RecvBufCount, nil
	case optEndpointSendBufCount:
		return e.cfg.SendBufCount, nil
	case optEndpointKeepaliveTimeout:
		for _, c := range e.conns {
			return c.keepaliveInterval, nil
		}
		return time.Duration(0), nil
	case optEndpointURI:
		return "udp://" + e.localAddr().String(), nil
	case optEndpointRMAAlign:
		// Reported for API parity with spec.md §4.1's option table but not
		// enforced: every RMA fragment here already round-trips through a
		// freshly allocated wire payload (sendRMAWriteFrag/handleRMAWrite
		// etc. copy into and out of that buffer), so there is no DMA path
		// for an unaligned offset to corrupt and nothing for a bounce
		// buffer to protect against.
		return 8, nil
	case optConnSendTimeout:
		c, ok := target.(*conn)
		if !ok {
			return nil, &transport.Error{Status: transport.StatusInval, Op: "get_opt"}
		}
		return effectiveSendTimeout(c, e.cfg), nil
	case optConnKeepaliveTimeout:
		c, ok := target.(*conn)
		if !ok {
			return nil, &transport.Error{Status: transport.StatusInval, Op: "get_opt"}
		}
		return c.keepaliveInterval, nil
	default:
		return nil, &transport.Error{Status: transport.StatusNotImplemented, Op: "get_opt", Err: fmt.Errorf("unknown option %q", name)}
	}
}
