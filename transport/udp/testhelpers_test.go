package udp

import (
	"net"
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// testConfig shortens every timing constant so tests don't wait seconds
// for retransmission/keepalive to fire.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResendBaseInterval = 2 * time.Millisecond
	cfg.ResendMaxInterval = 20 * time.Millisecond
	cfg.AckDelay = time.Millisecond
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.SendTimeout = 100 * time.Millisecond
	return cfg
}

// newLoopbackEndpoint binds sock to an ephemeral localhost port and wraps
// it in an *endpoint, without starting the background progress goroutine:
// tests drive progress themselves through pollEvent's poll loop, the same
// way a single-threaded application would.
func newLoopbackEndpoint(t *testing.T, cfg Config) *endpoint {
	t.Helper()
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	ep := newEndpoint(sock, transport.Device{Name: "udp_127.0.0.1"}, cfg)
	t.Cleanup(func() { _ = ep.close() })
	return ep
}

func (e *endpoint) addrString() string {
	return e.localAddr().String()
}

// pollEvent runs progress passes and scans the ready queue until an event
// that fn's predicate accepts turns up (and removes it), or timeout elapses.
func pollEvent(t *testing.T, e *endpoint, timeout time.Duration, fn func(ev *udpEvent) bool) *udpEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		e.progressLocked()
		var found *udpEvent
		for i, ev := range e.ready {
			if fn == nil || fn(ev) {
				found = ev
				e.ready = append(e.ready[:i], e.ready[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
		if found != nil {
			return found
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for event")
	return nil
}

// connectPair drives a full REQUEST/REPLY/ACK_HANDSHAKE exchange between
// two loopback endpoints and returns the ready connections on each side.
func connectPair(t *testing.T, initiator, acceptor *endpoint, attr transport.Attribute) (*conn, *conn) {
	t.Helper()
	err := initiator.connect(transport.ConnectRequest{
		Endpoint:  initiator,
		ServerURI: acceptor.addrString(),
		Attribute: attr,
		Context:   "connect",
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	reqEv := pollEvent(t, acceptor, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventConnectRequest
	})
	acceptConn, err := acceptor.accept(reqEv, "accept")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = acceptor.returnEvent(reqEv)

	connectEv := pollEvent(t, initiator, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventConnect
	})
	if connectEv.status != transport.StatusSuccess {
		t.Fatalf("connect event status: %v", connectEv.status)
	}
	initConn := initiator.conns[connectEv.connID]

	acceptEv := pollEvent(t, acceptor, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventAccept
	})
	if acceptEv.status != transport.StatusSuccess {
		t.Fatalf("accept event status: %v", acceptEv.status)
	}

	return initConn, acceptConn
}
