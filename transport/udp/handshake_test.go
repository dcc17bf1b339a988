package udp

import (
	"net"
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// TestConnectTimeout verifies an initiator whose REQUEST never gets a
// REPLY/REJECT (the peer address has nobody behind it) fails the CONNECT
// event with StatusTimedOut once ConnectTimeout elapses.
func TestConnectTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 30 * time.Millisecond
	initiator := newLoopbackEndpoint(t, cfg)

	// Bind a socket that never reads anything, to get a real, bound,
	// unreachable-in-practice address without needing an actual peer.
	deadAddr, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { _ = deadAddr.Close() })

	err = initiator.connect(transport.ConnectRequest{
		Endpoint:  initiator,
		ServerURI: deadAddr.LocalAddr().String(),
		Attribute: transport.AttrRO,
		Context:   "never-replies",
		Timeout:   cfg.ConnectTimeout,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	ev := pollEvent(t, initiator, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventConnect
	})
	if ev.status != transport.StatusTimedOut {
		t.Fatalf("connect event status = %v, want TimedOut", ev.status)
	}
	if ev.ctx != "never-replies" {
		t.Fatalf("connect event ctx = %v", ev.ctx)
	}
}

// TestConnectTimeoutHonorsPerCallTimeout verifies a Connect call's own
// timeout argument overrides the endpoint's configured default.
func TestConnectTimeoutHonorsPerCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 10 * time.Second // would never fire within the test
	initiator := newLoopbackEndpoint(t, cfg)

	deadAddr, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { _ = deadAddr.Close() })

	err = initiator.connect(transport.ConnectRequest{
		Endpoint:  initiator,
		ServerURI: deadAddr.LocalAddr().String(),
		Attribute: transport.AttrRO,
		Timeout:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	ev := pollEvent(t, initiator, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventConnect
	})
	if ev.status != transport.StatusTimedOut {
		t.Fatalf("connect event status = %v, want TimedOut", ev.status)
	}
}
