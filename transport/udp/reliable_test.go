package udp

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// lossyConn wraps a real UDP socket and drops every Nth outbound write,
// standing in for packet loss on the wire without needing a real lossy
// network. Reads are never dropped: loss only needs to be simulated on
// one side of a pair to exercise retransmission.
type lossyConn struct {
	*net.UDPConn
	every int32
	n     atomic.Int32
	mu    sync.Mutex
}

func (c *lossyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.every > 0 && c.n.Add(1)%c.every == 0 {
		return len(p), nil // silently drop, but report success like a real send would
	}
	return c.UDPConn.WriteTo(p, addr)
}

func newLossyLoopbackEndpoint(t *testing.T, cfg Config, dropEvery int32) *endpoint {
	t.Helper()
	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	lossy := &lossyConn{UDPConn: sock, every: dropEvery}
	ep := newEndpoint(lossy, transport.Device{Name: "udp_127.0.0.1"}, cfg)
	t.Cleanup(func() { _ = ep.close() })
	return ep
}

// TestROOrderingUnderLoss drops every third outbound packet from the
// sender and verifies every message still arrives, in order, once
// retransmission recovers the gaps.
func TestROOrderingUnderLoss(t *testing.T) {
	cfg := testConfig()
	sender := newLossyLoopbackEndpoint(t, cfg, 3)
	receiver := newLoopbackEndpoint(t, cfg)

	senderConn, _ := connectPair(t, sender, receiver, transport.AttrRO)

	// Nobody polls the sender while the receiver drains below, so the
	// sender needs its own progress goroutine to retransmit dropped packets.
	sender.start()

	const n = 20
	for i := 0; i < n; i++ {
		msg := []byte{byte(i)}
		if err := sender.send(senderConn, msg, i, 0); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		ev := pollEvent(t, receiver, 5*time.Second, func(ev *udpEvent) bool {
			return ev.kind == transport.EventRecv
		})
		got = append(got, ev.data...)
		_ = receiver.returnEvent(ev)
	}
	if len(got) != n {
		t.Fatalf("received %d bytes, want %d", len(got), n)
	}
	for i, b := range got {
		if int(b) != i {
			t.Fatalf("out-of-order delivery at %d: got %d", i, b)
		}
	}

	// Every send must eventually complete (success, after retransmission).
	completed := 0
	deadline = time.Now().Add(5 * time.Second)
	for completed < n && time.Now().Before(deadline) {
		ev := pollEvent(t, sender, 5*time.Second, func(ev *udpEvent) bool {
			return ev.kind == transport.EventSend
		})
		if ev.status != transport.StatusSuccess {
			t.Fatalf("send %v completed with status %v", ev.ctx, ev.status)
		}
		completed++
	}
}
