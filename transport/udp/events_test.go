package udp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocketbitz/cci-go/transport"
)

// TestRNRFlood exhausts the receiver's buffer pool so every inbound
// message bounces RNR, and verifies the sending connection eventually
// fails every in-flight send with StatusRNR and itself, per the RO
// ordering invariant (one RNR/timeout fails the whole connection).
func TestRNRFlood(t *testing.T) {
	cfg := testConfig()
	sender := newLoopbackEndpoint(t, cfg)
	receiver := newLoopbackEndpoint(t, cfg)

	senderConn, receiverConn := connectPair(t, sender, receiver, transport.AttrRO)

	// Starve the receiver's buffer pool: every subsequent inbound datagram
	// leases a buffer it doesn't have, so the receive path bounces RNR.
	receiver.mu.Lock()
	receiver.cfg.RecvBufCount = 0
	receiver.mu.Unlock()

	// Nobody on this side calls GetEvent, so the receiver needs its own
	// progress goroutine running to read the MSG and answer NACK_RNR.
	receiver.start()

	if err := sender.send(senderConn, []byte("will be RNR'd"), "op1", 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := pollEvent(t, sender, 2*time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventSend
	})
	if ev.status != transport.StatusRNR {
		t.Fatalf("send completion status = %v, want RNR", ev.status)
	}

	sender.mu.Lock()
	failed := senderConn.failed
	sender.mu.Unlock()
	if !failed {
		t.Fatalf("connection should be marked failed after an RO send completes RNR")
	}

	if err := sender.send(senderConn, []byte("rejected"), "op2", 0); err == nil {
		t.Fatalf("send on a failed RO connection should be rejected")
	}

	_ = receiverConn
}

// TestRNRFloodRecovers is spec.md §8 scenario 3 proper: unlike RO, an RU
// connection's RNR completions are per-send, not fatal to the connection —
// once the application drains its buffer pool by returning events,
// subsequent sends complete with SUCCESS again.
func TestRNRFloodRecovers(t *testing.T) {
	cfg := testConfig()
	sender := newLoopbackEndpoint(t, cfg)
	receiver := newLoopbackEndpoint(t, cfg)

	senderConn, _ := connectPair(t, sender, receiver, transport.AttrRU)

	// Starve the receiver down to two buffers after the handshake has
	// already leased and returned its own.
	receiver.mu.Lock()
	receiver.cfg.RecvBufCount = 2
	receiver.mu.Unlock()
	receiver.start()

	const n = 4
	for i := 0; i < n; i++ {
		err := sender.send(senderConn, []byte(fmt.Sprintf("msg%d", i)), i, 0)
		require.NoError(t, err, "send %d", i)
	}

	var successes, rnrs int
	for i := 0; i < n; i++ {
		ev := pollEvent(t, sender, 2*time.Second, func(ev *udpEvent) bool {
			return ev.kind == transport.EventSend
		})
		switch ev.status {
		case transport.StatusSuccess:
			successes++
		case transport.StatusRNR:
			rnrs++
		default:
			t.Fatalf("send completion status = %v, want SUCCESS or RNR", ev.status)
		}
	}
	require.Equal(t, 2, successes, "sends within the buffer pool should succeed")
	require.Equal(t, 2, rnrs, "sends past the buffer pool should bounce RNR")

	sender.mu.Lock()
	failed := senderConn.failed
	sender.mu.Unlock()
	require.False(t, failed, "an RU connection must not fail permanently on RNR")

	// Drain the two leased RECV events; returning them frees the pool.
	for i := 0; i < successes; i++ {
		ev := pollEvent(t, receiver, 2*time.Second, func(ev *udpEvent) bool {
			return ev.kind == transport.EventRecv
		})
		require.NoError(t, receiver.returnEvent(ev))
	}

	require.NoError(t, sender.send(senderConn, []byte("recovered"), "after-drain", 0))
	ev := pollEvent(t, sender, 2*time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventSend
	})
	require.Equal(t, transport.StatusSuccess, ev.status, "sends must succeed again once buffers are returned")
}
