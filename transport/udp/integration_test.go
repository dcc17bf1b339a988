package udp

import (
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// TestEchoLoopback exercises the full connect/send/recv round trip between
// two loopback endpoints on a reliable-ordered connection, the baseline
// every other transport/udp test builds on.
func TestEchoLoopback(t *testing.T) {
	cfg := testConfig()
	client := newLoopbackEndpoint(t, cfg)
	server := newLoopbackEndpoint(t, cfg)

	clientConn, serverConn := connectPair(t, client, server, transport.AttrRO)

	payload := []byte("hello cci")
	if err := client.send(clientConn, payload, "ping", 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	recvEv := pollEvent(t, server, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventRecv
	})
	if string(recvEv.data) != string(payload) {
		t.Fatalf("server received %q, want %q", recvEv.data, payload)
	}
	_ = server.returnEvent(recvEv)

	sendEv := pollEvent(t, client, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventSend
	})
	if sendEv.status != transport.StatusSuccess {
		t.Fatalf("send completion status: %v", sendEv.status)
	}
	if sendEv.ctx != "ping" {
		t.Fatalf("send completion ctx = %v, want %q", sendEv.ctx, "ping")
	}

	reply := []byte("hello back")
	if err := server.send(serverConn, reply, "pong", 0); err != nil {
		t.Fatalf("reply send: %v", err)
	}
	replyEv := pollEvent(t, client, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventRecv
	})
	if string(replyEv.data) != string(reply) {
		t.Fatalf("client received %q, want %q", replyEv.data, reply)
	}
	_ = client.returnEvent(replyEv)
}

// TestEchoLoopbackUnreliable exercises a UU connection, which skips the
// ack/retransmit machinery entirely.
func TestEchoLoopbackUnreliable(t *testing.T) {
	cfg := testConfig()
	a := newLoopbackEndpoint(t, cfg)
	b := newLoopbackEndpoint(t, cfg)

	ca, cb := connectPair(t, a, b, transport.AttrUU)

	if err := a.send(ca, []byte("datagram"), nil, 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev := pollEvent(t, b, time.Second, func(ev *udpEvent) bool { return ev.kind == transport.EventRecv })
	if string(ev.data) != "datagram" {
		t.Fatalf("got %q", ev.data)
	}
	_ = b.returnEvent(ev)
	_ = cb
}
