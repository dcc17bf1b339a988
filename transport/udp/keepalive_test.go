package udp

import (
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// TestKeepaliveTimeout arms a short keepalive interval on one side of a
// connection, silences the peer, and verifies KEEPALIVE_TIMEDOUT fires and
// disarms itself.
func TestKeepaliveTimeout(t *testing.T) {
	cfg := testConfig()
	a := newLoopbackEndpoint(t, cfg)
	b := newLoopbackEndpoint(t, cfg)

	connA, _ := connectPair(t, a, b, transport.AttrRU)

	interval := 20 * time.Millisecond
	if err := a.setOpt(connA, optConnKeepaliveTimeout, interval); err != nil {
		t.Fatalf("setOpt keepalive: %v", err)
	}

	// b never progresses again from here, so it can never answer a's
	// probes: a's own keepalive state machine must time out on its own.
	ev := pollEvent(t, a, 2*time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventKeepaliveTimedOut
	})
	if ev.status != transport.StatusTimedOut {
		t.Fatalf("keepalive event status = %v, want TimedOut", ev.status)
	}

	a.mu.Lock()
	armed := connA.keepaliveArmed
	fired := connA.keepaliveFired
	a.mu.Unlock()
	if armed {
		t.Fatalf("keepalive should disarm itself once it fires")
	}
	if !fired {
		t.Fatalf("expected keepaliveFired to be set")
	}
}

// TestKeepaliveSurvivesWhilePeerResponds verifies an armed keepalive does
// not fire as long as the peer is also sending probes back — keepalive
// is symmetric, each side's probe is what updates the other's
// lastRecvTime, per handleKeepalive.
func TestKeepaliveSurvivesWhilePeerResponds(t *testing.T) {
	cfg := testConfig()
	a := newLoopbackEndpoint(t, cfg)
	b := newLoopbackEndpoint(t, cfg)

	connA, connB := connectPair(t, a, b, transport.AttrRU)

	interval := 15 * time.Millisecond
	if err := a.setOpt(connA, optConnKeepaliveTimeout, interval); err != nil {
		t.Fatalf("setOpt keepalive on a: %v", err)
	}
	if err := b.setOpt(connB, optConnKeepaliveTimeout, interval); err != nil {
		t.Fatalf("setOpt keepalive on b: %v", err)
	}
	b.start()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		a.progressLocked()
		timedOut := false
		for _, ev := range a.ready {
			if ev.kind == transport.EventKeepaliveTimedOut {
				timedOut = true
			}
		}
		a.mu.Unlock()
		if timedOut {
			t.Fatalf("keepalive fired despite peer responding")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
