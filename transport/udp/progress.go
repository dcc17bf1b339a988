package udp

import (
	"net"
	"time"

	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

// readBufSize is the largest UDP datagram size (64 KiB), so a read never
// truncates whatever a peer sent.
const readBufSize = 65536

// progressLocked drains whatever is sitting in the socket's receive
// buffer, advances connect/retransmit/ack/keepalive timers, and returns.
// It does not wait for traffic: each read gets a deadline one microsecond
// ahead, so a queued packet is returned at once and an empty socket ends
// the drain almost immediately (a deadline already in the past would fail
// the read before the socket is looked at). Callers hold e.mu.
func (e *endpoint) progressLocked() {
	now := time.Now()
	buf := make([]byte, readBufSize)
	for {
		_ = e.sock.SetReadDeadline(time.Now().Add(time.Microsecond))
		n, addr, err := e.sock.ReadFrom(buf)
		if err != nil {
			break
		}
		e.dispatch(addr, buf[:n])
	}
	e.checkConnectTimeouts(now)
	e.retransmitScan(now)
	e.ackFlush(now)
	e.keepaliveTick(now)
}

// dispatch decodes one datagram and routes it to its packet handler.
func (e *endpoint) dispatch(addr net.Addr, data []byte) {
	h, payload, err := wire.DecodePacket(data)
	if err != nil {
		return
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}
	switch h.Type {
	case wire.TypeRequest:
		e.handleRequest(udpAddr, h, payload)
	case wire.TypeReply:
		e.handleReply(h)
	case wire.TypeReject:
		e.handleReject(h)
	case wire.TypeAckHandshake:
		e.handleAckHandshake(h)
	case wire.TypeMsg:
		e.handleMsg(h, payload)
	case wire.TypeAck:
		e.handleAck(h)
	case wire.TypeNackRNR:
		e.handleNackRNR(h)
	case wire.TypeRMAWrite:
		e.handleRMAWrite(h, payload)
	case wire.TypeRMAReadReq:
		e.handleRMAReadReq(h, payload)
	case wire.TypeRMAReadReply:
		e.handleRMAReadReply(h, payload)
	case wire.TypeKeepalive:
		e.handleKeepalive(h)
	}
}

func (e *endpoint) handleKeepalive(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connReady {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)
}

// keepaliveTick implements spec.md §4.6's keepalive state machine: probe
// every keepaliveInterval, and if nothing at all has been heard from the
// peer for a full interval after a probe, fire KEEPALIVE_TIMEDOUT and
// disarm until the application re-arms it via SetOpt.
func (e *endpoint) keepaliveTick(now time.Time) {
	for _, c := range e.conns {
		if c.status != connReady || !c.keepaliveArmed || c.keepaliveInterval <= 0 {
			continue
		}
		if c.lastKeepaliveSent.IsZero() {
			c.lastKeepaliveSent = now
			e.sendKeepalive(c)
			continue
		}
		if now.Sub(c.lastRecvTime) >= c.keepaliveInterval && now.Sub(c.lastKeepaliveSent) >= c.keepaliveInterval {
			c.keepaliveArmed = false
			c.keepaliveFired = true
			e.pushReady(&udpEvent{ep: e, kind: transport.EventKeepaliveTimedOut, status: transport.StatusTimedOut, connID: c.localID})
			continue
		}
		if now.Sub(c.lastKeepaliveSent) >= c.keepaliveInterval {
			c.lastKeepaliveSent = now
			e.sendKeepalive(c)
		}
	}
}

func (e *endpoint) sendKeepalive(c *conn) {
	h := wire.Header{Type: wire.TypeKeepalive, Attribute: attrToWire(c.attribute), SrcConnID: c.localID, DstConnID: c.peerID, AckCum: c.expectedSeq, AckBitmap: c.ackBitmap}
	_ = e.sendPacket(c.peerAddr, h, nil)
}

// progressLoop is the optional internal progress thread from spec.md §4.6:
// it exists so retransmission, ACK delivery and keepalive ticks keep moving
// even when the application isn't calling GetEvent/Send. It backs off
// exponentially while idle so it doesn't spin a core on an otherwise quiet
// endpoint.
func (e *endpoint) progressLoop() {
	defer e.wg.Done()
	backoff := time.Millisecond
	const maxBackoff = 50 * time.Millisecond
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		e.mu.Lock()
		before := len(e.ready)
		e.progressLocked()
		after := len(e.ready)
		e.mu.Unlock()

		if after > before {
			backoff = time.Millisecond
		} else {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		select {
		case <-e.stopCh:
			return
		case <-time.After(backoff):
		}
	}
}

// probeDevice reports whether a UDP socket can be bound to ip, used by
// Devices() to decide the Up flag for each local interface address.
func probeDevice(ip string) bool {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(ip), Port: 0})
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
