package udp

import (
	"time"

	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

const (
	flagBlocking uint32 = 1 << 0
	flagNoCopy   uint32 = 1 << 1
	flagSilent   uint32 = 1 << 3
)

func effectiveSendTimeout(c *conn, cfg Config) time.Duration {
	if c.sendTimeout > 0 {
		return c.sendTimeout
	}
	if cfg.SendTimeout > 0 {
		return cfg.SendTimeout
	}
	return 30 * time.Second
}

// send implements transport.Transport.Send/Sendv for both UU (fire and
// forget) and RO/RU (windowed, acknowledged) connections, then runs one
// progress pass. The NoCopy flag is accepted and has no effect: a reliable
// send always keeps its own copy of payload for retransmission.
func (e *endpoint) send(c *conn, payload []byte, ctx any, flags uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.sendLocked(c, payload, ctx, flags)
	e.progressLocked()
	return err
}

// sendLocked is send's body, split out so callers that already hold e.mu
// (notably RMA completion-message piggyback) don't deadlock re-acquiring it.
func (e *endpoint) sendLocked(c *conn, payload []byte, ctx any, flags uint32) error {
	if c.failed {
		return &transport.Error{Status: c.failStatus, Op: "send"}
	}
	if c.status != connReady {
		return &transport.Error{Status: transport.StatusInval, Op: "send"}
	}
	if uint32(len(payload)) > c.maxSendSize {
		return &transport.Error{Status: transport.StatusMsgSize, Op: "send"}
	}
	silent := flags&flagSilent != 0

	if !c.attribute.Reliable() {
		h := wire.Header{Type: wire.TypeMsg, Attribute: attrToWire(c.attribute), SrcConnID: c.localID, DstConnID: c.peerID}
		if err := e.sendPacket(c.peerAddr, h, payload); err != nil {
			return &transport.Error{Status: transport.StatusNetDown, Op: "send", Err: err}
		}
		if !silent {
			e.pushReady(&udpEvent{ep: e, kind: transport.EventSend, status: transport.StatusSuccess, ctx: ctx, connID: c.localID})
		}
		return nil
	}

	if uint32(len(c.inFlight)) >= c.windowSize {
		return &transport.Error{Status: transport.StatusNoBufferSpace, Op: "send"}
	}
	seq := c.nextSeq
	c.nextSeq++
	td := &txDescriptor{
		seq:      seq,
		ptype:    wire.TypeMsg,
		payload:  append([]byte(nil), payload...),
		deadline: time.Now().Add(effectiveSendTimeout(c, e.cfg)),
		ctx:      ctx,
		flags:    flags,
		silent:   silent,
	}
	c.inFlight[seq] = td
	e.transmit(c, td)
	return nil
}

// transmit writes (or rewrites, on retransmit) one TX descriptor to the
// wire, piggybacking this connection's current cumulative/selective ACK.
func (e *endpoint) transmit(c *conn, td *txDescriptor) {
	h := wire.Header{
		Type:       td.ptype,
		Attribute:  attrToWire(c.attribute),
		SrcConnID:  c.localID,
		DstConnID:  c.peerID,
		Seq:        td.seq,
		AckCum:     c.expectedSeq,
		AckBitmap:  c.ackBitmap,
	}
	_ = e.sendPacket(c.peerAddr, h, td.payload)
	td.lastSend = time.Now()
	c.ackDue = false
	c.lastAckSent = td.lastSend
}

// deliverRecv pushes a RECV event. The caller must already have reserved
// the buffer lease it carries.
func (e *endpoint) deliverRecv(c *conn, payload []byte) {
	data := append([]byte(nil), payload...)
	e.pushReady(&udpEvent{ep: e, kind: transport.EventRecv, status: transport.StatusSuccess, connID: c.localID, data: data, leased: true})
}

// handleMsg implements the receive path of spec.md §4.2.
func (e *endpoint) handleMsg(h wire.Header, payload []byte) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connReady {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)

	if !c.attribute.Reliable() {
		if e.leaseBuffer() {
			e.deliverRecv(c, payload)
		}
		return
	}

	s := h.Seq
	base := c.expectedSeq
	switch {
	case s == base+1:
		if !e.leaseBuffer() {
			e.sendNackRNR(c.peerAddr, h)
			return
		}
		e.deliverRecv(c, payload)
		c.expectedSeq, c.ackBitmap = advanceCumulative(c.ackBitmap>>1, s)
		for {
			next := c.expectedSeq + 1
			data, ok := c.holdQueue[next]
			if !ok {
				break
			}
			delete(c.holdQueue, next)
			e.deliverRecv(c, data)
			c.expectedSeq, c.ackBitmap = advanceCumulative(c.ackBitmap>>1, next)
		}
		c.ackDue = true
	case seqLessEq(s, base) || isDelivered(c.ackBitmap, base, s):
		c.ackDue = true
	default:
		if c.attribute == transport.AttrRO {
			if _, already := c.holdQueue[s]; !already {
				if len(c.holdQueue) >= e.cfg.HoldQueueCap {
					e.failConnSend(c, transport.StatusError)
					return
				}
				if !e.leaseBuffer() {
					e.sendNackRNR(c.peerAddr, h)
					return
				}
				c.holdQueue[s] = append([]byte(nil), payload...)
			}
		} else if !isDelivered(c.ackBitmap, base, s) {
			if !e.leaseBuffer() {
				e.sendNackRNR(c.peerAddr, h)
				return
			}
			e.deliverRecv(c, payload)
			c.ackBitmap = markDelivered(c.ackBitmap, base, s)
		}
		c.ackDue = true
	}
}

// handleAck processes a standalone ACK packet.
func (e *endpoint) handleAck(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)
}

// handleNackRNR marks the named in-flight TX so its eventual timeout
// completes as RNR rather than TIMED_OUT, per spec.md §4.2.
func (e *endpoint) handleNackRNR(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok {
		return
	}
	if td, ok := c.inFlight[h.Seq]; ok {
		td.rnrNacked = true
	}
}

// processAck retires every in-flight TX covered by a cumulative+selective
// ACK and completes it with SUCCESS.
func (e *endpoint) processAck(c *conn, ackCum, ackBitmap uint32) {
	for seq, td := range c.inFlight {
		if seqLessEq(seq, ackCum) || (seqLess(ackCum, seq) && isDelivered(ackBitmap, ackCum, seq)) {
			delete(c.inFlight, seq)
			e.completeSend(c, td, transport.StatusSuccess)
		}
	}
}

func (e *endpoint) completeSend(c *conn, td *txDescriptor, status transport.Status) {
	if td.onComplete != nil {
		td.onComplete(status)
	}
	if !td.silent {
		e.pushReady(&udpEvent{ep: e, kind: transport.EventSend, status: status, ctx: td.ctx, connID: c.localID})
	}
}

// failConnSend implements the RO ordering invariant: once one reliable
// send on a connection completes with RNR or TIMED_OUT, every other
// in-flight send on that connection completes the same way and the
// connection is marked failed so later Send calls are rejected outright.
func (e *endpoint) failConnSend(c *conn, status transport.Status) {
	if c.failed {
		return
	}
	c.failed = true
	c.failStatus = status
	for seq, td := range c.inFlight {
		delete(c.inFlight, seq)
		e.completeSend(c, td, status)
	}
}

// retransmitScan walks every reliable connection's in-flight list,
// resending or expiring each descriptor per spec.md §4.2's backoff policy.
func (e *endpoint) retransmitScan(now time.Time) {
	for _, c := range e.conns {
		if c.status != connReady || c.failed {
			continue
		}
		for seq, td := range c.inFlight {
			if !now.Before(td.deadline) {
				status := transport.StatusTimedOut
				if td.rnrNacked {
					status = transport.StatusRNR
				}
				delete(c.inFlight, seq)
				e.completeSend(c, td, status)
				if c.attribute == transport.AttrRO {
					e.failConnSend(c, status)
				}
				continue
			}
			if now.Sub(td.lastSend) >= resendBackoff(e.cfg, td.resends) {
				td.resends++
				e.transmit(c, td)
			}
		}
	}
}

// ackFlush emits a standalone ACK for any connection with a pending,
// un-piggybacked acknowledgement once ack_delay has elapsed.
func (e *endpoint) ackFlush(now time.Time) {
	for _, c := range e.conns {
		if c.status != connReady || !c.ackDue {
			continue
		}
		if now.Sub(c.lastAckSent) < e.cfg.AckDelay {
			continue
		}
		h := wire.Header{Type: wire.TypeAck, Attribute: attrToWire(c.attribute), SrcConnID: c.localID, DstConnID: c.peerID, AckCum: c.expectedSeq, AckBitmap: c.ackBitmap}
		_ = e.sendPacket(c.peerAddr, h, nil)
		c.lastAckSent = now
		c.ackDue = false
	}
}
