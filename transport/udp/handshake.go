package udp

import (
	"net"
	"strings"
	"time"

	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

// connect implements transport.Transport.Connect: it allocates a local ID
// and emits REQUEST. The outcome arrives later as a CONNECT event, per
// spec.md §4.3 step 3.
func (e *endpoint) connect(req transport.ConnectRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return &transport.Error{Status: transport.StatusInval, Op: "connect"}
	}
	if req.Attribute == transport.AttrUUMCTx || req.Attribute == transport.AttrUUMCRx {
		return &transport.Error{Status: transport.StatusNotImplemented, Op: "connect"}
	}
	addr, err := net.ResolveUDPAddr("udp", strings.TrimPrefix(req.ServerURI, "udp://"))
	if err != nil {
		return &transport.Error{Status: transport.StatusAddrNotAvail, Op: "connect", Err: err}
	}
	localID, err := e.connIDs.Alloc()
	if err != nil {
		return &transport.Error{Status: transport.StatusNoMem, Op: "connect", Err: err}
	}
	c := newConn(e, localID, req.Attribute)
	c.peerAddr = addr
	c.status = connRequested
	c.isInitiator = true
	c.connectCtx = req.Context
	c.connectTime = time.Now()
	c.connectTimeout = connectTimeoutOrDefault(e.cfg, req.Timeout)
	e.conns[localID] = c

	h := wire.Header{Type: wire.TypeRequest, Attribute: attrToWire(req.Attribute), SrcConnID: localID}
	if err := e.sendPacket(addr, h, req.Payload); err != nil {
		delete(e.conns, localID)
		_ = e.connIDs.Free(localID)
		return &transport.Error{Status: transport.StatusNetDown, Op: "connect", Err: err}
	}
	return nil
}

// accept implements transport.Transport.Accept: allocate a local ID for
// the pending request and send REPLY. The READY transition and the
// ACCEPT event wait for the initiator's ACK_HANDSHAKE.
func (e *endpoint) accept(ev *udpEvent, ctx any) (*conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.kind != transport.EventConnectRequest || ev.pending == nil || ev.pending.consumed {
		return nil, &transport.Error{Status: transport.StatusInval, Op: "accept"}
	}
	pr := ev.pending
	localID, err := e.connIDs.Alloc()
	if err != nil {
		return nil, &transport.Error{Status: transport.StatusNoMem, Op: "accept", Err: err}
	}
	c := newConn(e, localID, pr.attribute)
	c.peerAddr = pr.peerAddr
	c.peerID = pr.peerID
	c.status = connRequested
	c.acceptCtx = ctx
	c.connectPayload = pr.payload
	e.conns[localID] = c
	pr.consumed = true

	h := wire.Header{Type: wire.TypeReply, Attribute: attrToWire(pr.attribute), SrcConnID: localID, DstConnID: pr.peerID}
	if err := e.sendPacket(pr.peerAddr, h, nil); err != nil {
		return nil, &transport.Error{Status: transport.StatusNetDown, Op: "accept", Err: err}
	}
	return c, nil
}

// reject implements transport.Transport.Reject.
func (e *endpoint) reject(ev *udpEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.kind != transport.EventConnectRequest || ev.pending == nil || ev.pending.consumed {
		return &transport.Error{Status: transport.StatusInval, Op: "reject"}
	}
	pr := ev.pending
	pr.consumed = true
	h := wire.Header{Type: wire.TypeReject, DstConnID: pr.peerID}
	_ = e.sendPacket(pr.peerAddr, h, nil)
	return nil
}

// handleRequest processes an inbound REQUEST, queuing a CONNECT_REQUEST
// event if a buffer lease is available, else bouncing RNR. The initiator
// never resends REQUEST, so a bounced connect ends in its connect timeout.
func (e *endpoint) handleRequest(addr *net.UDPAddr, h wire.Header, payload []byte) {
	if !e.leaseBuffer() {
		e.sendNackRNR(addr, h)
		return
	}
	id := e.nextPendingID
	e.nextPendingID++
	data := append([]byte(nil), payload...)
	pr := &pendingReq{ep: e, peerAddr: addr, peerID: h.SrcConnID, attribute: wireToAttr(h.Attribute), payload: data}
	e.pending[id] = pr
	ev := &udpEvent{
		ep:      e,
		kind:    transport.EventConnectRequest,
		status:  transport.StatusSuccess,
		reqAttr: pr.attribute,
		reqData: data,
		pending: pr,
		leased:  true,
	}
	e.pushReady(ev)
}

// handleReply processes an inbound REPLY on the initiator side: it
// records the peer ID, emits ACK_HANDSHAKE and queues the CONNECT event.
func (e *endpoint) handleReply(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connRequested {
		return
	}
	c.peerID = h.SrcConnID
	c.status = connReady
	c.lastRecvTime = time.Now()

	ah := wire.Header{Type: wire.TypeAckHandshake, SrcConnID: c.localID, DstConnID: c.peerID}
	_ = e.sendPacket(c.peerAddr, ah, nil)

	e.pushReady(&udpEvent{
		ep:      e,
		kind:    transport.EventConnect,
		status:  transport.StatusSuccess,
		ctx:     c.connectCtx,
		connID:  c.localID,
		reqAttr: c.attribute,
	})
}

// handleReject processes an inbound REJECT on the initiator side.
func (e *endpoint) handleReject(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connRequested {
		return
	}
	c.status = connRejected
	e.pushReady(&udpEvent{
		ep:      e,
		kind:    transport.EventConnect,
		status:  transport.StatusConnRefused,
		ctx:     c.connectCtx,
		connID:  c.localID,
		reqAttr: c.attribute,
	})
	delete(e.conns, c.localID)
	_ = e.connIDs.Free(c.localID)
}

// handleAckHandshake processes an inbound ACK_HANDSHAKE on the acceptor
// side, completing the three-way exchange and queuing ACCEPT.
func (e *endpoint) handleAckHandshake(h wire.Header) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connRequested {
		return
	}
	c.status = connReady
	c.lastRecvTime = time.Now()
	e.pushReady(&udpEvent{
		ep:      e,
		kind:    transport.EventAccept,
		status:  transport.StatusSuccess,
		ctx:     c.acceptCtx,
		connID:  c.localID,
		reqAttr: c.attribute,
		reqData: c.connectPayload,
	})
}

// sendNackRNR replies to h's sender with a NACK_RNR carrying the
// problematic sequence, per spec.md §4.2's receive-path RNR branch.
func (e *endpoint) sendNackRNR(addr *net.UDPAddr, h wire.Header) {
	nack := wire.Header{Type: wire.TypeNackRNR, Attribute: h.Attribute, SrcConnID: h.DstConnID, DstConnID: h.SrcConnID, Seq: h.Seq}
	_ = e.sendPacket(addr, nack, nil)
}

// disconnect implements transport.Transport.Disconnect: local-only
// teardown. Queued sends complete with DISCONNECTED and the local ID is
// returned to the pool.
func (e *endpoint) disconnect(c *conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.status == connDisconnected {
		return nil
	}
	for seq, td := range c.inFlight {
		delete(c.inFlight, seq)
		e.completeSend(c, td, transport.StatusDisconnected)
	}
	c.status = connDisconnected
	delete(e.conns, c.localID)
	_ = e.connIDs.Free(c.localID)
	return nil
}

// checkConnectTimeouts scans requested connections for an initiator-side
// handshake that never got a REPLY/REJECT in time. Callers hold e.mu.
func (e *endpoint) checkConnectTimeouts(now time.Time) {
	for id, c := range e.conns {
		if c.status != connRequested || !c.isInitiator {
			continue
		}
		if now.Sub(c.connectTime) >= c.connectTimeout && c.connectTimeout > 0 {
			c.status = connFailed
			e.pushReady(&udpEvent{
				ep:      e,
				kind:    transport.EventConnect,
				status:  transport.StatusTimedOut,
				ctx:     c.connectCtx,
				connID:  c.localID,
				reqAttr: c.attribute,
			})
			delete(e.conns, id)
			_ = e.connIDs.Free(id)
		}
	}
}
