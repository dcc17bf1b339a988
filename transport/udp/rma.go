package udp

import (
	"time"
	"encoding/binary"

	"github.com/rocketbitz/cci-go/internal/idalloc"
	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

const (
	rmaFlagRead  uint32 = 1 << 4
	rmaFlagWrite uint32 = 1 << 5
	rmaFlagFence uint32 = 1 << 6
)

// rmaFragHeaderLen is the size of the fixed preamble (8-byte op id, 8-byte
// remote token, 8-byte fragment offset, all big-endian) every
// RMA_WRITE/READ_REQ/READ_REPLY payload carries
// ahead of its data, so the receiver can place the fragment without a
// side channel.
const rmaFragHeaderLen = 24

// rmaRegistration is the udp transport's RMAHandleRef: a registered local
// buffer plus the 64-bit token peers use to address it.
type rmaRegistration struct {
	ep           *endpoint
	buf          []byte
	access       transport.MRAccessFlag
	token        uint64
	deregistered bool
	inFlightOps  map[uint64]bool
}

// rmaOpState tracks one RMA() call's fragments until every one of them is
// acknowledged (WRITE) or has arrived (READ).
type rmaOpState struct {
	id            uint64
	conn          *conn
	reg           *rmaRegistration
	localOffset   uint64
	remoteToken   uint64
	remoteOffset  uint64
	length        uint64
	isWrite       bool
	fence         bool
	silent        bool
	ctx           any
	completionMsg []byte
	fragSize      uint32
	totalFrags    int
	doneFrags     int
	nextFrag      int
	inFlightFrags int
	failed        bool
	status        transport.Status
}

func (e *endpoint) rmaRegister(buf []byte, access transport.MRAccessFlag) (transport.RMAHandleRef, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	token, err := idalloc.NewToken64()
	if err != nil {
		return nil, 0, &transport.Error{Status: transport.StatusNoMem, Op: "rma_register", Err: err}
	}
	reg := &rmaRegistration{ep: e, buf: buf, access: access, token: token, inFlightOps: map[uint64]bool{}}
	e.rmaRegs[token] = reg
	return reg, token, nil
}

func (e *endpoint) rmaDeregister(h transport.RMAHandleRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := h.(*rmaRegistration)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "rma_deregister"}
	}
	if len(reg.inFlightOps) > 0 {
		for id := range reg.inFlightOps {
			if op, ok := e.rmaOps[id]; ok {
				op.failed = true
				op.status = transport.StatusRMAHandle
			}
		}
	}
	reg.deregistered = true
	delete(e.rmaRegs, reg.token)
	return nil
}

// rma implements transport.Transport.RMA: fragment by min(maxSendSize, MTU)
// and push WRITE fragments through the ordinary reliable send path, or
// issue READ_REQ fragments and await READ_REPLY.
func (e *endpoint) rma(req transport.RMARequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := req.Conn.(*conn)
	if !ok || c.status != connReady {
		return &transport.Error{Status: transport.StatusInval, Op: "rma"}
	}
	if c.failed {
		return &transport.Error{Status: c.failStatus, Op: "rma"}
	}
	reg, ok := req.Local.(*rmaRegistration)
	if !ok || reg.deregistered {
		return &transport.Error{Status: transport.StatusRMAHandle, Op: "rma"}
	}
	isWrite := req.Flags&rmaFlagWrite != 0
	isRead := req.Flags&rmaFlagRead != 0
	if isWrite == isRead {
		return &transport.Error{Status: transport.StatusInval, Op: "rma"}
	}
	if req.LocalOffset+req.Length > uint64(len(reg.buf)) {
		return &transport.Error{Status: transport.StatusInval, Op: "rma"}
	}
	if isWrite && reg.access&transport.MRRead == 0 {
		return &transport.Error{Status: transport.StatusRMAHandle, Op: "rma"}
	}
	if isRead && reg.access&transport.MRWrite == 0 {
		return &transport.Error{Status: transport.StatusRMAHandle, Op: "rma"}
	}
	if c.fenceInFlight {
		return &transport.Error{Status: transport.StatusNoBufferSpace, Op: "rma"}
	}

	fence := req.Flags&rmaFlagFence != 0

	fragSize := c.maxSendSize - rmaFragHeaderLen
	if fragSize == 0 || fragSize > uint32(e.cfg.MTU) {
		fragSize = uint32(e.cfg.MTU) - rmaFragHeaderLen
	}
	totalFrags := 1
	if req.Length > 0 {
		totalFrags = int((req.Length + uint64(fragSize) - 1) / uint64(fragSize))
	}

	id := e.nextRMAOpID
	e.nextRMAOpID++
	op := &rmaOpState{
		id:            id,
		conn:          c,
		reg:           reg,
		localOffset:   req.LocalOffset,
		remoteToken:   req.RemoteToken,
		remoteOffset:  req.RemoteOffset,
		length:        req.Length,
		isWrite:       isWrite,
		fence:         fence,
		silent:        req.Flags&flagSilent != 0,
		ctx:           req.Context,
		completionMsg: req.CompletionMsg,
		fragSize:      fragSize,
		totalFrags:    totalFrags,
		status:        transport.StatusSuccess,
	}
	e.rmaOps[id] = op
	reg.inFlightOps[id] = true

	// A FENCE op must not start issuing fragments until every RMA op
	// already in flight on this connection has completed remotely; it
	// parks as c.pendingFence and runs from finishRMAOp once the
	// in-flight count drops to zero. c.fenceInFlight goes up now either
	// way, so ops submitted after this one (fenced or not) are rejected
	// until this one finishes, per spec.md §4.4's barrier semantics.
	if fence {
		c.fenceInFlight = true
		if c.rmaOpsInFlight > 0 {
			c.pendingFence = op
			return nil
		}
	}
	c.rmaOpsInFlight++
	e.issueRMAFragments(c, op)
	if totalFrags == 0 {
		e.finishRMAOp(op)
	}
	return nil
}

// issueRMAFragments sends as many of op's remaining fragments as
// Config.RMAFragmentsInFlight allows, so one large transfer cannot blast
// every fragment onto the wire at once and starve the connection's other
// in-flight traffic.
func (e *endpoint) issueRMAFragments(c *conn, op *rmaOpState) {
	limit := e.cfg.RMAFragmentsInFlight
	if limit <= 0 {
		limit = op.totalFrags
	}
	for op.inFlightFrags < limit && op.nextFrag < op.totalFrags {
		i := op.nextFrag
		off := uint64(i) * uint64(op.fragSize)
		n := uint64(op.fragSize)
		if off+n > op.length {
			n = op.length - off
		}
		if op.isWrite {
			e.sendRMAWriteFrag(c, op, off, n)
		} else {
			e.sendRMAReadReqFrag(c, op, off, n)
		}
		op.nextFrag++
		op.inFlightFrags++
	}
}

func (e *endpoint) sendRMAWriteFrag(c *conn, op *rmaOpState, fragOffset, n uint64) {
	data := op.reg.buf[op.localOffset+fragOffset : op.localOffset+fragOffset+n]
	payload := make([]byte, rmaFragHeaderLen+len(data))
	binary.BigEndian.PutUint64(payload[0:8], op.id)
	binary.BigEndian.PutUint64(payload[8:16], op.remoteToken)
	binary.BigEndian.PutUint64(payload[16:24], op.remoteOffset+fragOffset)
	copy(payload[rmaFragHeaderLen:], data)

	seq := c.nextSeq
	c.nextSeq++
	td := &txDescriptor{
		seq:      seq,
		ptype:    wire.TypeRMAWrite,
		payload:  payload,
		deadline: time.Now().Add(effectiveSendTimeout(c, e.cfg)),
		fence:    op.fence,
		silent:   true,
		onComplete: func(status transport.Status) {
			e.onRMAFragDone(op, status)
		},
	}
	c.inFlight[seq] = td
	e.transmit(c, td)
}

func (e *endpoint) sendRMAReadReqFrag(c *conn, op *rmaOpState, fragOffset, n uint64) {
	payload := make([]byte, rmaFragHeaderLen+8)
	binary.BigEndian.PutUint64(payload[0:8], op.id)
	binary.BigEndian.PutUint64(payload[8:16], op.remoteToken)
	binary.BigEndian.PutUint64(payload[16:24], op.remoteOffset+fragOffset)
	binary.BigEndian.PutUint64(payload[24:32], n)

	seq := c.nextSeq
	c.nextSeq++
	td := &txDescriptor{
		seq:     seq,
		ptype:   wire.TypeRMAReadReq,
		payload: payload[:rmaFragHeaderLen+8],
		deadline: time.Now().Add(effectiveSendTimeout(c, e.cfg)),
		fence:   op.fence,
		silent:  true,
	}
	c.inFlight[seq] = td
	e.transmit(c, td)
}

func (e *endpoint) onRMAFragDone(op *rmaOpState, status transport.Status) {
	if status != transport.StatusSuccess && !op.failed {
		op.failed = true
		op.status = status
	}
	op.doneFrags++
	op.inFlightFrags--
	if op.doneFrags >= op.totalFrags || (op.failed && op.inFlightFrags == 0) {
		e.finishRMAOp(op)
		return
	}
	if !op.failed {
		e.issueRMAFragments(op.conn, op)
	}
}

// finishRMAOp retires op and, if it was the last RMA op in flight on its
// connection, starts any FENCE op that was parked waiting behind it.
func (e *endpoint) finishRMAOp(op *rmaOpState) {
	delete(e.rmaOps, op.id)
	delete(op.reg.inFlightOps, op.id)
	c := op.conn
	if op.fence {
		c.fenceInFlight = false
	}
	c.rmaOpsInFlight--
	if len(op.completionMsg) > 0 && !op.failed {
		_ = e.sendLocked(c, op.completionMsg, nil, flagSilent)
	}
	if !op.silent {
		e.pushReady(&udpEvent{ep: e, kind: transport.EventSend, status: op.status, ctx: op.ctx, connID: c.localID})
	}
	if c.rmaOpsInFlight == 0 && c.pendingFence != nil {
		next := c.pendingFence
		c.pendingFence = nil
		c.rmaOpsInFlight++
		e.issueRMAFragments(c, next)
		if next.totalFrags == 0 {
			e.finishRMAOp(next)
		}
	}
}

// handleRMAWrite processes an inbound WRITE fragment: it resolves the
// local token, copies data into the registered buffer and relies on the
// normal MSG ack machinery (this packet type rides the same seq space)
// to notify the writer.
func (e *endpoint) handleRMAWrite(h wire.Header, payload []byte) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connReady {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)
	if len(payload) < rmaFragHeaderLen {
		return
	}
	token := binary.BigEndian.Uint64(payload[8:16])
	offset := binary.BigEndian.Uint64(payload[16:24])
	data := payload[rmaFragHeaderLen:]

	reg, ok := e.rmaRegs[token]
	if !ok || reg.deregistered || reg.access&transport.MRWrite == 0 || offset+uint64(len(data)) > uint64(len(reg.buf)) {
		e.sendNackRNR(c.peerAddr, h)
		return
	}
	copy(reg.buf[offset:], data)

	s := h.Seq
	base := c.expectedSeq
	if s == base+1 {
		c.expectedSeq = s
	} else if !seqLessEq(s, base) {
		c.ackBitmap = markDelivered(c.ackBitmap, base, s)
	}
	c.ackDue = true
}

// handleRMAReadReq serves a remote READ by replying with the requested
// bytes from the local registration.
func (e *endpoint) handleRMAReadReq(h wire.Header, payload []byte) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connReady {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)
	if len(payload) < rmaFragHeaderLen+8 {
		return
	}
	opID := binary.BigEndian.Uint64(payload[0:8])
	token := binary.BigEndian.Uint64(payload[8:16])
	offset := binary.BigEndian.Uint64(payload[16:24])
	length := binary.BigEndian.Uint64(payload[24:32])

	reg, ok := e.rmaRegs[token]
	if !ok || reg.deregistered || reg.access&transport.MRRead == 0 || offset+length > uint64(len(reg.buf)) {
		e.sendNackRNR(c.peerAddr, h)
		return
	}
	reply := make([]byte, rmaFragHeaderLen+int(length))
	binary.BigEndian.PutUint64(reply[0:8], opID)
	binary.BigEndian.PutUint64(reply[8:16], token)
	binary.BigEndian.PutUint64(reply[16:24], offset)
	copy(reply[rmaFragHeaderLen:], reg.buf[offset:offset+length])

	seq := c.nextSeq
	c.nextSeq++
	td := &txDescriptor{seq: seq, ptype: wire.TypeRMAReadReply, payload: reply, deadline: time.Now().Add(effectiveSendTimeout(c, e.cfg)), silent: true}
	c.inFlight[seq] = td
	e.transmit(c, td)

	s := h.Seq
	base := c.expectedSeq
	if s == base+1 {
		c.expectedSeq = s
	}
	c.ackDue = true
}

// handleRMAReadReply completes one fragment of a local READ op by copying
// the returned data into the registered destination buffer.
func (e *endpoint) handleRMAReadReply(h wire.Header, payload []byte) {
	c, ok := e.conns[h.DstConnID]
	if !ok || c.status != connReady {
		return
	}
	c.lastRecvTime = time.Now()
	e.processAck(c, h.AckCum, h.AckBitmap)
	if len(payload) < rmaFragHeaderLen {
		return
	}
	opID := binary.BigEndian.Uint64(payload[0:8])
	fragOffset := binary.BigEndian.Uint64(payload[16:24])
	data := payload[rmaFragHeaderLen:]

	op, ok := e.rmaOps[opID]
	if !ok {
		return
	}
	relOffset := fragOffset - op.remoteOffset
	copy(op.reg.buf[op.localOffset+relOffset:], data)
	e.onRMAFragDone(op, transport.StatusSuccess)

	s := h.Seq
	base := c.expectedSeq
	if s == base+1 {
		c.expectedSeq = s
	}
	c.ackDue = true
}
