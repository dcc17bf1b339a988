package udp

import (
	"errors"

	"github.com/rocketbitz/cci-go/transport"
)

// errNoBufferSpace is returned internally when the endpoint's N-buffer
// pool is exhausted; callers on the receive path translate this into an
// RNR NACK back to the sender, per spec.md §4.5.
var errNoBufferSpace = errors.New("udp: receive buffer pool exhausted")

// leaseBuffer reserves one of the endpoint's N RX buffer slots. Callers
// hold e.mu.
func (e *endpoint) leaseBuffer() bool {
	if e.leasedBufs >= e.cfg.RecvBufCount {
		return false
	}
	e.leasedBufs++
	return true
}

// releaseBuffer returns a previously leased slot. Callers hold e.mu.
func (e *endpoint) releaseBuffer() {
	if e.leasedBufs > 0 {
		e.leasedBufs--
	}
}

// pushReady appends ev to the ready queue and signals the wake handle on
// the empty->non-empty transition. Callers hold e.mu.
func (e *endpoint) pushReady(ev *udpEvent) {
	wasEmpty := len(e.ready) == 0
	e.ready = append(e.ready, ev)
	if wasEmpty {
		e.wake.fire()
	}
}

// getEvent implements transport.Transport.GetEvent: it runs one progress
// pass (per spec.md §4.6, progress is invoked from GetEvent) and then pops
// the oldest ready event.
func (e *endpoint) getEvent() (transport.EventRecord, error) {
	e.mu.Lock()
	e.progressLocked()
	if len(e.ready) == 0 {
		e.mu.Unlock()
		return transport.EventRecord{}, &transport.Error{Status: transport.StatusAgain, Op: "get_event"}
	}
	ev := e.ready[0]
	e.ready = e.ready[1:]
	e.mu.Unlock()

	return transport.EventRecord{
		Kind:         ev.kind,
		Handle:       ev,
		Status:       ev.status,
		Context:      ev.ctx,
		Conn:         connHandleOrNil(ev),
		Data:         ev.data,
		ReqAttribute: ev.reqAttr,
		ReqData:      ev.reqData,
	}, nil
}

func connHandleOrNil(ev *udpEvent) transport.ConnectionHandle {
	if ev.connID == 0 {
		return nil
	}
	c, ok := ev.ep.conns[ev.connID]
	if !ok {
		return nil
	}
	return c
}

// returnEvent implements transport.Transport.ReturnEvent.
func (e *endpoint) returnEvent(ev *udpEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.kind == transport.EventConnectRequest && ev.pending != nil && !ev.pending.consumed {
		return &transport.Error{Status: transport.StatusInval, Op: "return_event"}
	}
	if ev.leased {
		e.releaseBuffer()
		ev.leased = false
	}
	return nil
}
