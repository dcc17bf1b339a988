package udp

import "sync"

// wakeHandle is the pure-Go analogue of an eventfd: Signal's channel fires
// once on the event queue's empty->non-empty transition. It is one-shot
// per transition; ArmWake re-enables it.
type wakeHandle struct {
	mu     sync.Mutex
	ch     chan struct{}
	armed  bool
	closed bool
}

func newWakeHandle() *wakeHandle {
	return &wakeHandle{ch: make(chan struct{}, 1), armed: true}
}

func (w *wakeHandle) Signal() <-chan struct{} {
	return w.ch
}

func (w *wakeHandle) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	return nil
}

// fire signals the channel if armed, then disarms until Arm is called
// again, matching the level-to-edge flattening real wake primitives need
// on some platforms.
func (w *wakeHandle) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.armed {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
	w.armed = false
}

func (w *wakeHandle) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.armed = true
	}
}
