package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbitz/cci-go/cci"
)

const (
	minBackoff         = time.Millisecond
	maxDispatchBackoff = 10 * time.Millisecond
)

// ListenerConfig configures Listen. Service is mandatory: it is the
// device-specific bind hint (a UDP port for transport/udp).
type ListenerConfig struct {
	Device  string
	Service string

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Listener accepts inbound connections on one endpoint. Every accepted
// Client shares the listener's endpoint and dispatcher: CCI endpoints are
// already multi-connection, so running a second GetEvent loop per
// accepted connection would just make two goroutines race the same
// socket.
type Listener struct {
	cfg ListenerConfig
	ep  *cci.Endpoint

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	connectRequests chan *cci.Event

	mu       sync.Mutex
	accepted map[*cci.Connection]*Client

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook
}

// Listen opens an endpoint bound to cfg.Service and starts accepting
// connections.
func Listen(cfg ListenerConfig) (*Listener, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("client: Listen requires ListenerConfig.Service")
	}
	if err := ensureInitialized(); err != nil {
		return nil, err
	}
	ep, _, err := cci.CreateEndpointAt(cfg.Device, cfg.Service, 0)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		cfg:             cfg,
		ep:              ep,
		stopCh:          make(chan struct{}),
		connectRequests: make(chan *cci.Event, 64),
		accepted:        map[*cci.Connection]*Client{},
		logger:          cfg.Logger,
		structuredLogger: cfg.StructuredLogger,
		tracer:          cfg.Tracer,
		metrics:         cfg.Metrics,
	}
	l.wg.Add(1)
	go l.dispatch()
	return l, nil
}

// Addr returns the endpoint's bound URI.
func (l *Listener) Addr() (string, error) {
	return l.ep.URI()
}

// Close stops accepting connections and destroys the endpoint along with
// every Client it produced.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.stopCh)
	l.wg.Wait()

	l.mu.Lock()
	clients := make([]*Client, 0, len(l.accepted))
	for _, c := range l.accepted {
		clients = append(clients, c)
	}
	l.accepted = nil
	l.mu.Unlock()
	for _, c := range clients {
		c.closed.Store(true) // dispatcher already stopped with the listener's
	}
	return l.ep.DestroyEndpoint()
}

// Accept blocks until a pending connection request is available, accepts
// it, and waits for the resulting ACCEPT event.
func (l *Listener) Accept(ctx context.Context) (*Client, error) {
	var ev *cci.Event
	select {
	case ev = <-l.connectRequests:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.stopCh:
		return nil, fmt.Errorf("client: listener closed")
	}

	op := newOperation(OperationAccept)
	if _, err := ev.Accept(op); err != nil {
		_ = ev.ReturnEvent()
		return nil, err
	}
	if err := ev.ReturnEvent(); err != nil {
		return nil, err
	}
	res, err := op.await(ctx)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}

	c := newClient(Config{
		Device:           l.cfg.Device,
		Service:          l.cfg.Service,
		Logger:           l.logger,
		StructuredLogger: l.structuredLogger,
		Tracer:           l.tracer,
		Metrics:          l.metrics,
	}, l.ep, res.conn, false)
	c.parent = l

	l.mu.Lock()
	l.accepted[res.conn] = c
	l.mu.Unlock()
	return c, nil
}

func (l *Listener) deliverConnectRequest(ev *cci.Event) {
	select {
	case l.connectRequests <- ev:
	default:
		_ = ev.Reject()
		_ = ev.ReturnEvent()
	}
}

// dispatch is the listener's own GetEvent loop; it owns the endpoint's
// event queue for every connection accepted through it, demultiplexing
// SEND/RECV events to the right accepted *Client by connection.
func (l *Listener) dispatch() {
	defer l.wg.Done()
	backoff := minBackoff
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		ev, err := l.ep.GetEvent()
		if err != nil {
			if backoff < maxDispatchBackoff {
				backoff *= 2
			}
			select {
			case <-l.stopCh:
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = minBackoff
		l.route(ev)
	}
}

func (l *Listener) route(ev *cci.Event) {
	if ev.Kind == cci.EventConnectRequest {
		l.deliverConnectRequest(ev)
		return
	}
	var target *Client
	if ev.Conn != nil {
		l.mu.Lock()
		target = l.accepted[ev.Conn]
		l.mu.Unlock()
	}
	if target != nil {
		target.handleEvent(ev)
		return
	}
	// No accepted Client owns this event yet (e.g. the ACCEPT completion
	// racing Accept's own op.await); handle it against a throwaway Client
	// shell so ACCEPT correlation and ReturnEvent still happen.
	shell := newClient(Config{}, l.ep, ev.Conn, false)
	shell.handleEvent(ev)
}
