// Package client is a high-level convenience wrapper over cci/: it hides
// the GetEvent/ReturnEvent poll loop behind a background dispatcher and
// hands callers futures and handler registration instead, the way the
// teacher's libfabric client wraps raw completion-queue polling.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbitz/cci-go/cci"
)

// OperationKind distinguishes the five kinds of asynchronous work a
// Client tracks: connect, accept, send, recv, rma.
type OperationKind int

const (
	OperationConnect OperationKind = iota
	OperationAccept
	OperationSend
	OperationReceive
	OperationRMA
)

func (k OperationKind) String() string {
	switch k {
	case OperationConnect:
		return "connect"
	case OperationAccept:
		return "accept"
	case OperationSend:
		return "send"
	case OperationReceive:
		return "recv"
	case OperationRMA:
		return "rma"
	default:
		return "unknown"
	}
}

// SendCompletion is delivered to a SendHandler once a posted message's
// fate (success, RNR, timeout, disconnect) is known.
type SendCompletion struct {
	Err error
}

// ReceiveCompletion is delivered to a ReceiveHandler for every inbound
// message, successful or not.
type ReceiveCompletion struct {
	Data []byte
	Conn *cci.Connection
	Err  error
}

// SendHandler observes every completed send posted through this Client.
type SendHandler func(SendCompletion)

// ReceiveHandler observes every inbound message delivered to this
// Client's endpoint.
type ReceiveHandler func(ReceiveCompletion)

// KeepaliveHandler observes a connection's keepalive timeout.
type KeepaliveHandler func(*cci.Connection)

// Stats is a point-in-time snapshot of a Client's lifetime counters.
type Stats struct {
	SendPosted        uint64
	SendCompleted     uint64
	SendErrored       uint64
	ReceiveDelivered  uint64
	ReceiveErrored    uint64
	ConnectCompleted  uint64
	ConnectFailed     uint64
	RMACompleted      uint64
	RMAErrored        uint64
	KeepaliveTimeouts uint64
}

type clientStats struct {
	sendPosted        atomic.Uint64
	sendCompleted     atomic.Uint64
	sendErrored       atomic.Uint64
	receiveDelivered  atomic.Uint64
	receiveErrored    atomic.Uint64
	connectCompleted  atomic.Uint64
	connectFailed     atomic.Uint64
	rmaCompleted      atomic.Uint64
	rmaErrored        atomic.Uint64
	keepaliveTimeouts atomic.Uint64
}

func (s *clientStats) snapshot() Stats {
	return Stats{
		SendPosted:        s.sendPosted.Load(),
		SendCompleted:      s.sendCompleted.Load(),
		SendErrored:        s.sendErrored.Load(),
		ReceiveDelivered:   s.receiveDelivered.Load(),
		ReceiveErrored:     s.receiveErrored.Load(),
		ConnectCompleted:   s.connectCompleted.Load(),
		ConnectFailed:      s.connectFailed.Load(),
		RMACompleted:       s.rmaCompleted.Load(),
		RMAErrored:         s.rmaErrored.Load(),
		KeepaliveTimeouts:  s.keepaliveTimeouts.Load(),
	}
}

// Config configures Dial. ServerURI and Payload are only consulted by
// Dial; a Listener built with ListenerConfig ignores them.
type Config struct {
	Device    string
	Service   string
	Attribute cci.Attribute
	ServerURI string
	Payload   []byte
	Timeout   time.Duration
	Flags     uint32

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// operationResult is the outcome snapshot stashed by operation.complete.
type operationResult struct {
	err  error
	conn *cci.Connection
	data []byte
}

// operation is a single in-flight async call. Its pointer is passed as
// the ctx argument to the underlying cci call and echoed back verbatim on
// Event.Context, which is how the dispatcher correlates a completion
// without a side table — the same trick the teacher's client package
// plays by stashing *operation in a context.Context value.
type operation struct {
	kind OperationKind
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	result    operationResult
	callbacks []func(operationResult)
}

func newOperation(kind OperationKind) *operation {
	return &operation{kind: kind, done: make(chan struct{})}
}

func (op *operation) complete(res operationResult) {
	op.once.Do(func() {
		op.mu.Lock()
		op.result = res
		cbs := op.callbacks
		op.callbacks = nil
		op.mu.Unlock()
		close(op.done)
		for _, cb := range cbs {
			go cb(res)
		}
	})
}

func (op *operation) addCallback(cb func(operationResult)) {
	op.mu.Lock()
	select {
	case <-op.done:
		op.mu.Unlock()
		op.mu.Lock()
		res := op.result
		op.mu.Unlock()
		go cb(res)
		return
	default:
	}
	op.callbacks = append(op.callbacks, cb)
	op.mu.Unlock()
}

func (op *operation) await(ctx context.Context) (operationResult, error) {
	select {
	case <-op.done:
		op.mu.Lock()
		res := op.result
		op.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return operationResult{}, ctx.Err()
	}
}

// SendFuture is returned by SendAsync.
type SendFuture struct{ op *operation }

// Await blocks until the send completes or ctx is done.
func (f *SendFuture) Await(ctx context.Context) error {
	res, err := f.op.await(ctx)
	if err != nil {
		return err
	}
	return res.err
}

// Done reports the future's completion channel.
func (f *SendFuture) Done() <-chan struct{} { return f.op.done }

// OnComplete registers a callback fired exactly once, on its own new
// goroutine, when the send completes.
func (f *SendFuture) OnComplete(fn func(error)) {
	f.op.addCallback(func(res operationResult) { fn(res.err) })
}

// RMAFuture is returned by RMAWriteAsync/RMAReadAsync.
type RMAFuture struct{ op *operation }

func (f *RMAFuture) Await(ctx context.Context) error {
	res, err := f.op.await(ctx)
	if err != nil {
		return err
	}
	return res.err
}

func (f *RMAFuture) Done() <-chan struct{} { return f.op.done }

func (f *RMAFuture) OnComplete(fn func(error)) {
	f.op.addCallback(func(res operationResult) { fn(res.err) })
}

// Client is a dialed or accepted CCI connection plus the endpoint it
// lives on, with a background dispatcher translating GetEvent polling
// into futures and handler callbacks.
type Client struct {
	cfg  Config
	ep   *cci.Endpoint
	conn *cci.Connection

	ownsEndpoint bool
	parent       *Listener // non-nil when this Client was produced by Listener.Accept

	closed        atomic.Bool
	dispatcherErr atomic.Pointer[error]
	stopCh        chan struct{}
	wg            sync.WaitGroup

	handlersMu        sync.Mutex
	sendHandlers      map[uint64]SendHandler
	receiveHandlers   map[uint64]ReceiveHandler
	keepaliveHandlers map[uint64]KeepaliveHandler
	handlerSeq        uint64

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook

	stats clientStats
}

func newClient(cfg Config, ep *cci.Endpoint, conn *cci.Connection, ownsEndpoint bool) *Client {
	c := &Client{
		cfg:               cfg,
		ep:                ep,
		conn:              conn,
		ownsEndpoint:      ownsEndpoint,
		stopCh:            make(chan struct{}),
		sendHandlers:      map[uint64]SendHandler{},
		receiveHandlers:   map[uint64]ReceiveHandler{},
		keepaliveHandlers: map[uint64]KeepaliveHandler{},
		logger:            cfg.Logger,
		structuredLogger:  cfg.StructuredLogger,
		tracer:            cfg.Tracer,
		metrics:           cfg.Metrics,
	}
	return c
}

// startDispatch launches the background GetEvent loop. Callers that share
// an endpoint across several Clients (a Listener's accepted connections)
// must not call this more than once per endpoint — Listener owns that
// responsibility itself and routes events to the right Client.
func (c *Client) startDispatch() {
	c.wg.Add(1)
	go c.dispatch()
}

// Connection returns the underlying connection handle, for callers that
// need to call a cci-level method this wrapper doesn't expose (e.g.
// SetOpt for a non-default keepalive timeout).
func (c *Client) Connection() *cci.Connection { return c.conn }

// Endpoint returns the underlying endpoint handle.
func (c *Client) Endpoint() *cci.Endpoint { return c.ep }

// Stats returns a snapshot of this Client's lifetime counters.
func (c *Client) Stats() Stats { return c.stats.snapshot() }

// Close tears down the connection and, if this Client owns its endpoint
// (i.e. it was produced by Dial, not Listener.Accept), the endpoint too.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()

	var err error
	if c.conn != nil {
		if derr := c.conn.Disconnect(); derr != nil {
			err = derr
		}
	}
	if c.ownsEndpoint && c.ep != nil {
		if derr := c.ep.DestroyEndpoint(); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

func (c *Client) ensureOpen() error {
	if c.closed.Load() {
		return fmt.Errorf("client: closed")
	}
	if p := c.dispatcherErr.Load(); p != nil {
		return *p
	}
	return nil
}

// RegisterSendHandler subscribes fn to every send completion on this
// Client, returning an unregister closure.
func (c *Client) RegisterSendHandler(fn SendHandler) func() {
	c.handlersMu.Lock()
	id := c.handlerSeq
	c.handlerSeq++
	c.sendHandlers[id] = fn
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.sendHandlers, id)
		c.handlersMu.Unlock()
	}
}

// RegisterReceiveHandler subscribes fn to every inbound message on this
// Client's endpoint.
func (c *Client) RegisterReceiveHandler(fn ReceiveHandler) func() {
	c.handlersMu.Lock()
	id := c.handlerSeq
	c.handlerSeq++
	c.receiveHandlers[id] = fn
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.receiveHandlers, id)
		c.handlersMu.Unlock()
	}
}

// RegisterKeepaliveHandler subscribes fn to this Client's
// KEEPALIVE_TIMEDOUT events.
func (c *Client) RegisterKeepaliveHandler(fn KeepaliveHandler) func() {
	c.handlersMu.Lock()
	id := c.handlerSeq
	c.handlerSeq++
	c.keepaliveHandlers[id] = fn
	c.handlersMu.Unlock()
	return func() {
		c.handlersMu.Lock()
		delete(c.keepaliveHandlers, id)
		c.handlersMu.Unlock()
	}
}

// Send posts msg and blocks until it completes or ctx is done.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	f, err := c.SendAsync(msg)
	if err != nil {
		return err
	}
	return f.Await(ctx)
}

// SendAsync posts msg without blocking, returning a future for its
// completion.
func (c *Client) SendAsync(msg []byte) (*SendFuture, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	op := newOperation(OperationSend)
	if err := c.conn.Send(msg, op, c.cfg.Flags); err != nil {
		return nil, err
	}
	c.stats.sendPosted.Add(1)
	return &SendFuture{op: op}, nil
}

// Receive blocks until the next inbound message arrives on this Client's
// endpoint or ctx is done.
func (c *Client) Receive(ctx context.Context) (ReceiveCompletion, error) {
	resCh := make(chan ReceiveCompletion, 1)
	unregister := c.RegisterReceiveHandler(func(rc ReceiveCompletion) {
		select {
		case resCh <- rc:
		default:
		}
	})
	defer unregister()
	select {
	case rc := <-resCh:
		return rc, nil
	case <-ctx.Done():
		return ReceiveCompletion{}, ctx.Err()
	}
}

// RMARegister pins buf for remote access, see cci.RMARegister.
func (c *Client) RMARegister(buf []byte, access cci.MRAccessFlag) (*cci.LocalRMAHandle, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	return cci.RMARegister(c.ep, buf, access)
}

// RMAWriteAsync pushes local[localOffset:localOffset+length] to remote,
// optionally piggybacking completionMsg once every fragment is
// acknowledged.
func (c *Client) RMAWriteAsync(local *cci.LocalRMAHandle, localOffset uint64, remote cci.RMAHandle, remoteOffset, length uint64, completionMsg []byte) (*RMAFuture, error) {
	return c.rmaAsync(local, localOffset, remote, remoteOffset, length, completionMsg, cci.RMAWrite)
}

// RMAReadAsync pulls remote[remoteOffset:remoteOffset+length] into
// local[localOffset:...].
func (c *Client) RMAReadAsync(local *cci.LocalRMAHandle, localOffset uint64, remote cci.RMAHandle, remoteOffset, length uint64) (*RMAFuture, error) {
	return c.rmaAsync(local, localOffset, remote, remoteOffset, length, nil, cci.RMARead)
}

func (c *Client) rmaAsync(local *cci.LocalRMAHandle, localOffset uint64, remote cci.RMAHandle, remoteOffset, length uint64, completionMsg []byte, dir cci.RMAFlag) (*RMAFuture, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	op := newOperation(OperationRMA)
	flags := uint32(dir) | c.cfg.Flags
	if err := c.conn.RMA(local, localOffset, remote, remoteOffset, length, completionMsg, op, flags); err != nil {
		return nil, err
	}
	return &RMAFuture{op: op}, nil
}

// dispatch is the background GetEvent loop. It runs until stopCh closes
// or the endpoint reports ENDPOINT_DEVICE_FAILED, at which point the
// Client is considered dead: ensureOpen starts failing every call.
func (c *Client) dispatch() {
	defer c.wg.Done()
	attrs := c.metricAttrs()
	c.metricDispatcherStarted(attrs)
	defer c.metricDispatcherStopped(attrs)

	backoff := time.Millisecond
	const maxBackoff = 10 * time.Millisecond
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		ev, err := c.ep.GetEvent()
		if err != nil {
			if backoff < maxBackoff {
				backoff *= 2
			}
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = time.Millisecond
		c.handleEvent(ev)
		if c.dispatcherErr.Load() != nil {
			return
		}
	}
}

func (c *Client) handleEvent(ev *cci.Event) {
	switch ev.Kind {
	case cci.EventSend:
		c.handleSendEvent(ev)
	case cci.EventRecv:
		c.handleRecvEvent(ev)
	case cci.EventConnect, cci.EventAccept:
		c.handleConnectOrAcceptEvent(ev)
	case cci.EventConnectRequest:
		c.handleConnectRequestEvent(ev)
		return // consumed is decided by the caller; don't ReturnEvent yet
	case cci.EventKeepaliveTimedOut:
		c.handleKeepaliveEvent(ev)
	case cci.EventEndpointDeviceFailed:
		err := fmt.Errorf("client: endpoint device failed")
		c.dispatcherErr.Store(&err)
		c.logDispatcherEvent("endpoint device failed", nil)
	}
	_ = ev.ReturnEvent()
}

func (c *Client) handleSendEvent(ev *cci.Event) {
	op, _ := ev.Context.(*operation)
	isRMA := op != nil && op.kind == OperationRMA

	var err error
	if ev.Status != cci.StatusSuccess {
		err = cci.NewError("send", ev.Status, nil)
		if isRMA {
			c.stats.rmaErrored.Add(1)
			c.metricRMAFailed(err)
		} else {
			c.stats.sendErrored.Add(1)
			c.metricSendFailed(err)
		}
	} else {
		if isRMA {
			c.stats.rmaCompleted.Add(1)
			c.metricRMACompleted()
		} else {
			c.stats.sendCompleted.Add(1)
			c.metricSendCompleted()
		}
	}
	if op != nil {
		op.complete(operationResult{err: err})
	}
	if !isRMA {
		c.fireSendHandlers(SendCompletion{Err: err})
	}
}

func (c *Client) handleRecvEvent(ev *cci.Event) {
	var err error
	if ev.Status != cci.StatusSuccess {
		err = cci.NewError("recv", ev.Status, nil)
		c.stats.receiveErrored.Add(1)
		c.metricReceiveFailed(err)
	} else {
		c.stats.receiveDelivered.Add(1)
		c.metricReceiveCompleted()
	}
	c.fireReceiveHandlers(ReceiveCompletion{Data: ev.Data, Conn: ev.Conn, Err: err})
}

func (c *Client) handleConnectOrAcceptEvent(ev *cci.Event) {
	var err error
	if ev.Status != cci.StatusSuccess {
		err = cci.NewError(ev.Kind.String(), ev.Status, nil)
		c.stats.connectFailed.Add(1)
		c.metricConnectFailed(err)
	} else {
		c.stats.connectCompleted.Add(1)
		c.metricConnectCompleted()
	}
	if op, ok := ev.Context.(*operation); ok {
		op.complete(operationResult{err: err, conn: ev.Conn})
	}
}

func (c *Client) handleConnectRequestEvent(ev *cci.Event) {
	if c.parent != nil {
		c.parent.deliverConnectRequest(ev)
		return
	}
	// A Client not owned by a Listener has no one to hand an unsolicited
	// CONNECT_REQUEST to; reject it rather than leak the event lease.
	_ = ev.Reject()
	_ = ev.ReturnEvent()
}

func (c *Client) handleKeepaliveEvent(ev *cci.Event) {
	c.stats.keepaliveTimeouts.Add(1)
	c.metricKeepaliveTimedOut()
	c.handlersMu.Lock()
	handlers := make([]KeepaliveHandler, 0, len(c.keepaliveHandlers))
	for _, fn := range c.keepaliveHandlers {
		handlers = append(handlers, fn)
	}
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		go fn(ev.Conn)
	}
}

func (c *Client) fireSendHandlers(sc SendCompletion) {
	c.handlersMu.Lock()
	handlers := make([]SendHandler, 0, len(c.sendHandlers))
	for _, fn := range c.sendHandlers {
		handlers = append(handlers, fn)
	}
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		go fn(sc)
	}
}

func (c *Client) fireReceiveHandlers(rc ReceiveCompletion) {
	c.handlersMu.Lock()
	handlers := make([]ReceiveHandler, 0, len(c.receiveHandlers))
	for _, fn := range c.receiveHandlers {
		handlers = append(handlers, fn)
	}
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		go fn(rc)
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

func (c *Client) logDispatcherEvent(msg string, fields []logField) {
	if c.structuredLogger != nil {
		c.structuredLogger.Debugw(msg, fieldsToKeyvals(fields)...)
		return
	}
	c.logf("%s %v", msg, fields)
}

func (c *Client) metricAttrs(extra ...logField) map[string]string {
	attrs := map[string]string{"device": c.cfg.Device, "service": c.cfg.Service}
	for _, f := range extra {
		attrs[f.key] = fmt.Sprintf("%v", f.value)
	}
	return attrs
}

func (c *Client) metricDispatcherStarted(attrs map[string]string) {
	if c.metrics != nil {
		c.metrics.DispatcherStarted(attrs)
	}
}

func (c *Client) metricDispatcherStopped(attrs map[string]string) {
	if c.metrics != nil {
		c.metrics.DispatcherStopped(attrs)
	}
}

func (c *Client) metricSendCompleted() {
	if c.metrics != nil {
		c.metrics.SendCompleted(c.metricAttrs())
	}
}

func (c *Client) metricSendFailed(err error) {
	if c.metrics != nil {
		c.metrics.SendFailed(err, c.metricAttrs())
	}
}

func (c *Client) metricReceiveCompleted() {
	if c.metrics != nil {
		c.metrics.ReceiveCompleted(c.metricAttrs())
	}
}

func (c *Client) metricReceiveFailed(err error) {
	if c.metrics != nil {
		c.metrics.ReceiveFailed(err, c.metricAttrs())
	}
}

func (c *Client) metricConnectCompleted() {
	if c.metrics != nil {
		c.metrics.ConnectCompleted(c.metricAttrs())
	}
}

func (c *Client) metricConnectFailed(err error) {
	if c.metrics != nil {
		c.metrics.ConnectFailed(err, c.metricAttrs())
	}
}

func (c *Client) metricRMACompleted() {
	if c.metrics != nil {
		c.metrics.RMACompleted(c.metricAttrs())
	}
}

func (c *Client) metricRMAFailed(err error) {
	if c.metrics != nil {
		c.metrics.RMAFailed(err, c.metricAttrs())
	}
}

func (c *Client) metricKeepaliveTimedOut() {
	if c.metrics != nil {
		c.metrics.KeepaliveTimedOut(c.metricAttrs())
	}
}

// MetricHook is the seam client/ reports operation counts through; both
// PrometheusMetrics and OTelMetrics implement it.
type MetricHook interface {
	DispatcherStarted(attrs map[string]string)
	DispatcherStopped(attrs map[string]string)
	SendCompleted(attrs map[string]string)
	SendFailed(err error, attrs map[string]string)
	ReceiveCompleted(attrs map[string]string)
	ReceiveFailed(err error, attrs map[string]string)
	ConnectCompleted(attrs map[string]string)
	ConnectFailed(err error, attrs map[string]string)
	RMACompleted(attrs map[string]string)
	RMAFailed(err error, attrs map[string]string)
	KeepaliveTimedOut(attrs map[string]string)
}
