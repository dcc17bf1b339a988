package udp

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rocketbitz/cci-go/internal/idalloc"
	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

var errInvalidParam = errors.New("udp: invalid numeric parameter")

// endpoint is the udp transport's EndpointHandle. One mutex guards every
// connection, the event pool and the ID allocator; see conn.go's note on
// why per-connection locking was collapsed to this single lock.
type endpoint struct {
	mu   sync.Mutex
	sock packetConn
	dev  transport.Device
	cfg  Config
	wake *wakeHandle

	connIDs *idalloc.Allocator
	conns   map[uint32]*conn

	pending       map[uint64]*pendingReq
	nextPendingID uint64

	rmaRegs     map[uint64]*rmaRegistration
	rmaOps      map[uint64]*rmaOpState
	nextRMAOpID uint64

	// leasedBufs counts RX buffer leases currently outstanding (events not
	// yet returned); capacity is cfg.RecvBufCount, per spec.md §4.5. Actual
	// storage is just a freshly allocated []byte per event — Go's GC plays
	// the role of the teacher's MRPool free list once ReturnEvent drops the
	// counter back down.
	leasedBufs int
	ready      []*udpEvent

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// pendingReq is an inbound REQUEST awaiting Accept/Reject.
type pendingReq struct {
	ep        *endpoint
	peerAddr  *net.UDPAddr
	peerID    uint32
	attribute transport.Attribute
	payload   []byte
	consumed  bool
}

// udpEvent is the opaque transport.EventHandle pushed onto the ready queue.
type udpEvent struct {
	ep      *endpoint
	kind    transport.EventKind
	status  transport.Status
	ctx     any
	connID  uint32 // 0 means "no connection", since ID 0 is reserved
	data    []byte
	reqAttr transport.Attribute
	reqData []byte
	pending *pendingReq
	leased  bool // true if this event holds one of the endpoint's N buffer leases
}

func newEndpoint(sock packetConn, dev transport.Device, cfg Config) *endpoint {
	ep := &endpoint{
		sock:    sock,
		dev:     dev,
		cfg:     cfg,
		wake:    newWakeHandle(),
		connIDs: idalloc.New(1 << 16),
		conns:   map[uint32]*conn{},
		pending: map[uint64]*pendingReq{},
		rmaRegs: map[uint64]*rmaRegistration{},
		rmaOps:  map[uint64]*rmaOpState{},
		stopCh:  make(chan struct{}),
	}
	return ep
}

// start launches the optional internal progress goroutine described in
// spec.md §4.6 and §5 — progress also runs synchronously inside GetEvent
// and Send, so this goroutine exists purely to make forward progress (ACK
// delivery, retransmission, keepalive) when the application isn't polling.
func (e *endpoint) start() {
	e.wg.Add(1)
	go e.progressLoop()
}

func (e *endpoint) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	_ = e.wake.Close()
	return e.sock.Close()
}

func (e *endpoint) localAddr() *net.UDPAddr {
	if a, ok := e.sock.LocalAddr().(*net.UDPAddr); ok {
		return a
	}
	return &net.UDPAddr{}
}

// sendPacket marshals and writes a header+payload datagram. Callers hold
// e.mu, and it stays held across the write.
func (e *endpoint) sendPacket(addr *net.UDPAddr, h wire.Header, payload []byte) error {
	buf, err := wire.EncodePacket(h, payload)
	if err != nil {
		return err
	}
	_, err = e.sock.WriteTo(buf, addr)
	return err
}

func attrToWire(a transport.Attribute) uint8 { return uint8(a) }

func wireToAttr(b uint8) transport.Attribute { return transport.Attribute(b) }

// deviceConfig pulls Config fields from a device's free-form Params map,
// falling back to cfg's current value when absent or unparsable.
func deviceConfig(params map[string]string, base Config) Config {
	cfg := base
	if v, ok := params["mtu"]; ok {
		if n, err := parseUintParam(v); err == nil {
			cfg.MTU = int(n)
		}
	}
	return cfg
}

func parseUintParam(s string) (uint64, error) {
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errInvalidParam
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}

// connectTimeoutOrDefault resolves a Connect() timeout of 0 to the
// transport's configured default.
func connectTimeoutOrDefault(cfg Config, d time.Duration) time.Duration {
	if d <= 0 {
		return cfg.ConnectTimeout
	}
	return d
}
