package udp

import (
	"net"
	"time"

	"github.com/rocketbitz/cci-go/internal/wire"
	"github.com/rocketbitz/cci-go/transport"
)

// txDescriptor is the in-flight record for one reliable send, per
// spec.md §4.2: sequence, deadline, resend count, payload, completion
// template and flags.
type txDescriptor struct {
	seq        uint32
	ptype      wire.PacketType
	payload    []byte
	deadline   time.Time
	lastSend   time.Time
	resends    int
	ctx        any
	flags      uint32
	silent     bool
	rnrNacked  bool
	fence      bool
	onComplete func(status transport.Status)
}

// conn is one connection's full reliable-transport and handshake state.
// The reference engine collapses per-connection locking into the owning
// endpoint's single mutex (see endpoint.go) rather than spec.md §5's
// per-connection lock, trading a slice of parallelism for a much smaller
// lock-ordering surface to get right in a from-scratch implementation.
type conn struct {
	ep        *endpoint
	localID   uint32
	peerID    uint32
	peerAddr  *net.UDPAddr
	attribute transport.Attribute
	status    connStatus

	maxSendSize  uint32
	sendTimeout  time.Duration
	connectTime  time.Time
	connectTimeout time.Duration

	// reliable send side
	nextSeq       uint32
	oldestUnacked uint32
	inFlight      map[uint32]*txDescriptor
	queuedTx      []*txDescriptor
	windowSize    uint32
	failed        bool
	failStatus    transport.Status

	// reliable receive side
	expectedSeq uint32
	ackBitmap   uint32 // bit i set => expectedSeq+1+i has been delivered out of order (RU dedup, RMA_WRITE); RO messages held out of order live in holdQueue instead
	holdQueue   map[uint32][]byte
	ackDue      bool
	lastAckSent time.Time

	// keepalive
	keepaliveInterval time.Duration
	lastKeepaliveSent time.Time
	lastRecvTime      time.Time
	keepaliveArmed    bool
	keepaliveFired    bool

	// handshake bookkeeping
	isInitiator    bool
	connectCtx     any
	connectPayload []byte // REQUEST payload as seen by the acceptor
	acceptCtx      any

	// RMA fence ordering: fenceInFlight blocks new RMA() calls from the
	// moment a FENCE op is submitted until it completes; rmaOpsInFlight
	// counts ops not yet finished so a FENCE op's own fragments wait for
	// everything already running to complete remotely first, and
	// pendingFence holds that parked op in the meantime.
	fenceInFlight  bool
	rmaOpsInFlight int
	pendingFence   *rmaOpState
}

// connStatus mirrors cci.ConnStatus without importing cci.
type connStatus uint8

const (
	connInit connStatus = iota
	connRequested
	connReady
	connRejected
	connFailed
	connDisconnected
)

func newConn(ep *endpoint, localID uint32, attr transport.Attribute) *conn {
	return &conn{
		ep:            ep,
		localID:       localID,
		attribute:     attr,
		status:        connInit,
		nextSeq:       1,
		inFlight:      map[uint32]*txDescriptor{},
		holdQueue:     map[uint32][]byte{},
		windowSize:    32,
		maxSendSize:   uint32(ep.cfg.MTU),
		sendTimeout:   ep.cfg.SendTimeout,
		connectTimeout: ep.cfg.ConnectTimeout,
	}
}
