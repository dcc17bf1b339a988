package cci

// Attribute is the reliability+ordering triple assigned to a connection.
type Attribute uint8

const (
	AttrRO Attribute = iota // reliable, ordered
	AttrRU                  // reliable, unordered
	AttrUU                  // unreliable, unordered
	AttrUUMCTx               // unreliable multicast, transmit side
	AttrUUMCRx               // unreliable multicast, receive side
)

func (a Attribute) String() string {
	switch a {
	case AttrRO:
		return "RO"
	case AttrRU:
		return "RU"
	case AttrUU:
		return "UU"
	case AttrUUMCTx:
		return "UU_MC_TX"
	case AttrUUMCRx:
		return "UU_MC_RX"
	default:
		return "unknown"
	}
}

// Reliable reports whether the attribute carries reliable-transport
// semantics (ACKs, retransmission, RMA eligibility).
func (a Attribute) Reliable() bool {
	return a == AttrRO || a == AttrRU
}

// ConnStatus is the connection lifecycle state from spec.md §3.
type ConnStatus uint8

const (
	ConnInit ConnStatus = iota
	ConnRequested
	ConnReady
	ConnRejected
	ConnFailed
	ConnDisconnected
)

func (s ConnStatus) String() string {
	switch s {
	case ConnInit:
		return "init"
	case ConnRequested:
		return "requested"
	case ConnReady:
		return "ready"
	case ConnRejected:
		return "rejected"
	case ConnFailed:
		return "failed"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SendFlag controls Send/Sendv/RMA posting behavior.
type SendFlag uint32

const (
	FlagBlocking SendFlag = 1 << 0
	FlagNoCopy   SendFlag = 1 << 1
	_            SendFlag = 1 << 2 // reserved, matches the original bit layout
	FlagSilent   SendFlag = 1 << 3
)

// RMAFlag controls RMA() posting behavior; READ/WRITE/FENCE occupy the bits
// immediately above the send flags so the two flag spaces can be combined
// for an RMA call that also sets BLOCKING/SILENT.
type RMAFlag uint32

const (
	RMARead  RMAFlag = 1 << 4
	RMAWrite RMAFlag = 1 << 5
	RMAFence RMAFlag = 1 << 6
)

// MRAccessFlag controls RMA registration protection.
type MRAccessFlag uint32

const (
	MRRead  MRAccessFlag = 1 << 0
	MRWrite MRAccessFlag = 1 << 1
)

// PCIAddress identifies a device's PCI location, when known.
type PCIAddress struct {
	Domain   uint32
	Bus      uint8
	Device   uint8
	Function uint8
}

// Device is an immutable, enumerated transport-backed resource.
type Device struct {
	Name        string
	Transport   string
	Priority    int
	Up          bool
	Params      map[string]string
	MaxSendSize uint32
	Rate        uint64
	PCI         PCIAddress
	Default     bool
}

// Opt names a gettable/settable tunable, scoped to an endpoint or connection.
type Opt int

const (
	OptEndpointSendTimeout Opt = iota
	OptEndpointRecvBufCount
	OptEndpointSendBufCount
	OptEndpointKeepaliveTimeout
	OptEndpointURI // get-only
	OptEndpointRMAAlign // get-only
	OptConnSendTimeout
	OptConnKeepaliveTimeout
)

func (o Opt) String() string {
	switch o {
	case OptEndpointSendTimeout:
		return "ENDPT_SEND_TIMEOUT"
	case OptEndpointRecvBufCount:
		return "ENDPT_RECV_BUF_COUNT"
	case OptEndpointSendBufCount:
		return "ENDPT_SEND_BUF_COUNT"
	case OptEndpointKeepaliveTimeout:
		return "ENDPT_KEEPALIVE_TIMEOUT"
	case OptEndpointURI:
		return "ENDPT_URI"
	case OptEndpointRMAAlign:
		return "ENDPT_RMA_ALIGN"
	case OptConnSendTimeout:
		return "CONN_SEND_TIMEOUT"
	case OptConnKeepaliveTimeout:
		return "CONN_KEEPALIVE_TIMEOUT"
	default:
		return "UNKNOWN_OPT"
	}
}

// ConnReqLen is the maximum payload carried by a connect request.
const ConnReqLen = 1024

// ABIVersion is the ABI version negotiated at Init.
const ABIVersion = 2
