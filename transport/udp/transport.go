package udp

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rocketbitz/cci-go/cci"
	"github.com/rocketbitz/cci-go/transport"
)

// udpTransport is the registered cci.Transport implementation. It owns no
// state of its own beyond the endpoints it has created; everything else
// lives in the per-endpoint type.
type udpTransport struct {
	mu  sync.Mutex
	eps map[*endpoint]bool
}

// New constructs the udp transport. Registered with cci.RegisterTransport
// in init(), it is also exported so tests and cmd/ccictl can wire it up
// without depending on registration side effects.
func New() transport.Transport {
	return &udpTransport{eps: map[*endpoint]bool{}}
}

func init() {
	cci.RegisterTransport("udp", New)
}

func (t *udpTransport) Name() string { return "udp" }

func (t *udpTransport) Init(abiVersion int, flags uint32) (transport.Caps, error) {
	if abiVersion != cci.ABIVersion {
		return transport.Caps{}, &transport.Error{Status: transport.StatusNotImplemented, Op: "init", Err: fmt.Errorf("unsupported ABI version %d", abiVersion)}
	}
	return transport.Caps{ThreadSafe: true}, nil
}

// Devices enumerates one cci device per local, non-loopback IPv4/IPv6
// address, per spec.md §6.5. probeDevice sets Up, so an address a UDP
// socket cannot bind to is still listed, with Up false.
func (t *udpTransport) Devices() ([]transport.Device, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, &transport.Error{Status: transport.StatusNoDevice, Op: "devices", Err: err}
	}
	devs := make([]transport.Device, 0, len(addrs))
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip := ipNet.IP.String()
		devs = append(devs, transport.Device{
			Name:        "udp_" + ip,
			Up:          probeDevice(ip),
			Params:      map[string]string{"ip": ip},
			MaxSendSize: 65507,
			Rate:        0,
		})
	}
	if len(devs) == 0 {
		devs = append(devs, transport.Device{Name: "udp_0.0.0.0", Up: probeDevice("0.0.0.0"), Params: map[string]string{"ip": "0.0.0.0"}, MaxSendSize: 65507})
	}
	return devs, nil
}

func (t *udpTransport) CreateEndpoint(dev transport.Device, service string, flags uint32) (transport.EndpointHandle, transport.WakeHandle, error) {
	ip := dev.Params["ip"]
	addr := &net.UDPAddr{IP: net.ParseIP(ip)}
	if service != "" {
		if port, err := strconv.Atoi(service); err == nil {
			addr.Port = port
		}
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, nil, &transport.Error{Status: transport.StatusAddrNotAvail, Op: "create_endpoint", Err: err}
	}
	cfg := deviceConfig(dev.Params, DefaultConfig())
	ep := newEndpoint(sock, dev, cfg)
	ep.start()

	t.mu.Lock()
	t.eps[ep] = true
	t.mu.Unlock()

	return ep, ep.wake, nil
}

func (t *udpTransport) DestroyEndpoint(epHandle transport.EndpointHandle) error {
	ep, ok := epHandle.(*endpoint)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "destroy_endpoint"}
	}
	t.mu.Lock()
	delete(t.eps, ep)
	t.mu.Unlock()
	if err := ep.close(); err != nil {
		return &transport.Error{Status: transport.StatusError, Op: "destroy_endpoint", Err: err}
	}
	return nil
}

func (t *udpTransport) Connect(req transport.ConnectRequest) error {
	ep, ok := req.Endpoint.(*endpoint)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "connect"}
	}
	return ep.connect(req)
}

func (t *udpTransport) Accept(evHandle transport.EventHandle, ctx any) (transport.ConnectionHandle, error) {
	ev, ok := evHandle.(*udpEvent)
	if !ok {
		return nil, &transport.Error{Status: transport.StatusInval, Op: "accept"}
	}
	c, err := ev.ep.accept(ev, ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (t *udpTransport) Reject(evHandle transport.EventHandle) error {
	ev, ok := evHandle.(*udpEvent)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "reject"}
	}
	return ev.ep.reject(ev)
}

func (t *udpTransport) Disconnect(connHandle transport.ConnectionHandle) error {
	c, ok := connHandle.(*conn)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "disconnect"}
	}
	return c.ep.disconnect(c)
}

func (t *udpTransport) Send(connHandle transport.ConnectionHandle, msg []byte, ctx any, flags uint32) error {
	c, ok := connHandle.(*conn)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "send"}
	}
	return c.ep.send(c, msg, ctx, flags)
}

func (t *udpTransport) Sendv(connHandle transport.ConnectionHandle, iov [][]byte, ctx any, flags uint32) error {
	c, ok := connHandle.(*conn)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "sendv"}
	}
	total := 0
	for _, b := range iov {
		total += len(b)
	}
	msg := make([]byte, 0, total)
	for _, b := range iov {
		msg = append(msg, b...)
	}
	return c.ep.send(c, msg, ctx, flags)
}

func (t *udpTransport) RMARegister(epHandle transport.EndpointHandle, buf []byte, access transport.MRAccessFlag) (transport.RMAHandleRef, uint64, error) {
	ep, ok := epHandle.(*endpoint)
	if !ok {
		return nil, 0, &transport.Error{Status: transport.StatusInval, Op: "rma_register"}
	}
	return ep.rmaRegister(buf, access)
}

func (t *udpTransport) RMADeregister(h transport.RMAHandleRef) error {
	reg, ok := h.(*rmaRegistration)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "rma_deregister"}
	}
	return reg.ep.rmaDeregister(h)
}

func (t *udpTransport) RMA(req transport.RMARequest) error {
	c, ok := req.Conn.(*conn)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "rma"}
	}
	return c.ep.rma(req)
}

func (t *udpTransport) GetEvent(epHandle transport.EndpointHandle) (transport.EventRecord, error) {
	ep, ok := epHandle.(*endpoint)
	if !ok {
		return transport.EventRecord{}, &transport.Error{Status: transport.StatusInval, Op: "get_event"}
	}
	return ep.getEvent()
}

func (t *udpTransport) ReturnEvent(evHandle transport.EventHandle) error {
	ev, ok := evHandle.(*udpEvent)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "return_event"}
	}
	return ev.ep.returnEvent(ev)
}

func (t *udpTransport) ArmWake(epHandle transport.EndpointHandle, flags uint32) error {
	ep, ok := epHandle.(*endpoint)
	if !ok {
		return &transport.Error{Status: transport.StatusInval, Op: "arm_wake"}
	}
	ep.mu.Lock()
	ep.wake.arm()
	ep.mu.Unlock()
	return nil
}

func (t *udpTransport) SetOpt(target any, name string, value any) error {
	ep, c, err := resolveOptTarget(target)
	if err != nil {
		return err
	}
	return ep.setOpt(c, name, value)
}

func (t *udpTransport) GetOpt(target any, name string) (any, error) {
	ep, c, err := resolveOptTarget(target)
	if err != nil {
		return nil, err
	}
	return ep.getOpt(c, name)
}

// resolveOptTarget accepts either an *endpoint (endpoint-scoped option) or
// a *conn (connection-scoped option) and returns the owning endpoint plus
// the original target typed for setOpt/getOpt's switch.
func resolveOptTarget(target any) (*endpoint, any, error) {
	switch v := target.(type) {
	case *endpoint:
		return v, nil, nil
	case *conn:
		return v.ep, v, nil
	default:
		return nil, nil, &transport.Error{Status: transport.StatusInval, Op: "opt"}
	}
}
