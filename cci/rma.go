package cci

import (
	"encoding/binary"

	"github.com/rocketbitz/cci-go/transport"
)

// RMAHandle is the serializable registration record exchanged with a peer
// so it can target a local buffer with RMA(). It carries no address: the
// 64-bit token is resolved back to a buffer only by the registering
// endpoint's own table, so a forged or stale token from another process
// fails closed rather than dereferencing foreign memory.
type RMAHandle struct {
	Token    uint64
	Length   uint64
	Access   MRAccessFlag
	reserved uint64
}

// rmaHandleWireLen is the on-wire size of a marshaled RMAHandle: four
// 64-bit words, per spec.md §3.
const rmaHandleWireLen = 32

// MarshalBinary renders the handle as 32 bytes, big-endian, suitable for
// embedding in a connect payload or short message.
func (h RMAHandle) MarshalBinary() ([]byte, error) {
	buf := make([]byte, rmaHandleWireLen)
	binary.BigEndian.PutUint64(buf[0:8], h.Token)
	binary.BigEndian.PutUint64(buf[8:16], h.Length)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Access))
	binary.BigEndian.PutUint64(buf[24:32], h.reserved)
	return buf, nil
}

// UnmarshalBinary parses a 32-byte wire-format RMA handle.
func (h *RMAHandle) UnmarshalBinary(data []byte) error {
	if len(data) != rmaHandleWireLen {
		return NewError("rma_handle_unmarshal", StatusEInval, nil)
	}
	h.Token = binary.BigEndian.Uint64(data[0:8])
	h.Length = binary.BigEndian.Uint64(data[8:16])
	h.Access = MRAccessFlag(binary.BigEndian.Uint64(data[16:24]))
	h.reserved = binary.BigEndian.Uint64(data[24:32])
	return nil
}

// LocalRMAHandle is the live, process-local half of a registration: the
// transport-owned reference plus the wire-serializable RMAHandle to send
// to a peer.
type LocalRMAHandle struct {
	endpoint *Endpoint
	ref      transport.RMAHandleRef
	Handle   RMAHandle
}

// Deregister releases the registration. In-flight RMA operations that use
// it are marked failed rather than stopped at once: they issue no further
// fragments and complete with an RMA_HANDLE status once the fragments
// already on the wire finish.
func (h *LocalRMAHandle) Deregister() error {
	if h == nil {
		return NewError("rma_deregister", StatusEInval, nil)
	}
	if err := h.endpoint.transport().RMADeregister(h.ref); err != nil {
		return translateTransportErr("rma_deregister", err)
	}
	return nil
}

// RMARegister pins buf for remote access under access, returning a handle
// whose Handle field is safe to serialize to a peer.
func RMARegister(ep *Endpoint, buf []byte, access MRAccessFlag) (*LocalRMAHandle, error) {
	if ep == nil {
		return nil, NewError("rma_register", StatusEInval, nil)
	}
	ref, token, err := ep.transport().RMARegister(ep.handleRef(), buf, transport.MRAccessFlag(access))
	if err != nil {
		return nil, translateTransportErr("rma_register", err)
	}
	handle := RMAHandle{Token: token, Length: uint64(len(buf)), Access: access}
	return &LocalRMAHandle{endpoint: ep, ref: ref, Handle: handle}, nil
}
