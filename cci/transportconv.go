package cci

import "github.com/rocketbitz/cci-go/transport"

// toTransportDevice strips the fields a transport doesn't own (priority,
// default, the config-assigned name-to-transport mapping) before handing a
// Device to CreateEndpoint.
func toTransportDevice(d Device) transport.Device {
	return transport.Device{
		Name:        d.Name,
		Up:          d.Up,
		Params:      d.Params,
		MaxSendSize: d.MaxSendSize,
		Rate:        d.Rate,
	}
}

// statusFromTransport converts a transport.Status into the public cci.Status
// enum. The two enums are defined with identical ordering by convention,
// but the mapping is spelled out explicitly rather than cast so a future
// addition to one without the other fails loudly instead of silently
// misattributing a status.
func statusFromTransport(s transport.Status) Status {
	switch s {
	case transport.StatusSuccess:
		return StatusSuccess
	case transport.StatusError:
		return StatusError
	case transport.StatusDisconnected:
		return StatusErrDisconnected
	case transport.StatusRNR:
		return StatusErrRNR
	case transport.StatusDeviceDead:
		return StatusErrDeviceDead
	case transport.StatusRMAHandle:
		return StatusErrRMAHandle
	case transport.StatusRMAOp:
		return StatusErrRMAOp
	case transport.StatusNotImplemented:
		return StatusErrNotImplemented
	case transport.StatusNotFound:
		return StatusErrNotFound
	case transport.StatusInval:
		return StatusEInval
	case transport.StatusTimedOut:
		return StatusETimedOut
	case transport.StatusNoMem:
		return StatusENoMem
	case transport.StatusNoDevice:
		return StatusENoDevice
	case transport.StatusNetDown:
		return StatusENetDown
	case transport.StatusBusy:
		return StatusEBusy
	case transport.StatusRange:
		return StatusERange
	case transport.StatusAgain:
		return StatusEAgain
	case transport.StatusNoBufferSpace:
		return StatusENoBufferSpace
	case transport.StatusMsgSize:
		return StatusEMsgSize
	case transport.StatusNoMsg:
		return StatusENoMsg
	case transport.StatusAddrNotAvail:
		return StatusEAddrNotAvail
	case transport.StatusConnRefused:
		return StatusEConnRefused
	default:
		return StatusError
	}
}

// statusToTransport is the inverse of statusFromTransport, used when cci
// needs to report a status back into a transport.Error (currently unused
// by the reference transport, kept for symmetry and future transports that
// want to reuse cci's own status decisions).
func statusToTransport(s Status) transport.Status {
	switch s {
	case StatusSuccess:
		return transport.StatusSuccess
	case StatusErrDisconnected:
		return transport.StatusDisconnected
	case StatusErrRNR:
		return transport.StatusRNR
	case StatusErrDeviceDead:
		return transport.StatusDeviceDead
	case StatusErrRMAHandle:
		return transport.StatusRMAHandle
	case StatusErrRMAOp:
		return transport.StatusRMAOp
	case StatusErrNotImplemented:
		return transport.StatusNotImplemented
	case StatusErrNotFound:
		return transport.StatusNotFound
	case StatusEInval:
		return transport.StatusInval
	case StatusETimedOut:
		return transport.StatusTimedOut
	case StatusENoMem:
		return transport.StatusNoMem
	case StatusENoDevice:
		return transport.StatusNoDevice
	case StatusENetDown:
		return transport.StatusNetDown
	case StatusEBusy:
		return transport.StatusBusy
	case StatusERange:
		return transport.StatusRange
	case StatusEAgain:
		return transport.StatusAgain
	case StatusENoBufferSpace:
		return transport.StatusNoBufferSpace
	case StatusEMsgSize:
		return transport.StatusMsgSize
	case StatusENoMsg:
		return transport.StatusNoMsg
	case StatusEAddrNotAvail:
		return transport.StatusAddrNotAvail
	case StatusEConnRefused:
		return transport.StatusConnRefused
	default:
		return transport.StatusError
	}
}
