package cci

import "fmt"

// Status is the stable error-kind taxonomy returned by every CCI operation,
// synchronously from API calls or asynchronously via event status fields.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusError
	StatusErrDisconnected
	StatusErrRNR
	StatusErrDeviceDead
	StatusErrRMAHandle
	StatusErrRMAOp
	StatusErrNotImplemented
	StatusErrNotFound

	// StatusEInval through StatusEConnRefused alias POSIX errno values, as
	// in the original cci_status_t — CCI-specific kinds above, libc-aliased
	// kinds below.
	StatusEInval
	StatusETimedOut
	StatusENoMem
	StatusENoDevice
	StatusENetDown
	StatusEBusy
	StatusERange
	StatusEAgain
	StatusENoBufferSpace
	StatusEMsgSize
	StatusENoMsg
	StatusEAddrNotAvail
	StatusEConnRefused
)

var statusStrings = map[Status]string{
	StatusSuccess:           "success",
	StatusError:             "generic error",
	StatusErrDisconnected:   "endpoint or connection disconnected",
	StatusErrRNR:            "receiver not ready",
	StatusErrDeviceDead:     "device failed irrecoverably",
	StatusErrRMAHandle:      "invalid or unauthorized RMA handle",
	StatusErrRMAOp:          "RMA operation not supported by this transport",
	StatusErrNotImplemented: "feature not implemented by this transport",
	StatusErrNotFound:       "resource not found",
	StatusEInval:            "invalid argument",
	StatusETimedOut:         "operation timed out",
	StatusENoMem:            "out of memory",
	StatusENoDevice:         "no such device",
	StatusENetDown:          "network is down",
	StatusEBusy:             "device or resource busy",
	StatusERange:            "value out of range",
	StatusEAgain:            "resource temporarily unavailable",
	StatusENoBufferSpace:    "no buffer space available",
	StatusEMsgSize:          "message too long",
	StatusENoMsg:            "no message of the desired type",
	StatusEAddrNotAvail:     "address not available",
	StatusEConnRefused:      "connection refused",
}

// String renders the status the way Strerror does, without requiring an
// endpoint handle.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("cci: unknown status %d", uint32(s))
}

// Error wraps a Status with the failing operation name and an optional
// underlying cause, following the teacher's ErrInvalidHandle/OperationError
// pattern of small typed errors that remain errors.Is-compatible with the
// status they carry.
type Error struct {
	Status Status
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("cci: %s: %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("cci: %s: %s", e.Op, e.Status)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is(err, SomeStatus) style comparisons against the sentinel
// status values below.
func (e *Error) Is(target error) bool {
	other, ok := target.(statusSentinel)
	return ok && e != nil && e.Status == other.status
}

type statusSentinel struct{ status Status }

func (s statusSentinel) Error() string { return s.status.String() }

// Sentinel status errors usable with errors.Is.
var (
	ErrInval            = statusSentinel{StatusEInval}
	ErrTimedOut         = statusSentinel{StatusETimedOut}
	ErrNoMem            = statusSentinel{StatusENoMem}
	ErrNoDevice         = statusSentinel{StatusENoDevice}
	ErrNetDown          = statusSentinel{StatusENetDown}
	ErrBusy             = statusSentinel{StatusEBusy}
	ErrRange            = statusSentinel{StatusERange}
	ErrAgain            = statusSentinel{StatusEAgain}
	ErrNoBufferSpace    = statusSentinel{StatusENoBufferSpace}
	ErrMsgSize          = statusSentinel{StatusEMsgSize}
	ErrNoMsg            = statusSentinel{StatusENoMsg}
	ErrAddrNotAvail     = statusSentinel{StatusEAddrNotAvail}
	ErrConnRefused      = statusSentinel{StatusEConnRefused}
	ErrDisconnected     = statusSentinel{StatusErrDisconnected}
	ErrRNR              = statusSentinel{StatusErrRNR}
	ErrDeviceDead       = statusSentinel{StatusErrDeviceDead}
	ErrRMAHandle        = statusSentinel{StatusErrRMAHandle}
	ErrRMAOp            = statusSentinel{StatusErrRMAOp}
	ErrNotImplemented   = statusSentinel{StatusErrNotImplemented}
	ErrNotFound         = statusSentinel{StatusErrNotFound}
	ErrGeneric          = statusSentinel{StatusError}
)

// NewError builds an *Error for the given operation and status, optionally
// wrapping a lower-level cause.
func NewError(op string, status Status, cause error) *Error {
	return &Error{Op: op, Status: status, Err: cause}
}

// Strerror renders a static, human-readable string for status, mirroring
// cci_strerror from the original implementation. The endpoint parameter is
// accepted for API parity (a transport may offer a provider-specific
// message) but the reference transport never overrides the static table.
func Strerror(ep *Endpoint, status Status) string {
	return status.String()
}
