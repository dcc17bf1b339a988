package udp

import (
	"net"
	"time"
)

// packetConn is the minimal surface the engine needs from a UDP socket.
// Tests substitute a lossy double (lossyConn); production uses *net.UDPConn
// directly, which already satisfies this interface.
type packetConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
	SetReadDeadline(t time.Time) error
}
