// Package udp implements the reference CCI transport over net.UDPConn: a
// pure-Go reliable-datagram transport providing RO, RU and UU connection
// semantics, RMA, and the full event/progress model described in spec.md.
// It plays the role the original C implementation gave to the "sock" CTP
// plugin (original_source/src/plugins/core/sock).
package udp

import "time"

// Config tunes the engine's timing and pacing constants. Endpoints start
// from DefaultConfig; deviceConfig then overrides MTU from the device's
// "mtu" param, and no other field is read from device Params.
type Config struct {
	// ResendBaseInterval is the first retransmission backoff, doubled on
	// each subsequent resend up to ResendMaxInterval, per spec.md §4.2's
	// retransmission policy.
	ResendBaseInterval time.Duration
	ResendMaxInterval  time.Duration

	// RMAFragmentsInFlight caps how many unacknowledged fragments one RMA
	// operation may have outstanding at once. The cap is per operation:
	// several operations on one connection each get their own allowance.
	RMAFragmentsInFlight int

	// RecvBufCount caps the RX buffer leases (events not yet returned) an
	// endpoint holds at once. SendBufCount is stored and reported through
	// ENDPT_SEND_BUF_COUNT but bounds nothing: each reliable connection's
	// send window is a fixed 32 in-flight descriptors.
	RecvBufCount int
	SendBufCount int

	// MTU bounds a single packet's payload. RMA transfers fragment to
	// min(MaxSendSize, MTU) less the 24-byte fragment preamble; a Send
	// larger than the connection's max send size is rejected, not split.
	MTU int

	// AckDelay is the maximum time a received MSG's ACK may be deferred
	// waiting for a piggyback opportunity.
	AckDelay time.Duration

	// ConnectTimeout is used when a Connect call passes a zero timeout.
	ConnectTimeout time.Duration

	// SendTimeout is the endpoint-wide default absent a per-connection
	// override (ENDPT_SEND_TIMEOUT / CONN_SEND_TIMEOUT).
	SendTimeout time.Duration

	// HoldQueueCap bounds the RO per-connection out-of-order buffer.
	// Exceeding it is fatal to the connection, per spec.md §4.2.
	HoldQueueCap int
}

// DefaultConfig returns the engine's baseline tuning, matching spec.md's
// suggested defaults (1ms resend base, 1ms ack delay, 10s connect timeout).
func DefaultConfig() Config {
	return Config{
		ResendBaseInterval:    time.Millisecond,
		ResendMaxInterval:     2 * time.Second,
		RMAFragmentsInFlight:  8,
		RecvBufCount:          64,
		SendBufCount:          64,
		MTU:                   1400,
		AckDelay:              time.Millisecond,
		ConnectTimeout:        10 * time.Second,
		SendTimeout:           0,
		HoldQueueCap:          256,
	}
}

func resendBackoff(cfg Config, resends int) time.Duration {
	d := cfg.ResendBaseInterval
	for i := 0; i < resends && d < cfg.ResendMaxInterval; i++ {
		d *= 2
	}
	if d > cfg.ResendMaxInterval {
		d = cfg.ResendMaxInterval
	}
	return d
}
