// Package wire implements the bit-exact packet header codec shared by every
// CCI transport, per spec.md §3's Packet type and §6.3. Every multi-byte
// field is big-endian; the top bit of the type byte is reserved for future
// wire-format versioning and must round-trip as zero today.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PacketType is the 4-bit packet discriminator packed into the low nibble
// of the header's type byte.
type PacketType uint8

const (
	TypeRequest PacketType = iota
	TypeReply
	TypeAckHandshake
	TypeReject
	TypeMsg
	TypeAck
	TypeNackRNR
	TypeRMAWrite
	TypeRMAReadReq
	TypeRMAReadReply
	TypeKeepalive
)

func (t PacketType) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeReply:
		return "REPLY"
	case TypeAckHandshake:
		return "ACK_HANDSHAKE"
	case TypeReject:
		return "REJECT"
	case TypeMsg:
		return "MSG"
	case TypeAck:
		return "ACK"
	case TypeNackRNR:
		return "NACK_RNR"
	case TypeRMAWrite:
		return "RMA_WRITE"
	case TypeRMAReadReq:
		return "RMA_READ_REQ"
	case TypeRMAReadReply:
		return "RMA_READ_REPLY"
	case TypeKeepalive:
		return "KEEPALIVE"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

const (
	typeNibbleMask = 0x0f
	attrShift      = 4
	attrMask       = 0x07
	reservedBit    = 0x80
)

// HeaderLen is the fixed on-wire size of a Header, excluding payload.
const HeaderLen = 23

// MaxPayloadLen is the largest payload length representable in the
// header's 2-byte length field.
const MaxPayloadLen = 0xffff

// Header is the fixed packet header prefixing every CCI wire packet.
// Attribute holds the connection's reliability/ordering class (0-7); only
// values 0-4 are meaningful today (RO, RU, UU, UU_MC_TX, UU_MC_RX).
type Header struct {
	Type        PacketType
	Attribute   uint8
	SrcConnID   uint32
	DstConnID   uint32
	Seq         uint32
	AckCum      uint32
	AckBitmap   uint32
	PayloadLen  uint16
}

// MarshalBinary encodes the header into HeaderLen bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	if h.Type&^typeNibbleMask != 0 {
		return nil, fmt.Errorf("wire: packet type %d does not fit in 4 bits", h.Type)
	}
	if h.Attribute&^attrMask != 0 {
		return nil, fmt.Errorf("wire: attribute %d does not fit in 3 bits", h.Attribute)
	}
	buf := make([]byte, HeaderLen)
	buf[0] = byte(h.Type&typeNibbleMask) | (h.Attribute&attrMask)<<attrShift
	binary.BigEndian.PutUint32(buf[1:5], h.SrcConnID)
	binary.BigEndian.PutUint32(buf[5:9], h.DstConnID)
	binary.BigEndian.PutUint32(buf[9:13], h.Seq)
	binary.BigEndian.PutUint32(buf[13:17], h.AckCum)
	binary.BigEndian.PutUint32(buf[17:21], h.AckBitmap)
	binary.BigEndian.PutUint16(buf[21:23], h.PayloadLen)
	return buf, nil
}

// UnmarshalBinary decodes a HeaderLen-byte buffer into h. A set reserved
// bit (top bit of the type byte) is rejected rather than silently ignored,
// since it signals a wire version this build does not understand.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLen {
		return fmt.Errorf("wire: short header: %d bytes, want %d", len(data), HeaderLen)
	}
	if data[0]&reservedBit != 0 {
		return fmt.Errorf("wire: reserved type bit set, unknown wire version")
	}
	h.Type = PacketType(data[0] & typeNibbleMask)
	h.Attribute = (data[0] >> attrShift) & attrMask
	h.SrcConnID = binary.BigEndian.Uint32(data[1:5])
	h.DstConnID = binary.BigEndian.Uint32(data[5:9])
	h.Seq = binary.BigEndian.Uint32(data[9:13])
	h.AckCum = binary.BigEndian.Uint32(data[13:17])
	h.AckBitmap = binary.BigEndian.Uint32(data[17:21])
	h.PayloadLen = binary.BigEndian.Uint16(data[21:23])
	return nil
}

// EncodePacket renders a header plus payload as a single wire buffer.
func EncodePacket(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("wire: payload length %d exceeds %d", len(payload), MaxPayloadLen)
	}
	h.PayloadLen = uint16(len(payload))
	hdr, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(hdr, payload...), nil
}

// DecodePacket splits a wire buffer into its header and payload.
func DecodePacket(data []byte) (Header, []byte, error) {
	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return Header{}, nil, err
	}
	rest := data[HeaderLen:]
	if int(h.PayloadLen) > len(rest) {
		return Header{}, nil, fmt.Errorf("wire: truncated payload: have %d, want %d", len(rest), h.PayloadLen)
	}
	return h, rest[:h.PayloadLen], nil
}
