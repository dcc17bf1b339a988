package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:       TypeMsg,
		Attribute:  1,
		SrcConnID:  0xdeadbeef,
		DstConnID:  0x1,
		Seq:        42,
		AckCum:     41,
		AckBitmap:  0x0000000f,
		PayloadLen: 0,
	}
	buf, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != HeaderLen {
		t.Fatalf("got %d bytes, want %d", len(buf), HeaderLen)
	}
	var got Header
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestEncodeDecodePacket(t *testing.T) {
	h := Header{Type: TypeRMAWrite, Attribute: 0, SrcConnID: 7, DstConnID: 9, Seq: 3}
	payload := []byte("hello, rma")
	buf, err := EncodePacket(h, payload)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	gotHdr, gotPayload, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if gotHdr.Type != TypeRMAWrite || gotHdr.SrcConnID != 7 || gotHdr.DstConnID != 9 {
		t.Fatalf("unexpected header: %+v", gotHdr)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}

func TestReservedBitRejected(t *testing.T) {
	h := Header{Type: TypeMsg}
	buf, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	buf[0] |= 0x80
	var got Header
	if err := got.UnmarshalBinary(buf); err == nil {
		t.Fatal("expected error for reserved bit set")
	}
}

func TestTruncatedHeaderRejected(t *testing.T) {
	var h Header
	if err := h.UnmarshalBinary(make([]byte, HeaderLen-1)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestTruncatedPayloadRejected(t *testing.T) {
	h := Header{Type: TypeMsg}
	buf, err := EncodePacket(h, []byte("abc"))
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	if _, _, err := DecodePacket(buf[:len(buf)-1]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestPacketTypeDoesNotFitRejected(t *testing.T) {
	h := Header{Type: PacketType(16)}
	if _, err := h.MarshalBinary(); err == nil {
		t.Fatal("expected error for out-of-range packet type")
	}
}
