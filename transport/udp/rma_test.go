package udp

import (
	"hash/crc32"
	"testing"
	"time"

	"github.com/rocketbitz/cci-go/transport"
)

// TestRMAWriteWithCompletion writes a buffer to a remote registration and
// verifies the data lands intact (checked via CRC32) and the piggybacked
// completion message arrives as an ordinary RECV once every fragment is
// acknowledged.
func TestRMAWriteWithCompletion(t *testing.T) {
	cfg := testConfig()
	cfg.MTU = 256 // force fragmentation of a payload larger than one MTU
	writer := newLoopbackEndpoint(t, cfg)
	target := newLoopbackEndpoint(t, cfg)

	writerConn, _ := connectPair(t, writer, target, transport.AttrRO)

	localBuf := make([]byte, 2000)
	for i := range localBuf {
		localBuf[i] = byte(i % 251)
	}
	wantCRC := crc32.ChecksumIEEE(localBuf)

	remoteBuf := make([]byte, len(localBuf))
	localRef, _, err := writer.rmaRegister(localBuf, transport.MRRead)
	if err != nil {
		t.Fatalf("rmaRegister local: %v", err)
	}
	remoteRef, remoteToken, err := target.rmaRegister(remoteBuf, transport.MRWrite)
	if err != nil {
		t.Fatalf("rmaRegister remote: %v", err)
	}

	completion := []byte("rma-done")
	err = writer.rma(transport.RMARequest{
		Conn:          writerConn,
		Local:         localRef,
		RemoteToken:   remoteToken,
		RemoteAccess:  transport.MRWrite,
		Length:        uint64(len(localBuf)),
		CompletionMsg: completion,
		Context:       "write1",
		Flags:         rmaFlagWrite,
	})
	if err != nil {
		t.Fatalf("rma write: %v", err)
	}

	// Drive target's progress too: it must process WRITE fragments and ack
	// them for the writer's op to ever finish.
	target.start()

	sendEv := pollEvent(t, writer, 3*time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventSend
	})
	if sendEv.status != transport.StatusSuccess {
		t.Fatalf("rma completion status = %v", sendEv.status)
	}
	if sendEv.ctx != "write1" {
		t.Fatalf("rma completion ctx = %v", sendEv.ctx)
	}

	gotCRC := crc32.ChecksumIEEE(remoteBuf)
	if gotCRC != wantCRC {
		t.Fatalf("remote buffer CRC mismatch: got %#x want %#x", gotCRC, wantCRC)
	}

	completionEv := pollEvent(t, target, time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventRecv
	})
	if string(completionEv.data) != string(completion) {
		t.Fatalf("completion message = %q, want %q", completionEv.data, completion)
	}

	_ = remoteRef
}

// TestRMAReadRoundTrip exercises the READ direction: the reader pulls the
// target's buffer into its own registration.
func TestRMAReadRoundTrip(t *testing.T) {
	cfg := testConfig()
	reader := newLoopbackEndpoint(t, cfg)
	target := newLoopbackEndpoint(t, cfg)

	readerConn, _ := connectPair(t, reader, target, transport.AttrRO)

	remoteBuf := []byte("remote source data for an RMA read")
	localBuf := make([]byte, len(remoteBuf))

	localRef, _, err := reader.rmaRegister(localBuf, transport.MRWrite)
	if err != nil {
		t.Fatalf("rmaRegister local: %v", err)
	}
	_, remoteToken, err := target.rmaRegister(remoteBuf, transport.MRRead)
	if err != nil {
		t.Fatalf("rmaRegister remote: %v", err)
	}

	target.start()

	err = reader.rma(transport.RMARequest{
		Conn:        readerConn,
		Local:       localRef,
		RemoteToken: remoteToken,
		Length:      uint64(len(remoteBuf)),
		Context:     "read1",
		Flags:       rmaFlagRead,
	})
	if err != nil {
		t.Fatalf("rma read: %v", err)
	}

	sendEv := pollEvent(t, reader, 3*time.Second, func(ev *udpEvent) bool {
		return ev.kind == transport.EventSend
	})
	if sendEv.status != transport.StatusSuccess {
		t.Fatalf("rma read completion status = %v", sendEv.status)
	}
	if string(localBuf) != string(remoteBuf) {
		t.Fatalf("local buffer = %q, want %q", localBuf, remoteBuf)
	}
}
