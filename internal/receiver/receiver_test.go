package receiver

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/nettest"
	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func sendData(t *testing.T, conn *nettest.FakeConn, dest nettest.FakeAddr, seq uint32, payload []byte, eof bool) {
	t.Helper()
	var p *wire.DataPacket
	if eof {
		p = wire.NewEOFPacket(seq)
	} else {
		p = wire.NewDataPacket(seq, payload)
	}
	p.Sign()
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("encoding data packet: %v", err)
	}
	if _, err := conn.WriteTo(data, dest); err != nil {
		t.Fatalf("writing data packet: %v", err)
	}
}

func TestReceiver_InOrderDeliveryAndHandshake(t *testing.T) {
	recvSide, sendSide := nettest.NewFakePair("recv", "send")
	var out bytes.Buffer

	r := New(recvSide, &out, 2*time.Second, 3, 1500, discardLogger())

	done := make(chan struct{})
	var n int64
	var runErr error
	go func() { n, runErr = r.Run(); close(done) }()

	sendData(t, sendSide, "recv", 1, []byte("hello "), false)
	sendData(t, sendSide, "recv", 2, []byte("world"), false)
	sendData(t, sendSide, "recv", 3, nil, true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not finish")
	}

	if runErr != nil {
		t.Fatalf("Run returned error: %v", runErr)
	}
	if out.String() != "hello world" {
		t.Errorf("expected reassembled output %q, got %q", "hello world", out.String())
	}
	if n != int64(len("hello world")) {
		t.Errorf("expected %d bytes written, got %d", len("hello world"), n)
	}
}

func TestReceiver_OutOfOrderCoalescesAndAcksCurrentHCP(t *testing.T) {
	recvSide, sendSide := nettest.NewFakePair("recv", "send")
	var out bytes.Buffer

	r := New(recvSide, &out, 2*time.Second, 2, 1500, discardLogger())

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	// Send out of order: 2, 1, 3 (eof).
	sendData(t, sendSide, "recv", 2, []byte("B"), false)

	buf := make([]byte, 1500)
	sendSide.SetReadDeadline(time.Now().Add(time.Second))
	sn, _, err := sendSide.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected an ack after out-of-order packet 2: %v", err)
	}
	ack, err := wire.DecodeAckPacket(buf[:sn])
	if err != nil || !ack.Verify() {
		t.Fatalf("invalid ack for out-of-order packet: %v", err)
	}
	if ack.Acknowledged.IsEOF() || ack.Acknowledged.N() != 0 {
		t.Errorf("expected ack for HCP 0 while packet 1 is missing, got %+v", ack.Acknowledged)
	}

	sendData(t, sendSide, "recv", 1, []byte("A"), false)
	sendData(t, sendSide, "recv", 3, nil, true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not finish")
	}

	if out.String() != "AB" {
		t.Errorf("expected reassembled output %q, got %q", "AB", out.String())
	}
}

func TestReceiver_DropsInvalidChecksum(t *testing.T) {
	recvSide, sendSide := nettest.NewFakePair("recv", "send")
	var out bytes.Buffer

	r := New(recvSide, &out, 500*time.Millisecond, 1, 1500, discardLogger())

	done := make(chan struct{})
	var runErr error
	go func() { _, runErr = r.Run(); close(done) }()

	bad := wire.NewDataPacket(1, []byte("tampered"))
	bad.Sign()
	bad.Data = "AAAA" // corrupt payload after signing so checksum no longer matches
	data, _ := bad.Encode()
	sendSide.WriteTo(data, nettest.FakeAddr("recv"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not time out on all-invalid input")
	}

	if runErr != ErrReceiveTimeout {
		t.Errorf("expected ErrReceiveTimeout, got %v", runErr)
	}
}
