package sender

import (
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

func newTestSocketReader(t *testing.T) (*SocketReader, *nettest.FakeConn, *PendingQueue, *Archive, *OutstandingTracker, *mailbox) {
	t.Helper()
	local, remote := nettest.NewFakePair("local", "remote")
	pending := NewPendingQueue()
	archive := NewArchive()
	outstanding := NewOutstandingTracker()
	shutdown := newMailbox()

	r := NewSocketReader(local, pending, archive, outstanding, shutdown, 2, 1500, 20*time.Millisecond, discardLogger())
	t.Cleanup(func() { local.Close(); remote.Close() })
	return r, remote, pending, archive, outstanding, shutdown
}

func sendAck(t *testing.T, conn *nettest.FakeConn, dest nettest.FakeAddr, target wire.AckTarget) {
	t.Helper()
	ack := wire.NewAckPacket(target)
	ack.Sign()
	data, err := ack.Encode()
	if err != nil {
		t.Fatalf("encoding ack: %v", err)
	}
	if _, err := conn.WriteTo(data, dest); err != nil {
		t.Fatalf("writing ack: %v", err)
	}
}

func TestSocketReader_AdvancesHCA(t *testing.T) {
	r, remote, _, _, outstanding, _ := newTestSocketReader(t)

	p := wire.NewDataPacket(1, []byte("hello"))
	p.Sign()
	outstanding.RecordSend(p, time.Now())

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	sendAck(t, remote, "local", wire.Cumulative(1))

	deadline := time.After(time.Second)
	for {
		if r.HCA() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("HCA never advanced to 1")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !outstanding.IsEmpty() {
		t.Errorf("expected outstanding to be drained after cumulative ack")
	}

	r.shutdown.Signal()
	<-done
}

func TestSocketReader_FastRetransmitOnDuplicateAcks(t *testing.T) {
	r, remote, pending, archive, outstanding, _ := newTestSocketReader(t)

	p2 := wire.NewDataPacket(2, []byte("retry-me"))
	p2.Sign()
	archive.Store(p2)
	outstanding.RecordSend(p2, time.Now())

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	// HCA starts at 0, so the first ack for 1 advances it (not a duplicate).
	// The second ack for 1 is the first duplicate; with threshold 2, the
	// third ack for 1 is what reaches dupAcks==2 and fires the
	// fast-retransmit of sequence 2.
	sendAck(t, remote, "local", wire.Cumulative(1))
	sendAck(t, remote, "local", wire.Cumulative(1))
	sendAck(t, remote, "local", wire.Cumulative(1))

	deadline := time.After(time.Second)
	for {
		if pending.Len() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("fast-retransmit never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}

	it := pending.Get()
	if it.quit || it.packet.SequenceNumber != 2 {
		t.Errorf("expected fast-retransmit of sequence 2, got %+v", it)
	}

	r.shutdown.Signal()
	<-done
}

func TestSocketReader_EOFAckStopsAndSignalsMailbox(t *testing.T) {
	r, remote, pending, _, _, shutdown := newTestSocketReader(t)

	var eofAcked bool
	r.SetOnEOFAcked(func() { eofAcked = true })

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	sendAck(t, remote, "local", wire.EndOfStream())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SocketReader did not stop on end-of-stream ack")
	}

	if !eofAcked {
		t.Error("expected onEOFAcked callback to fire")
	}
	if !shutdown.Check() {
		t.Error("expected shutdown mailbox to be signaled on end-of-stream ack")
	}
	it := pending.Get()
	if !it.quit {
		t.Error("expected quit sentinel pushed to pending queue")
	}
}
