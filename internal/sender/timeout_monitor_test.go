package sender

import (
	"testing"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

func TestTimeoutMonitor_RetransmitsOnTimeout(t *testing.T) {
	pending := NewPendingQueue()
	outstanding := NewOutstandingTracker()
	shutdown := newMailbox()

	p := wire.NewDataPacket(1, []byte("x"))
	p.Sign()
	outstanding.RecordSend(p, time.Now().Add(-time.Second))

	m := NewTimeoutMonitor(pending, outstanding, shutdown, 10*time.Millisecond, 50*time.Millisecond, 3, discardLogger())
	done := make(chan struct{})
	go func() { m.Run(); close(done) }()

	deadline := time.After(time.Second)
	for pending.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed-out packet was never retransmitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	it := pending.Get()
	if it.quit || it.packet.SequenceNumber != 1 {
		t.Errorf("expected retransmit of sequence 1, got %+v", it)
	}

	shutdown.Signal()
	<-done
}

func TestTimeoutMonitor_DeclaresIdleShutdown(t *testing.T) {
	pending := NewPendingQueue()
	outstanding := NewOutstandingTracker()
	shutdown := newMailbox()

	m := NewTimeoutMonitor(pending, outstanding, shutdown, 10*time.Millisecond, 50*time.Millisecond, 2, discardLogger())
	done := make(chan struct{})
	go func() { m.Run(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not declare idle shutdown")
	}

	if !shutdown.Check() {
		t.Error("expected shutdown mailbox to be signaled")
	}
	it := pending.Get()
	if !it.quit {
		t.Error("expected quit sentinel pushed to pending queue")
	}
}

func TestTimeoutMonitor_StopsOnShutdownSignal(t *testing.T) {
	pending := NewPendingQueue()
	outstanding := NewOutstandingTracker()
	shutdown := newMailbox()

	m := NewTimeoutMonitor(pending, outstanding, shutdown, 10*time.Millisecond, time.Minute, 100, discardLogger())
	done := make(chan struct{})
	go func() { m.Run(); close(done) }()

	shutdown.Signal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on external shutdown signal")
	}
}
