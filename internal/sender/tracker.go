package sender

import (
	"sync"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// sendRecord is one outstanding transmission: the packet as sent, and the
// monotonic time it went out. A monotonic clock (time.Time from time.Now,
// never wall-clock arithmetic) immunizes the timeout scan against clock
// changes.
type sendRecord struct {
	packet *wire.DataPacket
	sentAt time.Time
}

// OutstandingTracker replaces ad-hoc map access from four goroutines with a
// single lock guarding the outstanding map; every mutation goes through one
// of RecordSend, MarkAckedUpTo, or ScanTimeouts.
type OutstandingTracker struct {
	mu      sync.Mutex
	records map[uint32]sendRecord
}

// NewOutstandingTracker creates an empty tracker.
func NewOutstandingTracker() *OutstandingTracker {
	return &OutstandingTracker{records: make(map[uint32]sendRecord)}
}

// RecordSend marks seq as outstanding as of sentAt. A repeated call for the
// same sequence number (a retransmit) overwrites the previous send time.
func (t *OutstandingTracker) RecordSend(p *wire.DataPacket, sentAt time.Time) {
	t.mu.Lock()
	t.records[p.SequenceNumber] = sendRecord{packet: p, sentAt: sentAt}
	t.mu.Unlock()
}

// MarkAckedUpTo removes every sequence number in (from, to] from the
// outstanding map: an ack for N implicitly acknowledges everything below it
// too.
func (t *OutstandingTracker) MarkAckedUpTo(from, to uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for seq := from + 1; seq <= to; seq++ {
		delete(t.records, seq)
	}
}

// ScanTimeouts removes and returns every packet whose most recent send is
// at least timeout old as of now. Removing before the caller re-enqueues
// ensures SocketWriter records a fresh send time on retransmit.
func (t *OutstandingTracker) ScanTimeouts(now time.Time, timeout time.Duration) []*wire.DataPacket {
	t.mu.Lock()
	defer t.mu.Unlock()

	var timedOut []*wire.DataPacket
	for seq, rec := range t.records {
		if now.Sub(rec.sentAt) >= timeout {
			timedOut = append(timedOut, rec.packet)
			delete(t.records, seq)
		}
	}
	return timedOut
}

// IsEmpty reports whether anything is currently outstanding.
func (t *OutstandingTracker) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records) == 0
}

// Len reports the outstanding count, for stats reporting.
func (t *OutstandingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
