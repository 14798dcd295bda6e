package sender

import (
	"sync"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// Archive is the retransmission source of truth: every packet the sender
// has ever produced, keyed by sequence number. Written only by InputReader;
// read by SocketReader for fast-retransmit lookups. Because sequence
// numbers are produced monotonically and enqueued onto the pending queue
// only after the archive insert, a lookup of sequence N here is safe once
// any ack mentioning N has been observed.
type Archive struct {
	mu      sync.RWMutex
	packets map[uint32]*wire.DataPacket
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{packets: make(map[uint32]*wire.DataPacket)}
}

// Store records a packet under its sequence number.
func (a *Archive) Store(p *wire.DataPacket) {
	a.mu.Lock()
	a.packets[p.SequenceNumber] = p
	a.mu.Unlock()
}

// Load retrieves a packet by sequence number.
func (a *Archive) Load(seq uint32) (*wire.DataPacket, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.packets[seq]
	return p, ok
}
