package sender

import (
	"container/heap"
	"sync"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// item is either a data packet awaiting transmission, or the quit sentinel
// that drains SocketWriter. Modeling shutdown as a distinct item variant —
// rather than a flag squeezed onto the packet type — keeps PendingQueue
// from needing to special-case a "fake" packet.
type item struct {
	packet *wire.DataPacket
	quit   bool
}

// priority orders the heap: the quit sentinel always sorts first so a
// shutdown drains promptly instead of waiting behind queued retransmits.
func (it item) priority() uint64 {
	if it.quit {
		return 0
	}
	return uint64(it.packet.SequenceNumber)
}

type itemHeap []item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].priority() < h[j].priority() }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PendingQueue is the priority queue of packets awaiting (re)transmission:
// multi-producer (InputReader, SocketReader's fast-retransmit, TimeoutMonitor),
// single-consumer (SocketWriter). Blocking Get is implemented with a
// condition variable over the heap.
type PendingQueue struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	items    itemHeap
}

// NewPendingQueue creates an empty pending queue.
func NewPendingQueue() *PendingQueue {
	q := &PendingQueue{}
	q.notEmpty.L = &q.mu
	return q
}

// PushPacket enqueues a data packet for (re)transmission. Enqueuing the same
// sequence number more than once is expected (retransmit paths) and simply
// produces a duplicate entry in the heap; SocketWriter will send it again.
func (q *PendingQueue) PushPacket(p *wire.DataPacket) {
	q.mu.Lock()
	heap.Push(&q.items, item{packet: p})
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// PushQuit enqueues the quit sentinel.
func (q *PendingQueue) PushQuit() {
	q.mu.Lock()
	heap.Push(&q.items, item{quit: true})
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// Get blocks until an item is available, then returns the lowest-priority
// one (lowest sequence number, or the quit sentinel).
func (q *PendingQueue) Get() item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	return heap.Pop(&q.items).(item)
}

// Len reports the current queue depth, for stats reporting.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
