package receiver

import "container/heap"

// outOfOrderSet holds sequence numbers received ahead of HCP: valid
// checksum, but not yet contiguous. A min-heap keeps the smallest element
// available in O(log n) for HCP-coalescing; a parallel membership map gives
// O(1) duplicate detection.
type outOfOrderSet struct {
	heap    uint32Heap
	members map[uint32]struct{}
}

func newOutOfOrderSet() *outOfOrderSet {
	return &outOfOrderSet{members: make(map[uint32]struct{})}
}

// Contains reports whether seq is already held.
func (s *outOfOrderSet) Contains(seq uint32) bool {
	_, ok := s.members[seq]
	return ok
}

// Insert adds seq. Inserting an already-present sequence number is a no-op.
func (s *outOfOrderSet) Insert(seq uint32) {
	if s.Contains(seq) {
		return
	}
	s.members[seq] = struct{}{}
	heap.Push(&s.heap, seq)
}

// PeekMin returns the smallest held sequence number and whether the set is
// non-empty.
func (s *outOfOrderSet) PeekMin() (uint32, bool) {
	if len(s.heap) == 0 {
		return 0, false
	}
	return s.heap[0], true
}

// RemoveMin removes and returns the smallest held sequence number.
func (s *outOfOrderSet) RemoveMin() uint32 {
	seq := heap.Pop(&s.heap).(uint32)
	delete(s.members, seq)
	return seq
}

// Len reports how many sequence numbers are currently held.
func (s *outOfOrderSet) Len() int {
	return len(s.members)
}

type uint32Heap []uint32

func (h uint32Heap) Len() int            { return len(h) }
func (h uint32Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h uint32Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uint32Heap) Push(x interface{}) { *h = append(*h, x.(uint32)) }
func (h *uint32Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
