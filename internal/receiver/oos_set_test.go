package receiver

import "testing"

func TestOutOfOrderSet_InsertDedupeAndOrder(t *testing.T) {
	s := newOutOfOrderSet()

	s.Insert(5)
	s.Insert(3)
	s.Insert(3) // duplicate insert is a no-op
	s.Insert(7)

	if s.Len() != 3 {
		t.Fatalf("expected 3 distinct members, got %d", s.Len())
	}
	if !s.Contains(5) || !s.Contains(3) || !s.Contains(7) {
		t.Fatal("expected all inserted sequence numbers to be members")
	}

	min, ok := s.PeekMin()
	if !ok || min != 3 {
		t.Fatalf("expected min 3, got %d (ok=%v)", min, ok)
	}

	if got := s.RemoveMin(); got != 3 {
		t.Fatalf("expected RemoveMin to return 3, got %d", got)
	}
	if s.Contains(3) {
		t.Error("expected 3 to be removed from membership")
	}

	min, ok = s.PeekMin()
	if !ok || min != 5 {
		t.Fatalf("expected min 5 after removal, got %d (ok=%v)", min, ok)
	}
}

func TestOutOfOrderSet_EmptyPeek(t *testing.T) {
	s := newOutOfOrderSet()
	if _, ok := s.PeekMin(); ok {
		t.Error("expected PeekMin on empty set to report not-ok")
	}
}
