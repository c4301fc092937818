package engine

import "testing"

func TestLRUReplacer_VictimOrder(t *testing.T) {
	r := newLRUReplacer(4)
	r.unpin(1)
	r.unpin(2)
	r.unpin(3)

	if r.size() != 3 {
		t.Fatalf("size = %d, want 3", r.size())
	}

	id, ok := r.victim()
	if !ok || id != 1 {
		t.Fatalf("victim = (%d, %v), want (1, true)", id, ok)
	}

	r.pin(2)
	id, ok = r.victim()
	if !ok || id != 3 {
		t.Fatalf("victim = (%d, %v), want (3, true)", id, ok)
	}

	if _, ok := r.victim(); ok {
		t.Fatalf("expected no victim once replacer is empty")
	}
}

func TestLRUReplacer_PinIsIdempotent(t *testing.T) {
	r := newLRUReplacer(4)
	r.unpin(5)
	r.pin(5)
	r.pin(5) // must not panic or corrupt state

	if r.contains(5) {
		t.Fatalf("page 5 should no longer be a candidate")
	}
	if r.size() != 0 {
		t.Fatalf("size = %d, want 0", r.size())
	}
}

func TestLRUReplacer_UnpinAtCapacityIsNoop(t *testing.T) {
	r := newLRUReplacer(2)
	r.unpin(1)
	r.unpin(2)
	r.unpin(3) // full: no-op

	if r.size() != 2 {
		t.Fatalf("size = %d, want 2", r.size())
	}
	if r.contains(3) {
		t.Fatalf("page 3 should not have been admitted")
	}
}
