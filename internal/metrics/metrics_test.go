package metrics

import "testing"

func TestErrorRingEvictsOldest(t *testing.T) {
	r := NewErrorRing(2)
	r.Record(ErrorEvent{Table: "a"})
	r.Record(ErrorEvent{Table: "b"})
	r.Record(ErrorEvent{Table: "c"})

	got := r.Recent()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Table != "b" || got[1].Table != "c" {
		t.Fatalf("got %+v", got)
	}
}

func TestErrorRingDefaultCapacity(t *testing.T) {
	r := NewErrorRing(0)
	if r.capacity != 50 {
		t.Fatalf("expected default capacity 50, got %d", r.capacity)
	}
}

func TestErrorRingEmpty(t *testing.T) {
	r := NewErrorRing(5)
	if got := r.Recent(); len(got) != 0 {
		t.Fatalf("expected empty ring, got %v", got)
	}
}
