package buffer

import "testing"

func TestRingKeepsMostRecent(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	got := ring.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Fatalf("unexpected entries: %v", got)
	}
	if ring.Cap() != 3 {
		t.Fatalf("expected capacity 3, got %d", ring.Cap())
	}
}

func TestRingLast(t *testing.T) {
	ring := NewRing[string](4)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")

	last := ring.Last(2)
	if len(last) != 2 || last[0] != "b" || last[1] != "c" {
		t.Fatalf("unexpected last entries: %v", last)
	}
	if all := ring.Last(10); len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}

func TestRingLastAfterWrap(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 7; i++ {
		ring.Add(i)
	}

	last := ring.Last(2)
	if len(last) != 2 || last[0] != 6 || last[1] != 7 {
		t.Fatalf("unexpected last entries: %v", last)
	}
}

func TestRingReset(t *testing.T) {
	ring := NewRing[int](2)
	ring.Add(1)
	ring.Reset()

	if ring.Len() != 0 {
		t.Fatalf("expected empty ring, got %d", ring.Len())
	}
	if ring.List() != nil {
		t.Fatalf("expected nil list after reset")
	}
}

func TestRingZeroSizeDefaultsToOne(t *testing.T) {
	ring := NewRing[int](0)
	ring.Add(1)
	ring.Add(2)

	got := ring.List()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected entries: %v", got)
	}
}
