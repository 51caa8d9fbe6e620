package measure

import "testing"

func TestAveragedAddSampleAndGet(t *testing.T) {
	a := NewAveraged()
	if a.Has(0) {
		t.Fatalf("expected idx 0 absent before any sample")
	}
	a.AddSample(1.0, 0)
	a.AddSample(2.0, 0)
	a.AddSample(5.0, 3)

	if !a.Has(0) || !a.Has(3) {
		t.Fatalf("expected idx 0 and 3 present")
	}
	if a.Has(1) {
		t.Fatalf("expected idx 1 absent")
	}

	p, ok := a.Get(0)
	if !ok {
		t.Fatalf("expected population for idx 0")
	}
	if p.Size() != 2 {
		t.Fatalf("want size 2, got %d", p.Size())
	}

	if _, ok := a.Get(99); ok {
		t.Fatalf("expected Get on unknown idx to fail")
	}
}

func TestAveragedCursorAscending(t *testing.T) {
	a := NewAveraged()
	a.AddSample(1, 5)
	a.AddSample(1, 1)
	a.AddSample(1, 3)

	c := a.Cursor()
	var seen []uint32
	for !c.AtEnd() {
		seen = append(seen, c.ID())
		c.Next()
	}

	want := []uint32{1, 3, 5}
	if len(seen) != len(want) {
		t.Fatalf("want %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("want %v, got %v", want, seen)
		}
	}
}

func TestAveragedCursorIndependentOfMutation(t *testing.T) {
	a := NewAveraged()
	a.AddSample(1, 0)
	c := a.Cursor()
	a.AddSample(1, 1) // mutate after taking the cursor

	count := 0
	for !c.AtEnd() {
		count++
		c.Next()
	}
	if count != 1 {
		t.Fatalf("want cursor snapshot of 1 index, got %d", count)
	}
}
