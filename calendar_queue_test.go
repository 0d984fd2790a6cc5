package pneumoresistance

import "testing"

func TestCalendarQueueOrderingWithTies(t *testing.T) {
	q, err := NewCalendarQueue(0, 1.0, 1e-4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e1 := hostKey(EventCelebrateBirthday, 1)
	e2 := hostKey(EventCelebrateBirthday, 2)
	e3 := hostKey(EventCelebrateBirthday, 3)
	e4 := hostKey(EventCelebrateBirthday, 4)

	for _, in := range []struct {
		k EventKey
		t float64
	}{{e1, 5.0}, {e2, 5.0}, {e3, 3.0}, {e4, 5.0}} {
		if err := q.Add(in.k, in.t); err != nil {
			t.Fatalf("add %v: %v", in.k, err)
		}
	}

	want := []EventKey{e3, e1, e2, e4}
	for i, w := range want {
		k, _, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if k != w {
			t.Fatalf("pop %d: got %v, want %v", i, k, w)
		}
	}
	if _, _, ok := q.Peek(); ok {
		t.Fatal("expected empty queue after four pops")
	}
}

func TestCalendarQueueAddRemoveIsNoOp(t *testing.T) {
	q, err := NewCalendarQueue(0, 1.0, 1e-4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k := hostKey(EventClearColonization, 10)
	if err := q.Add(k, 2.0); err != nil {
		t.Fatal(err)
	}
	if err := q.Remove(k); err != nil {
		t.Fatal(err)
	}
	if q.Size() != 0 {
		t.Fatalf("expected empty queue, got size %d", q.Size())
	}
	if q.Contains(k) {
		t.Fatal("key should not be present after remove")
	}
}

func TestCalendarQueueUpdateMovesEntry(t *testing.T) {
	q, err := NewCalendarQueue(0, 1.0, 1e-4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := hostKey(EventStepTreatment, 1)
	b := hostKey(EventStepTreatment, 2)
	_ = q.Add(a, 1.0)
	_ = q.Add(b, 2.0)
	if err := q.Update(a, 5.0); err != nil {
		t.Fatal(err)
	}
	k, tm, ok := q.Peek()
	if !ok || k != b || tm != 2.0 {
		t.Fatalf("expected b at t=2.0 to be first, got %v at %f", k, tm)
	}
}

func TestCalendarQueueRescalePreservesMonotonePops(t *testing.T) {
	q, err := NewCalendarQueue(0, 1.0, 1e-4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q.nEventsRescale = 1000
	seedRNG(123)

	seen := make(map[EventKey]bool)
	const n = 5000
	for i := 0; i < n; i++ {
		k := EventKey{Kind: EventCelebrateBirthday, HostIndex: i}
		when := uniformFloat() * 40.0
		if err := q.Add(k, when); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// Each of the first n pops is followed by one add, as in a running
	// simulation: Add checks for a rescale once every nEventsRescale pops.
	added := n
	last := -1.0
	popped := 0
	for {
		k, tm, ok := q.Pop()
		if !ok {
			break
		}
		if tm < last {
			t.Fatalf("pop time went backward: %f after %f", tm, last)
		}
		last = tm
		if seen[k] {
			t.Fatalf("key %v popped twice", k)
		}
		seen[k] = true
		popped++
		if added < 2*n {
			nk := EventKey{Kind: EventCelebrateBirthday, HostIndex: added}
			if err := q.Add(nk, tm+uniformFloat()*40.0); err != nil {
				t.Fatalf("add after pop: %v", err)
			}
			added++
		}
	}
	if popped != 2*n {
		t.Fatalf("expected %d pops, got %d", 2*n, popped)
	}
	if q.bucketWidth == 1.0 {
		t.Fatal("expected at least one rescale to change the bucket width")
	}
	if err := q.Verify(); err != nil {
		t.Fatalf("verify after drain: %v", err)
	}
}
