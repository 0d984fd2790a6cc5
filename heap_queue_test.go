package pneumoresistance

import "testing"

func TestHeapQueueOrderingWithTies(t *testing.T) {
	q := NewHeapQueue(0)
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
}

func TestHeapQueueUpdateAndRemove(t *testing.T) {
	q := NewHeapQueue(0)
	a := hostKey(EventStepTreatment, 1)
	b := hostKey(EventStepTreatment, 2)
	c := hostKey(EventStepTreatment, 3)
	_ = q.Add(a, 1.0)
	_ = q.Add(b, 2.0)
	_ = q.Add(c, 3.0)

	if err := q.Update(a, 10.0); err != nil {
		t.Fatal(err)
	}
	k, _, ok := q.Peek()
	if !ok || k != b {
		t.Fatalf("expected b to be first after update, got %v", k)
	}

	if err := q.Remove(b); err != nil {
		t.Fatal(err)
	}
	if q.Contains(b) {
		t.Fatal("b should be gone after remove")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
	if err := q.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestHeapQueueBulkMonotonePop(t *testing.T) {
	q := NewHeapQueue(0)
	seedRNG(99)
	seen := make(map[EventKey]bool)
	const n = 3000
	for i := 0; i < n; i++ {
		k := EventKey{Kind: EventCelebrateBirthday, HostIndex: i}
		if err := q.Add(k, uniformFloat()*100.0); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := q.Verify(); err != nil {
		t.Fatalf("verify before drain: %v", err)
	}
	last := -1.0
	count := 0
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
		count++
	}
	if count != n {
		t.Fatalf("expected %d pops, got %d", n, count)
	}
}
