package pneumoresistance

import "github.com/pkg/errors"

// heapEntry is one (time, insertion-order, key) triple stored in the
// binary heap. The pair (t, insertSeq) is the ordering key; key is the
// payload.
type heapEntry struct {
	t         float64
	insertSeq int64
	key       EventKey
}

func (a heapEntry) less(b heapEntry) bool {
	if a.t != b.t {
		return a.t < b.t
	}
	return a.insertSeq < b.insertSeq
}

func heapLeft(i int) int   { return 2*(i+1) - 1 }
func heapRight(i int) int  { return 2 * (i + 1) }
func heapParent(i int) int { return (i+1)/2 - 1 }

// HeapQueue is an indexed binary heap implementation of EventQueue: an
// alternate to CalendarQueue with the same observable contract (§4.2
// allows either structure). A key->index map gives O(1) Contains and
// O(log n) Remove by arbitrary key instead of only by root.
type HeapQueue struct {
	heap          []heapEntry
	index         map[EventKey]int
	insertCounter int64
	cursorTime    float64
}

// NewHeapQueue constructs an empty heap queue.
func NewHeapQueue(tMin float64) *HeapQueue {
	return &HeapQueue{
		index:      make(map[EventKey]int),
		cursorTime: tMin,
	}
}

func (q *HeapQueue) Size() int        { return len(q.heap) }
func (q *HeapQueue) Time() float64    { return q.cursorTime }
func (q *HeapQueue) Contains(key EventKey) bool {
	_, ok := q.index[key]
	return ok
}

// TimeOf reports the currently scheduled time for key without removing
// it.
func (q *HeapQueue) TimeOf(key EventKey) (float64, bool) {
	loc, ok := q.index[key]
	if !ok {
		return 0, false
	}
	return q.heap[loc].t, true
}

func (q *HeapQueue) Add(key EventKey, t float64) error {
	if _, present := q.index[key]; present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyExistsError, key)
	}
	q.insertCounter++
	loc := len(q.heap)
	q.index[key] = loc
	q.heap = append(q.heap, heapEntry{t: t, insertSeq: q.insertCounter, key: key})
	q.heapifyUp(loc)
	return nil
}

func (q *HeapQueue) AddOrUpdate(key EventKey, t float64) {
	if q.Contains(key) {
		_ = q.Update(key, t)
	} else {
		_ = q.Add(key, t)
	}
}

func (q *HeapQueue) Update(key EventKey, t float64) error {
	loc, present := q.index[key]
	if !present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyNotFoundError, key)
	}
	q.insertCounter++
	q.heap[loc] = heapEntry{t: t, insertSeq: q.insertCounter, key: key}
	if !q.heapifyDown(loc) {
		q.heapifyUp(loc)
	}
	return nil
}

func (q *HeapQueue) Remove(key EventKey) error {
	loc, present := q.index[key]
	if !present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyNotFoundError, key)
	}
	q.removeAtIndex(loc)
	return nil
}

func (q *HeapQueue) RemoveIfPresent(key EventKey) {
	if q.Contains(key) {
		_ = q.Remove(key)
	}
}

func (q *HeapQueue) Peek() (EventKey, float64, bool) {
	if len(q.heap) == 0 {
		return EventKey{}, 0, false
	}
	e := q.heap[0]
	return e.key, e.t, true
}

func (q *HeapQueue) Pop() (EventKey, float64, bool) {
	if len(q.heap) == 0 {
		return EventKey{}, 0, false
	}
	e := q.heap[0]
	q.removeAtIndex(0)
	q.cursorTime = e.t
	return e.key, e.t, true
}

func (q *HeapQueue) removeAtIndex(loc int) {
	entry := q.heap[loc]
	lastLoc := len(q.heap) - 1
	if loc < lastLoc {
		q.swap(loc, lastLoc)
		delete(q.index, entry.key)
		q.heap = q.heap[:lastLoc]
		if !q.heapifyDown(loc) {
			q.heapifyUp(loc)
		}
	} else {
		delete(q.index, entry.key)
		q.heap = q.heap[:lastLoc]
	}
}

func (q *HeapQueue) swap(i1, i2 int) {
	e1, e2 := q.heap[i1], q.heap[i2]
	q.heap[i1] = e2
	q.index[e2.key] = i1
	q.heap[i2] = e1
	q.index[e1.key] = i2
}

func (q *HeapQueue) heapifyDown(loc int) bool {
	size := len(q.heap)
	swapped := false
	left := heapLeft(loc)
	if left < size {
		right := heapRight(loc)
		if q.heap[left].less(q.heap[loc]) {
			if right < size && q.heap[left].less(q.heap[right]) {
				q.swap(loc, left)
				q.heapifyDown(left)
				swapped = true
			} else if right < size {
				q.swap(loc, right)
				q.heapifyDown(right)
				swapped = true
			} else {
				q.swap(loc, left)
				q.heapifyDown(left)
				swapped = true
			}
		} else if right < size && q.heap[right].less(q.heap[loc]) {
			q.swap(loc, right)
			q.heapifyDown(right)
			swapped = true
		}
	}
	return swapped
}

func (q *HeapQueue) heapifyUp(loc int) bool {
	parent := heapParent(loc)
	if parent >= 0 && q.heap[loc].less(q.heap[parent]) {
		q.swap(parent, loc)
		q.heapifyUp(parent)
		return true
	}
	return false
}

func (q *HeapQueue) Verify() error {
	size := len(q.heap)
	for i := range q.heap {
		if left := heapLeft(i); left < size {
			if q.heap[left].less(q.heap[i]) {
				return errors.Wrapf(ErrInvariantViolation, "heap queue: parent %d violates heap order against left child %d", i, left)
			}
		}
		if right := heapRight(i); right < size {
			if q.heap[right].less(q.heap[i]) {
				return errors.Wrapf(ErrInvariantViolation, "heap queue: parent %d violates heap order against right child %d", i, right)
			}
		}
		if loc, ok := q.index[q.heap[i].key]; !ok || loc != i {
			return errors.Wrapf(ErrInvariantViolation, "heap queue: index for key %v does not match position %d", q.heap[i].key, i)
		}
	}
	return nil
}
