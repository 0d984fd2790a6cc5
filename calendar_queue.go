package pneumoresistance

import (
	"math"

	"github.com/pkg/errors"
)

// calendarQueueTolerance is the floating-point slack used when
// Verify checks that a node's time falls within its bucket's span.
const calendarQueueTolerance = 1e-10

const (
	defaultNEventsRescale = 1000000
	defaultNEventsResize  = 10000000
)

// calNode is one linked entry inside a bucket's step list.
type calNode struct {
	key        EventKey
	t          float64
	insertSeq  int64
	prev, next *calNode
}

// stepList is a bucket: a doubly linked list of nodes kept sorted by
// (t, insertSeq) so insertion/removal/update cost O(bucket size).
type stepList struct {
	first, last *calNode
	size        int
}

func (s *stepList) unlink(n *calNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.first = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.last = n.prev
	}
	n.prev, n.next = nil, nil
	s.size--
}

func (s *stepList) insert(n, prev, next *calNode) {
	if prev != nil {
		prev.next = n
	} else {
		s.first = n
	}
	if next != nil {
		next.prev = n
	} else {
		s.last = n
	}
	n.prev, n.next = prev, next
	s.size++
}

// findInsertionPoint scans backward from the tail (buckets hold very
// few live entries in practice, so a linear scan beats maintaining an
// auxiliary index) and returns the (prev, next) pair n should sit
// between.
func (s *stepList) findInsertionPoint(n *calNode) (prev, next *calNode) {
	cur := s.last
	for cur != nil {
		if cur.t < n.t || (cur.t == n.t && cur.insertSeq < n.insertSeq) {
			break
		}
		cur = cur.prev
	}
	if cur != nil {
		return cur, cur.next
	}
	return nil, s.first
}

func (s *stepList) add(n *calNode) {
	prev, next := s.findInsertionPoint(n)
	s.insert(n, prev, next)
}

func (s *stepList) findNode(key EventKey) *calNode {
	for cur := s.first; cur != nil; cur = cur.next {
		if cur.key == key {
			return cur
		}
	}
	return nil
}

func (s *stepList) pop() *calNode {
	n := s.first
	s.unlink(n)
	return n
}

func (s *stepList) peek() *calNode {
	return s.first
}

func (s *stepList) verify(tMin, tMax float64) error {
	size := 0
	for cur := s.first; cur != nil; cur = cur.next {
		size++
		if cur.t < tMin || cur.t >= tMax {
			return errors.Wrapf(ErrInvariantViolation,
				"calendar queue: node %v time %f outside bucket span [%f, %f)",
				cur.key, cur.t, tMin, tMax)
		}
		if cur.next != nil {
			inOrder := cur.next.t > cur.t || (cur.next.t == cur.t && cur.next.insertSeq > cur.insertSeq)
			if !inOrder {
				return errors.Wrapf(ErrInvariantViolation,
					"calendar queue: bucket out of order at node %v", cur.key)
			}
		}
	}
	if size != s.size {
		return errors.Wrapf(ErrInvariantViolation,
			"calendar queue: bucket size mismatch, tracked %d counted %d", s.size, size)
	}
	return nil
}

// CalendarQueue is an adaptive bucket-array priority queue keyed by
// simulation time. See stepList for per-bucket storage and the resize
// and rescale methods below for the adaptive maintenance.
type CalendarQueue struct {
	tMin           float64
	t              float64
	bucketWidth    float64
	minBucketWidth float64
	nEventsRescale int
	nEventsResize  int

	dtSum   float64
	nEvents int
	curStep int

	cal            []*stepList
	keyStep        map[EventKey]int
	keyStepOffset  int
	insertCounter  int64
	size           int
}

// NewCalendarQueue constructs a calendar queue. bucketWidth must exceed
// minBucketWidth.
func NewCalendarQueue(tMin, bucketWidth, minBucketWidth float64) (*CalendarQueue, error) {
	if bucketWidth <= minBucketWidth {
		return nil, errors.Wrap(ErrConfiguration, "calendar queue: bucket_width must exceed min_bucket_width")
	}
	return &CalendarQueue{
		tMin:           tMin,
		t:              tMin,
		bucketWidth:    bucketWidth,
		minBucketWidth: minBucketWidth,
		nEventsRescale: defaultNEventsRescale,
		nEventsResize:  defaultNEventsResize,
		keyStep:        make(map[EventKey]int),
	}, nil
}

func (q *CalendarQueue) stepOf(t float64) int {
	return int((t - q.tMin) / q.bucketWidth)
}

func (q *CalendarQueue) getStepList(step int) *stepList {
	for step >= len(q.cal) {
		q.cal = append(q.cal, nil)
	}
	if q.cal[step] == nil {
		q.cal[step] = &stepList{}
	}
	return q.cal[step]
}

func (q *CalendarQueue) Add(key EventKey, t float64) error {
	if _, present := q.keyStep[key]; present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyExistsError, key)
	}
	if t < q.tMin {
		return errors.Wrapf(ErrInvariantViolation, "calendar queue: add time %f precedes t_min %f", t, q.tMin)
	}

	rescaled := false
	if (q.nEvents+1)%q.nEventsRescale == 0 {
		rescaled = q.rescale()
	}
	if !rescaled && q.curStep > len(q.cal)/2 {
		q.resize()
	}

	step := q.stepOf(t)
	if step < q.curStep {
		return errors.Wrapf(ErrInvariantViolation, "calendar queue: computed step %d precedes cursor step %d", step, q.curStep)
	}

	q.insertCounter++
	n := &calNode{key: key, t: t, insertSeq: q.insertCounter}
	q.keyStep[key] = step + q.keyStepOffset
	q.getStepList(step).add(n)
	q.size++
	return nil
}

func (q *CalendarQueue) Remove(key EventKey) error {
	absStep, present := q.keyStep[key]
	if !present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyNotFoundError, key)
	}
	step := absStep - q.keyStepOffset
	n := q.cal[step].findNode(key)
	q.cal[step].unlink(n)
	delete(q.keyStep, key)
	q.size--
	return nil
}

func (q *CalendarQueue) RemoveIfPresent(key EventKey) {
	if q.Contains(key) {
		_ = q.Remove(key)
	}
}

func (q *CalendarQueue) Contains(key EventKey) bool {
	_, present := q.keyStep[key]
	return present
}

func (q *CalendarQueue) Update(key EventKey, t float64) error {
	absStep, present := q.keyStep[key]
	if !present {
		return errors.Wrapf(ErrInvariantViolation, IntKeyNotFoundError, key)
	}
	oldStep := absStep - q.keyStepOffset
	newStep := q.stepOf(t)

	q.insertCounter++
	if oldStep == newStep {
		list := q.cal[oldStep]
		n := list.findNode(key)
		list.unlink(n)
		n.t = t
		n.insertSeq = q.insertCounter
		list.add(n)
		return nil
	}

	oldList := q.cal[oldStep]
	n := oldList.findNode(key)
	oldList.unlink(n)
	n.t = t
	n.insertSeq = q.insertCounter
	q.getStepList(newStep).add(n)
	q.keyStep[key] = newStep + q.keyStepOffset
	return nil
}

func (q *CalendarQueue) AddOrUpdate(key EventKey, t float64) {
	if q.Contains(key) {
		_ = q.Update(key, t)
	} else {
		_ = q.Add(key, t)
	}
}

func (q *CalendarQueue) Peek() (EventKey, float64, bool) {
	if q.size == 0 {
		return EventKey{}, 0, false
	}
	step := q.curStep
	for {
		if step >= len(q.cal) {
			return EventKey{}, 0, false
		}
		list := q.cal[step]
		if list != nil {
			if n := list.peek(); n != nil {
				return n.key, n.t, true
			}
		}
		step++
	}
}

func (q *CalendarQueue) Pop() (EventKey, float64, bool) {
	if q.size == 0 {
		return EventKey{}, 0, false
	}
	for {
		list := q.cal[q.curStep]
		if list == nil {
			q.curStep++
			continue
		}
		if list.size == 0 {
			q.cal[q.curStep] = nil
			q.curStep++
			continue
		}
		n := list.pop()
		q.size--
		q.dtSum += n.t - q.t
		q.nEvents++
		q.t = n.t
		delete(q.keyStep, n.key)
		return n.key, n.t, true
	}
}

func (q *CalendarQueue) Time() float64 { return q.t }
func (q *CalendarQueue) Size() int     { return q.size }

// TimeOf reports the currently scheduled time for key without removing
// it; used by verify routines that need the time of a specific,
// possibly non-minimal, entry.
func (q *CalendarQueue) TimeOf(key EventKey) (float64, bool) {
	absStep, present := q.keyStep[key]
	if !present {
		return 0, false
	}
	n := q.cal[absStep-q.keyStepOffset].findNode(key)
	if n == nil {
		return 0, false
	}
	return n.t, true
}

func (q *CalendarQueue) meanDt() (float64, bool) {
	if q.nEvents == 0 {
		return 0, false
	}
	return q.dtSum / float64(q.nEvents), true
}

// resize is the cheap adaptive operation: once the cursor has advanced
// past half the allocated buckets, drop the consumed prefix and shift
// t_min and the key offset so existing handles remain valid.
func (q *CalendarQueue) resize() bool {
	if q.curStep == 0 {
		return false
	}
	q.cal = q.cal[q.curStep:]
	q.tMin += q.bucketWidth * float64(q.curStep)
	q.keyStepOffset += q.curStep
	q.curStep = 0
	return true
}

// rescale is the expensive adaptive operation: recompute the target
// bucket width from the mean inter-event interval over the last
// rescale window, and rebuild the whole structure at the new width if
// it falls outside [0.5x, 2x] of the current width.
func (q *CalendarQueue) rescale() bool {
	mean, ok := q.meanDt()
	if !ok {
		return false
	}
	target := math.Max(mean*2.0, q.minBucketWidth)

	q.dtSum = 0
	q.nEvents = 0

	if target > 0.5*q.bucketWidth && target < 2.0*q.bucketWidth {
		return false
	}

	oldCal := q.cal
	q.bucketWidth = target
	q.tMin = q.t
	q.curStep = 0
	q.cal = nil
	q.keyStep = make(map[EventKey]int)
	q.keyStepOffset = 0
	q.insertCounter = 0
	q.size = 0

	for _, list := range oldCal {
		if list == nil {
			continue
		}
		for cur := list.first; cur != nil; {
			next := cur.next
			_ = q.Add(cur.key, cur.t)
			cur = next
		}
	}
	return true
}

func (q *CalendarQueue) Verify() error {
	size := 0
	for i, list := range q.cal {
		if i < q.curStep {
			if list != nil {
				return errors.Wrapf(ErrInvariantViolation, "calendar queue: consumed bucket %d still populated", i)
			}
			continue
		}
		if list == nil {
			continue
		}
		tMin := q.tMin + q.bucketWidth*float64(i) - calendarQueueTolerance
		tMax := q.tMin + q.bucketWidth*float64(i+1) + calendarQueueTolerance
		size += list.size
		if err := list.verify(tMin, tMax); err != nil {
			return err
		}
	}
	if size != q.size {
		return errors.Wrapf(ErrInvariantViolation, "calendar queue: size mismatch, tracked %d counted %d", q.size, size)
	}
	return nil
}
