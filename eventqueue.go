package pneumoresistance

// EventKind tags the handler that fires for a queued event. Per-host
// events carry the host's stable index; population-wide events ignore
// it. This is the systems-language stand-in for "a bound method as
// event key": the source identifies an event by object identity, here
// a (kind, host index) pair plays the same role and is cheap to hash.
type EventKind int

const (
	EventCelebrateBirthday EventKind = iota
	EventReset
	EventStepTreatment
	EventClearColonization
	EventInitColonizations
	EventDoColonizations
	EventVerify
	EventWriteOutput
	EventWriteCheckpoint
)

func (k EventKind) String() string {
	switch k {
	case EventCelebrateBirthday:
		return "celebrate_birthday"
	case EventReset:
		return "reset"
	case EventStepTreatment:
		return "step_treatment"
	case EventClearColonization:
		return "clear_colonization"
	case EventInitColonizations:
		return "initialize_colonizations_and_immunity"
	case EventDoColonizations:
		return "do_colonizations"
	case EventVerify:
		return "verify"
	case EventWriteOutput:
		return "write_output"
	case EventWriteCheckpoint:
		return "write_checkpoint"
	default:
		return "unknown_event"
	}
}

// hostlessIndex marks an EventKey that does not refer to a particular
// host (DoColonizations, Verify, WriteOutput, WriteCheckpoint,
// InitColonizations are all population-wide singletons).
const hostlessIndex = -1

// EventKey uniquely identifies one queued event. At most one event per
// (Kind, HostIndex) pair may be queued at a time; this is what
// guarantees the at-most-one-pending-clearance and
// at-most-one-pending-treatment invariants: Add refuses a key that is
// already queued, and the clearance event is always add_or_update'd.
type EventKey struct {
	Kind      EventKind
	HostIndex int
}

func singletonKey(kind EventKind) EventKey {
	return EventKey{Kind: kind, HostIndex: hostlessIndex}
}

func hostKey(kind EventKind, hostIndex int) EventKey {
	return EventKey{Kind: kind, HostIndex: hostIndex}
}

// EventQueue is the contract shared by the calendar-queue and
// indexed-heap implementations. Ordering is primary ascending by time,
// ties broken by ascending insertion order (FIFO for equal times).
type EventQueue interface {
	// Add inserts key at time t. key must not already be present and
	// t must be >= the queue's current cursor time.
	Add(key EventKey, t float64) error

	// Update moves an already-present key to a new time.
	Update(key EventKey, t float64) error

	// AddOrUpdate is the union of Add and Update.
	AddOrUpdate(key EventKey, t float64)

	// Remove deletes key. It is an error if key is absent.
	Remove(key EventKey) error

	// RemoveIfPresent deletes key if present; a no-op otherwise.
	RemoveIfPresent(key EventKey)

	// Contains reports whether key is currently queued.
	Contains(key EventKey) bool

	// Peek returns the lowest (time, insertion-order) entry without
	// removing it. ok is false iff the queue is empty.
	Peek() (key EventKey, t float64, ok bool)

	// Pop removes and returns the lowest entry, advancing the internal
	// cursor time to t. ok is false iff the queue is empty.
	Pop() (key EventKey, t float64, ok bool)

	// Time returns the cursor time of the most recent Pop (or the
	// construction-time t_min if nothing has been popped yet).
	Time() float64

	// Size returns the number of currently queued entries.
	Size() int

	// Verify checks internal structural invariants and returns an
	// error (wrapping ErrInvariantViolation) if any is violated.
	Verify() error
}
