package pneumoresistance

import "github.com/pkg/errors"

// Sentinel error kinds distinguished by the core. Callers use errors.Is
// against these to classify a failure without parsing message text.
var (
	// ErrConfiguration marks an inconsistent or missing parameter value,
	// detected before the event loop starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrOutputConflict marks a target output location that already
	// exists while overwrite is disabled.
	ErrOutputConflict = errors.New("output location already exists")

	// ErrCheckpointMissing marks a checkpoint load path that is absent.
	ErrCheckpointMissing = errors.New("checkpoint path does not exist")

	// ErrInvariantViolation marks a verification disagreement or an
	// impossible host/queue state discovered at runtime. There is no
	// recovery; the caller aborts the run.
	ErrInvariantViolation = errors.New("invariant violation")
)

const (
	// IntKeyNotFoundError is the message for "key not found" errors
	// raised by the event queue implementations.
	IntKeyNotFoundError = "key %v not found"

	// IntKeyExistsError is printed when a given key is already present.
	IntKeyExistsError = "key %v already exists"

	InvalidFloatParameterError  = "invalid %s %f, %s"
	InvalidIntParameterError    = "invalid %s %d, %s"
	InvalidStringParameterError = "invalid %s %s, %s"
)
