package circle

import "errors"

// Error taxonomy, transport-independent (spec §7). Collaborators that
// do not fit in this package (event store, read cache, projection)
// reuse these sentinels via errors.Is so the command handler can map
// them to a single HTTP surface without re-deriving the mapping.
var (
	// ErrInvalidInput covers aggregate validation failures: capacity
	// below MinCapacity, malformed identifiers, an absent required
	// field on create.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate is raised by the duplicate checker when another
	// circle already holds the requested name.
	ErrDuplicate = errors.New("duplicate circle name")

	// ErrVersionMismatch is raised by the event store's expected_version
	// gate.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrNotFound means the read path found neither a snapshot nor any
	// events for the aggregate id.
	ErrNotFound = errors.New("circle not found")

	// ErrCorrupt means the event log violated an invariant: a version
	// gap, a non-monotonic sequence, or a decode failure. It indicates
	// store-level corruption, never bad user input.
	ErrCorrupt = errors.New("event log corrupt")

	// ErrTransient covers connection, timeout, and broker-unavailable
	// failures. Callers are expected to retry idempotently using the
	// same expected_version.
	ErrTransient = errors.New("transient failure")
)
