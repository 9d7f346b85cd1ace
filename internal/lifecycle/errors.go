package lifecycle

import "errors"

// Named error conditions for state-machine violations. The store's state
// is unchanged whenever one of these is returned.
var (
	// ErrDuplicateCandidate is returned when an active (non-retired)
	// record with the same strategy name already exists.
	ErrDuplicateCandidate = errors.New("duplicate candidate")

	// ErrCandidateNotFound is returned when no active record exists for
	// the given strategy name.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrInvalidTransition is returned when a transition is requested
	// from a state it is not valid in. Retired records reject every
	// transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
