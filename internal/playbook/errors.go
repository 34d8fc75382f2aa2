package playbook

import "errors"

// Domain errors for the playbook package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, playbook.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a key or display ID does not resolve to a record.
	ErrNotFound = errors.New("playbook: not found")

	// ErrInvalidRecord is returned when a key or status fails validation.
	ErrInvalidRecord = errors.New("playbook: invalid record")

	// ErrPersistence is returned when the durable write fails. The in-memory
	// mutation has been rolled back and the caller must not publish.
	ErrPersistence = errors.New("playbook: persistence failed")

	// ErrDisplayIDConflict is returned when a rename targets a display ID
	// already held by a different record.
	ErrDisplayIDConflict = errors.New("playbook: display id already in use")
)
