package memory

import "errors"

// Engine error taxonomy. Callers match with errors.Is; the HTTP layer maps
// these to status codes.
var (
	// ErrInvalidInput marks empty or malformed content.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown id/owner combination.
	ErrNotFound = errors.New("memory not found")

	// ErrPrecondition marks a promotion attempted below the importance
	// threshold without force.
	ErrPrecondition = errors.New("precondition failed")

	// ErrStorageUnavailable marks an unreachable durable store. Write-path
	// storage failures always surface as this; memory mutation is never
	// silently dropped.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
