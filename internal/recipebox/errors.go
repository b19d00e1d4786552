package recipebox

import "errors"

// Error kinds the coordinator handles specially. Backends wrap these with
// context via fmt.Errorf("...: %w", ErrX); callers test with errors.Is.
var (
	// ErrNotFound means the recipe does not exist. Reads turn it into an absent result.
	ErrNotFound = errors.New("recipe not found")

	// ErrUnreachable means the remote backend could not be reached. Always retryable.
	ErrUnreachable = errors.New("remote unreachable")

	// ErrUnauthorized means the remote rejected our credentials.
	// Retrying without re-authentication cannot succeed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage means the local store failed. It is logged and degraded, never surfaced as a crash.
	ErrStorage = errors.New("local storage failure")
)
