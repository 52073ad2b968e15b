package tenant

import "errors"

var (
	// ErrNotFound means no site answers to the domain or id.  Durable; the
	// resolver never retries it.
	ErrNotFound = errors.New("tenant not found")

	// ErrStoreUnavailable wraps any failure to reach or query the
	// control-plane store, timeouts included.  Transient.
	ErrStoreUnavailable = errors.New("tenant store unavailable")
)
