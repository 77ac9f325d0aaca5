package notify

import "errors"

// Dispatcher error types.
var (
	ErrNilEvent        = errors.New("notification event cannot be nil")
	ErrAmbiguousTarget = errors.New("exactly one of target identity or target room must be set")
	ErrDuplicate       = errors.New("duplicate notification for idempotency key")
)
