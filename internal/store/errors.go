package store

import "errors"

// Store error types.
var (
	ErrStoreClosed = errors.New("store is closed")
	ErrNilMessage  = errors.New("message cannot be nil")
)
