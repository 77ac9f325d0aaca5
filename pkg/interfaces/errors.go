package interfaces

import "errors"

// Errors shared across collaborator boundaries.
var (
	ErrClassNotFound = errors.New("class not found")
	ErrInvalidToken  = errors.New("invalid or expired token")
)
