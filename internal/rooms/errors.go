package rooms

import "errors"

// Membership error types.
var (
	ErrNilConnection    = errors.New("connection cannot be nil")
	ErrInvalidRoomKind  = errors.New("invalid room kind")
	ErrRoomKindConflict = errors.New("room already exists with a different kind")
)
