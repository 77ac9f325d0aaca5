package ws

import "errors"

// Connection error types.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteBufferFull  = errors.New("write buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrEmptyIdentity    = errors.New("identity id cannot be empty")
)
