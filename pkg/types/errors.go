package types

import "errors"

// Shared error taxonomy for event handling. Components return these (or
// wrap them); the router maps them to the wire ack codes.
var (
	ErrNotAMember      = errors.New("sender is not a member of the target room")
	ErrForbidden       = errors.New("sender not authorized for this operation")
	ErrInvalidIdentity = errors.New("identity id must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidPayload  = errors.New("event payload failed schema validation")
	ErrUnknownEvent    = errors.New("unknown event type")
)

// Wire ack codes for the taxonomy above.
const (
	CodeNotAMember      = "not_a_member"
	CodeForbidden       = "forbidden"
	CodeInvalidIdentity = "invalid_identity"
	CodeInvalidPayload  = "invalid_payload"
	CodeUnknownEvent    = "unknown_event"
	CodeRateLimited     = "rate_limited"
	CodePersistence     = "persistence_failed"
	CodeInternal        = "internal"
)

// ErrorCode maps a routing error to its wire ack code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidIdentity):
		return CodeInvalidIdentity
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	default:
		return CodeInternal
	}
}
