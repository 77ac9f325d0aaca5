package router

import (
	"errors"

	"classhub/internal/meeting"
	"classhub/internal/rooms"
	"classhub/pkg/types"
)

// Router-specific error types. The shared taxonomy (NotAMember, Forbidden,
// InvalidIdentity, InvalidPayload) lives in pkg/types.
var (
	ErrRateLimited = errors.New("rate limit exceeded: 100 events per minute")
	ErrPersistence = errors.New("message could not be persisted")
)

// ErrorCode maps any routing error to its wire ack code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return types.CodeRateLimited
	case errors.Is(err, ErrPersistence):
		return types.CodePersistence
	case errors.Is(err, meeting.ErrNotInMeeting):
		return types.CodeNotAMember
	case errors.Is(err, rooms.ErrRoomKindConflict):
		return types.CodeInvalidPayload
	default:
		return types.ErrorCode(err)
	}
}
