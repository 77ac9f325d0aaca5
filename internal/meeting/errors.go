package meeting

import "errors"

// Meeting state error types. Authorization failures use the shared
// types.ErrForbidden so the router maps them to one ack code.
var (
	ErrNotInMeeting = errors.New("identity is not a meeting participant")
)
