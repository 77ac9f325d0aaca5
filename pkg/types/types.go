package types

import (
	"encoding/json"
	"time"
)

// Roles carried by authenticated identities. The meeting host is always a
// teacher; admins may observe rooms but hold no meeting privileges.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Room kinds. A personal room's id is the owning identity's id; every
// identity implicitly owns exactly one.
const (
	RoomKindClass    = "class"
	RoomKindPersonal = "personal"
	RoomKindMeeting  = "meeting"
)

// Event type constants use the wire names the web clients speak.
const (
	EventJoinClass            = "joinClass"
	EventChatMessage          = "chatMessage"
	EventWhiteboardDraw       = "whiteboard-draw"
	EventWhiteboardClear      = "whiteboard-clear"
	EventWhiteboardVisibility = "whiteboard-visibility"
	EventWebRTCOffer          = "webrtc-offer"
	EventWebRTCAnswer         = "webrtc-answer"
	EventWebRTCICECandidate   = "webrtc-ice-candidate"
	EventMeetingJoin          = "meeting-join"
	EventMeetingLeave         = "meeting-leave"
	EventMeetingStart         = "meeting-start"
	EventMeetingEnd           = "meeting-end"
	EventMeetingMute          = "meeting-mute"
	EventMeetingVideoToggle   = "meeting-video-toggle"
	EventMeetingRaiseHand     = "meeting-raise-hand"
	EventMeetingParticipants  = "meeting-participants"
	EventMeetingState         = "meeting-state"
	EventNotification         = "notification"
	EventAck                  = "ack"
)

// Notification types form a fixed enumeration; anything else is rejected at
// the dispatcher boundary.
const (
	NotificationAssignment   = "assignment"
	NotificationNote         = "note"
	NotificationGrade        = "grade"
	NotificationAnnouncement = "announcement"
	NotificationSystem       = "system"
	NotificationWelcome      = "welcome"
)

// Envelope is the wire shape for every event in both directions. Payload
// stays raw until the router decodes it into the per-type schema.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatMessage is the one event the core persists before broadcasting.
// Immutable once created; id and timestamp are server-generated.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant is the per-identity meeting state broadcast on presence and
// flag changes. Never persisted.
type Participant struct {
	IdentityID   string `json:"identity_id"`
	Role         string `json:"role"`
	Muted        bool   `json:"muted"`
	VideoEnabled bool   `json:"video_enabled"`
	RaisedHand   bool   `json:"raised_hand"`
}

// Member is the presence view of a room: distinct identities, independent of
// how many connections each has open.
type Member struct {
	IdentityID string `json:"identity_id"`
	Role       string `json:"role"`
}

// NotificationEvent is the ephemeral fan-out unit handed to the dispatcher.
// Exactly one of TargetIdentity / TargetRoom must be set. The idempotency
// key identifies the logical notification so duplicate dispatch calls are
// detected server-side.
type NotificationEvent struct {
	Type           string                 `json:"type" validate:"required,oneof=assignment note grade announcement system welcome"`
	Message        string                 `json:"message" validate:"required,max=1024"`
	Data           map[string]interface{} `json:"data,omitempty"`
	TargetIdentity string                 `json:"target_identity,omitempty" validate:"omitempty,identity"`
	TargetRoom     string                 `json:"target_room,omitempty" validate:"omitempty,identity"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	CreatedAt      time.Time              `json:"created_at,omitempty"`
}

// Ack is the server→sender result for an inbound event.
type Ack struct {
	OK    bool   `json:"ok"`
	Event string `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

// Inbound payload schemas, decoded and validated at the router boundary.

// JoinClassPayload joins the sender's personal room and the class room.
type JoinClassPayload struct {
	ClassID string `json:"class_id" validate:"required,identity"`
}

type ChatPayload struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type WhiteboardVisibilityPayload struct {
	Open bool `json:"open"`
}

// SignalPayload carries opaque peer negotiation data. From is stamped
// server-side from the authenticated sender; client-supplied values are
// overwritten.
type SignalPayload struct {
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// MeetingFlagPayload targets one participant's flag. For self-service flags
// IdentityID must equal the sender; the host may additionally mute others.
type MeetingFlagPayload struct {
	IdentityID string `json:"identity_id" validate:"required,identity"`
	Flag       bool   `json:"flag"`
}

// MeetingStatePayload is broadcast on start/end and whiteboard changes.
type MeetingStatePayload struct {
	Active         bool   `json:"active"`
	HostID         string `json:"host_id,omitempty"`
	WhiteboardOpen bool   `json:"whiteboard_open"`
}

// ParticipantsPayload is broadcast whenever meeting presence changes.
type ParticipantsPayload struct {
	MeetingID    string        `json:"meeting_id"`
	Participants []Participant `json:"participants"`
}
