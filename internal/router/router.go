package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classhub/internal/meeting"
	"classhub/internal/metrics"
	"classhub/internal/registry"
	"classhub/internal/rooms"
	"classhub/internal/signal"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Router validates inbound events at the tagged-variant boundary, enforces
// room membership and role authorization, and fans events out to the
// correct connections. Chat follows persist-then-broadcast: a message whose
// save failed is never visible to peers.
//
// Echo policy per event type: chat is reflected to the sender like any
// other recipient; whiteboard strokes and raw signaling are sender-excluded
// and rely on optimistic local application.
type Router struct {
	registry     *registry.Registry
	rooms        *rooms.Manager
	meetings     *meeting.Store
	relay        *signal.Relay
	store        interfaces.Store
	limiter      *RateLimiter
	metrics      *metrics.Metrics
	historyLimit int
}

func NewRouter(
	reg *registry.Registry,
	roomManager *rooms.Manager,
	meetings *meeting.Store,
	relay *signal.Relay,
	store interfaces.Store,
	m *metrics.Metrics,
	historyLimit int,
) *Router {
	return &Router{
		registry:     reg,
		rooms:        roomManager,
		meetings:     meetings,
		relay:        relay,
		store:        store,
		limiter:      NewRateLimiter(),
		metrics:      m,
		historyLimit: historyLimit,
	}
}

// Dispatch routes one inbound event. Errors are returned to the caller
// (the hub) for conversion into an ack to the sender; the event is dropped,
// nothing is partially broadcast.
func (r *Router) Dispatch(ctx context.Context, sender interfaces.Connection, env *types.Envelope) error {
	if !sender.IsAuthenticated() {
		return types.ErrInvalidIdentity
	}
	if !r.limiter.Allow(sender.IdentityID()) {
		r.metrics.EventRejected(types.CodeRateLimited)
		return ErrRateLimited
	}

	err := r.dispatch(ctx, sender, env)
	if err != nil {
		r.metrics.EventRejected(ErrorCode(err))
		return err
	}
	r.metrics.EventRouted(env.Type)
	return nil
}

func (r *Router) dispatch(ctx context.Context, sender interfaces.Connection, env *types.Envelope) error {
	switch env.Type {
	case types.EventJoinClass:
		return r.handleJoinClass(ctx, sender, env)
	case types.EventChatMessage:
		return r.handleChat(ctx, sender, env)
	case types.EventWhiteboardDraw:
		return r.handleWhiteboardDraw(sender, env)
	case types.EventWhiteboardClear:
		return r.handleWhiteboardClear(sender, env)
	case types.EventWhiteboardVisibility:
		return r.handleWhiteboardVisibility(sender, env)
	case types.EventWebRTCOffer, types.EventWebRTCAnswer, types.EventWebRTCICECandidate:
		return r.handleSignal(sender, env)
	case types.EventMeetingJoin:
		return r.handleMeetingJoin(sender, env)
	case types.EventMeetingLeave:
		return r.handleMeetingLeave(sender, env)
	case types.EventMeetingStart, types.EventMeetingEnd:
		return r.handleMeetingTransition(sender, env)
	case types.EventMeetingMute, types.EventMeetingVideoToggle, types.EventMeetingRaiseHand:
		return r.handleMeetingFlag(sender, env)
	default:
		return types.ErrUnknownEvent
	}
}

// handleJoinClass joins the sender's personal notification room and the
// class room, then replays recent chat history to the joining connection.
func (r *Router) handleJoinClass(ctx context.Context, sender interfaces.Connection, env *types.Envelope) error {
	var payload types.JoinClassPayload
	if err := types.DecodePayload(env.Payload, &payload); err != nil {
		return err
	}

	// Personal room id is the identity id.
	if _, err := r.rooms.Join(sender.IdentityID(), types.RoomKindPersonal, sender); err != nil {
		return err
	}
	r.registry.TrackJoin(sender.ID(), sender.IdentityID())

	rejoin := r.rooms.IsMember(payload.ClassID, sender.ID())
	if _, err := r.rooms.Join(payload.ClassID, types.RoomKindClass, sender); err != nil {
		return err
	}
	r.registry.TrackJoin(sender.ID(), payload.ClassID)
	if rejoin {
		// The connection already has the history; replaying again would
		// duplicate every message on its end.
		return nil
	}

	log.Printf("class joined: class=%s identity=%s role=%s",
		payload.ClassID, sender.IdentityID(), sender.Role())

	// History replay is best-effort; a store hiccup must not undo the join.
	history, err := r.store.RoomHistory(ctx, payload.ClassID, r.historyLimit)
	if err != nil {
		log.Printf("history replay unavailable: class=%s err=%v", payload.ClassID, err)
		return nil
	}
	for _, msg := range history {
		r.deliver(sender, r.chatEnvelope(msg))
	}
	return nil
}

// handleChat persists the message, then broadcasts it to every room member
// including the sender (reflected send). Persistence failure fails closed:
// the sender gets an error ack and no one sees the message.
func (r *Router) handleChat(ctx context.Context, sender interfaces.Connection, env *types.Envelope) error {
	var payload types.ChatPayload
	if err := types.DecodePayload(env.Payload, &payload); err != nil {
		return err
	}
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}

	// Server-side id and timestamp; client-supplied values are ignored.
	msg := &types.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    env.RoomID,
		SenderID:  sender.IdentityID(),
		Content:   payload.Content,
		CreatedAt: time.Now(),
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.broadcast(env.RoomID, r.chatEnvelope(msg), "")
	return nil
}

func (r *Router) chatEnvelope(msg *types.ChatMessage) *types.Envelope {
	payload, _ := json.Marshal(msg)
	return &types.Envelope{
		Type:    types.EventChatMessage,
		RoomID:  msg.RoomID,
		Payload: payload,
	}
}

// handleWhiteboardDraw relays an opaque drawing object to everyone but the
// sender, who applies the stroke optimistically.
func (r *Router) handleWhiteboardDraw(sender interfaces.Connection, env *types.Envelope) error {
	if len(env.Payload) == 0 {
		return types.ErrInvalidPayload
	}
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}
	r.broadcast(env.RoomID, &types.Envelope{
		Type:    types.EventWhiteboardDraw,
		RoomID:  env.RoomID,
		Payload: env.Payload,
	}, sender.ID())
	return nil
}

// handleWhiteboardClear is sender-included so every client, the clearing
// one too, resets from the same broadcast.
func (r *Router) handleWhiteboardClear(sender interfaces.Connection, env *types.Envelope) error {
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}
	r.broadcast(env.RoomID, &types.Envelope{
		Type:   types.EventWhiteboardClear,
		RoomID: env.RoomID,
	}, "")
	return nil
}

// handleWhiteboardVisibility is host-only; the new state is broadcast to
// all members so student clients mirror the full-screen whiteboard.
func (r *Router) handleWhiteboardVisibility(sender interfaces.Connection, env *types.Envelope) error {
	var payload types.WhiteboardVisibilityPayload
	if err := types.DecodePayload(env.Payload, &payload); err != nil {
		return err
	}
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}
	if err := r.meetings.SetWhiteboardOpen(env.RoomID, sender.IdentityID(), payload.Open); err != nil {
		return err
	}
	out, _ := json.Marshal(payload)
	r.broadcast(env.RoomID, &types.Envelope{
		Type:    types.EventWhiteboardVisibility,
		RoomID:  env.RoomID,
		Payload: out,
	}, "")
	return nil
}

func (r *Router) handleSignal(sender interfaces.Connection, env *types.Envelope) error {
	var payload types.SignalPayload
	if err := types.DecodePayload(env.Payload, &payload); err != nil {
		return err
	}
	return r.relay.Relay(sender, env.Type, env.RoomID, payload.Data)
}

// handleMeetingJoin adds the identity to the meeting's participant state
// and member set. The participants broadcast fires only on a presence
// change; an additional tab just receives the current snapshot itself.
func (r *Router) handleMeetingJoin(sender interfaces.Connection, env *types.Envelope) error {
	if !types.IsValidID(env.RoomID) {
		return types.ErrInvalidPayload
	}

	// Room membership first: a join refused by the room manager (a class
	// room under this id, say) must leave no participant record behind.
	first, err := r.rooms.Join(env.RoomID, types.RoomKindMeeting, sender)
	if err != nil {
		return err
	}
	r.registry.TrackJoin(sender.ID(), env.RoomID)

	// Participant record before the presence broadcast, so the broadcast
	// includes the joiner's flags.
	r.meetings.Join(env.RoomID, sender.IdentityID(), sender.Role())

	if first {
		r.BroadcastParticipants(env.RoomID)
	} else {
		r.deliver(sender, r.participantsEnvelope(env.RoomID))
	}
	r.deliver(sender, r.stateEnvelope(env.RoomID))
	return nil
}

func (r *Router) handleMeetingLeave(sender interfaces.Connection, env *types.Envelope) error {
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}
	last := r.rooms.Leave(env.RoomID, sender.ID(), sender.IdentityID())
	r.registry.TrackLeave(sender.ID(), env.RoomID)
	if last {
		r.meetings.Leave(env.RoomID, sender.IdentityID())
		r.BroadcastParticipants(env.RoomID)
	}
	return nil
}

func (r *Router) handleMeetingTransition(sender interfaces.Connection, env *types.Envelope) error {
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}

	var err error
	if env.Type == types.EventMeetingStart {
		err = r.meetings.Start(env.RoomID, sender.IdentityID(), sender.Role())
	} else {
		err = r.meetings.End(env.RoomID, sender.IdentityID(), sender.Role())
	}
	if err != nil {
		return err
	}

	log.Printf("meeting transition: meeting=%s event=%s by=%s",
		env.RoomID, env.Type, sender.IdentityID())
	r.broadcast(env.RoomID, r.stateEnvelope(env.RoomID), "")
	return nil
}

func (r *Router) handleMeetingFlag(sender interfaces.Connection, env *types.Envelope) error {
	var payload types.MeetingFlagPayload
	if err := types.DecodePayload(env.Payload, &payload); err != nil {
		return err
	}
	if err := r.requireMember(env.RoomID, sender); err != nil {
		return err
	}

	actor := sender.IdentityID()
	var err error
	switch env.Type {
	case types.EventMeetingMute:
		err = r.meetings.SetMuted(env.RoomID, actor, payload.IdentityID, payload.Flag)
	case types.EventMeetingVideoToggle:
		err = r.meetings.SetVideoEnabled(env.RoomID, actor, payload.IdentityID, payload.Flag)
	case types.EventMeetingRaiseHand:
		err = r.meetings.SetRaisedHand(env.RoomID, actor, payload.IdentityID, payload.Flag)
	}
	if err != nil {
		return err
	}

	out, _ := json.Marshal(payload)
	r.broadcast(env.RoomID, &types.Envelope{
		Type:    env.Type,
		RoomID:  env.RoomID,
		Payload: out,
	}, "")
	return nil
}

// HandleDisconnect releases every room membership held by a connection and
// discards its record. Idempotent: a second call for the same id is a
// no-op. Meeting rooms whose presence changed get a participants broadcast.
func (r *Router) HandleDisconnect(connID string) {
	identityID, roomIDs, ok := r.registry.Remove(connID)
	if !ok {
		return
	}
	for _, roomID := range roomIDs {
		kind, _ := r.rooms.Kind(roomID)
		last := r.rooms.Leave(roomID, connID, identityID)
		if last && kind == types.RoomKindMeeting {
			r.meetings.Leave(roomID, identityID)
			r.BroadcastParticipants(roomID)
		}
	}
	log.Printf("connection released: conn=%s identity=%s rooms=%d",
		connID, identityID, len(roomIDs))
}

// BroadcastParticipants pushes the current member list and flags to every
// connection in a meeting room. Fired on every presence change.
func (r *Router) BroadcastParticipants(meetingID string) {
	r.broadcast(meetingID, r.participantsEnvelope(meetingID), "")
}

func (r *Router) participantsEnvelope(meetingID string) *types.Envelope {
	payload, _ := json.Marshal(types.ParticipantsPayload{
		MeetingID:    meetingID,
		Participants: r.meetings.Participants(meetingID),
	})
	return &types.Envelope{
		Type:    types.EventMeetingParticipants,
		RoomID:  meetingID,
		Payload: payload,
	}
}

func (r *Router) stateEnvelope(meetingID string) *types.Envelope {
	payload, _ := json.Marshal(r.meetings.State(meetingID))
	return &types.Envelope{
		Type:    types.EventMeetingState,
		RoomID:  meetingID,
		Payload: payload,
	}
}

func (r *Router) requireMember(roomID string, sender interfaces.Connection) error {
	if !types.IsValidID(roomID) {
		return types.ErrInvalidPayload
	}
	if !r.rooms.IsMember(roomID, sender.ID()) {
		return types.ErrNotAMember
	}
	return nil
}

// broadcast delivers an envelope to every connection in a room, optionally
// excluding one sender connection. Delivery to a connection that has gone
// away is silently dropped: at-most-once per recipient, no retry.
func (r *Router) broadcast(roomID string, env *types.Envelope, exceptConnID string) {
	var conns []interfaces.Connection
	if exceptConnID == "" {
		conns = r.rooms.Connections(roomID)
	} else {
		conns = r.rooms.ConnectionsExcept(roomID, exceptConnID)
	}
	for _, conn := range conns {
		r.deliver(conn, env)
	}
}

func (r *Router) deliver(conn interfaces.Connection, env *types.Envelope) {
	if err := conn.WriteJSON(env); err != nil {
		r.metrics.DeliveryDropped()
	}
}
