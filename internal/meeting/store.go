package meeting

import (
	"sync"

	"classhub/pkg/types"
)

// session is one meeting room's live state. Created on first join or start,
// reset when the meeting ends or the last participant leaves. Never
// persisted; the durable Meeting entity belongs to the CRUD backend.
type session struct {
	active         bool
	hostID         string
	whiteboardOpen bool
	participants   map[string]*types.Participant
}

// Store holds per-meeting ephemeral state: the active flag, the designated
// host, participant flags, and the whiteboard flag.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
	}
}

func (s *Store) session(meetingID string) *session {
	sess, exists := s.sessions[meetingID]
	if !exists {
		sess = &session{
			participants: make(map[string]*types.Participant),
		}
		s.sessions[meetingID] = sess
	}
	return sess
}

// Join adds a participant with default flags (unmuted, video on, hand
// down). Rejoining is a no-op that preserves current flags.
func (s *Store) Join(meetingID, identityID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(meetingID)
	if _, exists := sess.participants[identityID]; exists {
		return
	}
	sess.participants[identityID] = &types.Participant{
		IdentityID:   identityID,
		Role:         role,
		Muted:        false,
		VideoEnabled: true,
		RaisedHand:   false,
	}
}

// Leave removes a participant. When the last participant leaves the whole
// session state is discarded, including the active flag and host.
func (s *Store) Leave(meetingID, identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return
	}
	delete(sess.participants, identityID)
	if len(sess.participants) == 0 {
		delete(s.sessions, meetingID)
	}
}

// Start transitions a meeting to active. Only a teacher may start; the
// first teacher to start becomes the designated host and keeps that slot
// until the state is reset. Starting an already-active meeting is a no-op
// for the host and Forbidden for anyone else.
func (s *Store) Start(meetingID, identityID, role string) error {
	if role != types.RoleTeacher {
		return types.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(meetingID)
	if sess.active {
		if sess.hostID != identityID {
			return types.ErrForbidden
		}
		return nil
	}
	sess.active = true
	sess.hostID = identityID
	return nil
}

// End transitions a meeting back to inactive and resets the ephemeral
// state: participant flags return to defaults, the whiteboard closes, the
// host slot clears. Participants stay joined. Host-only; ending an
// inactive meeting is a no-op for any teacher.
func (s *Store) End(meetingID, identityID, role string) error {
	if role != types.RoleTeacher {
		return types.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[meetingID]
	if !exists || !sess.active {
		return nil
	}
	if sess.hostID != identityID {
		return types.ErrForbidden
	}
	sess.active = false
	sess.hostID = ""
	sess.whiteboardOpen = false
	for _, p := range sess.participants {
		p.Muted = false
		p.VideoEnabled = true
		p.RaisedHand = false
	}
	return nil
}

// SetMuted mutates a participant's muted flag. Allowed for the participant
// themselves and for the host on any participant (mute-all capability).
func (s *Store) SetMuted(meetingID, actorID, targetID string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return ErrNotInMeeting
	}
	if actorID != targetID && actorID != sess.hostID {
		return types.ErrForbidden
	}
	p, exists := sess.participants[targetID]
	if !exists {
		return ErrNotInMeeting
	}
	p.Muted = muted
	return nil
}

// SetVideoEnabled mutates a participant's video flag. Self-service only;
// the host may not force another participant's video.
func (s *Store) SetVideoEnabled(meetingID, actorID, targetID string, enabled bool) error {
	return s.setOwnFlag(meetingID, actorID, targetID, func(p *types.Participant) {
		p.VideoEnabled = enabled
	})
}

// SetRaisedHand mutates a participant's hand flag. Self-service only.
func (s *Store) SetRaisedHand(meetingID, actorID, targetID string, raised bool) error {
	return s.setOwnFlag(meetingID, actorID, targetID, func(p *types.Participant) {
		p.RaisedHand = raised
	})
}

func (s *Store) setOwnFlag(meetingID, actorID, targetID string, mutate func(*types.Participant)) error {
	if actorID != targetID {
		return types.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return ErrNotInMeeting
	}
	p, exists := sess.participants[targetID]
	if !exists {
		return ErrNotInMeeting
	}
	mutate(p)
	return nil
}

// SetWhiteboardOpen mutates the whiteboard flag. Host-only.
func (s *Store) SetWhiteboardOpen(meetingID, actorID string, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return ErrNotInMeeting
	}
	if sess.hostID == "" || actorID != sess.hostID {
		return types.ErrForbidden
	}
	sess.whiteboardOpen = open
	return nil
}

// Participants returns a snapshot of the meeting's participant records.
func (s *Store) Participants(meetingID string) []types.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return nil
	}
	participants := make([]types.Participant, 0, len(sess.participants))
	for _, p := range sess.participants {
		participants = append(participants, *p)
	}
	return participants
}

// State returns the meeting's broadcastable state snapshot.
func (s *Store) State(meetingID string) types.MeetingStatePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[meetingID]
	if !exists {
		return types.MeetingStatePayload{}
	}
	return types.MeetingStatePayload{
		Active:         sess.active,
		HostID:         sess.hostID,
		WhiteboardOpen: sess.whiteboardOpen,
	}
}

// Active reports whether a meeting is currently active.
func (s *Store) Active(meetingID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[meetingID]
	return exists && sess.active
}

// Stats returns meeting counters for the health endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, sess := range s.sessions {
		if sess.active {
			active++
		}
	}
	return map[string]int{
		"meetings_tracked": len(s.sessions),
		"meetings_active":  active,
	}
}
