package meeting

import (
	"testing"

	"classhub/pkg/types"
)

func findParticipant(t *testing.T, s *Store, meetingID, identityID string) types.Participant {
	t.Helper()
	for _, p := range s.Participants(meetingID) {
		if p.IdentityID == identityID {
			return p
		}
	}
	t.Fatalf("participant %q not found in meeting %q", identityID, meetingID)
	return types.Participant{}
}

func TestStore_JoinDefaults(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "alice", types.RoleStudent)

	p := findParticipant(t, s, "meet-1", "alice")
	if p.Muted || !p.VideoEnabled || p.RaisedHand {
		t.Errorf("expected defaults unmuted/video-on/hand-down, got %+v", p)
	}

	// Rejoin keeps current flags rather than resetting them.
	if err := s.SetMuted("meet-1", "alice", "alice", true); err != nil {
		t.Fatalf("SetMuted failed: %v", err)
	}
	s.Join("meet-1", "alice", types.RoleStudent)
	if p := findParticipant(t, s, "meet-1", "alice"); !p.Muted {
		t.Error("rejoin must not reset flags")
	}
}

func TestStore_StartAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		role    string
		wantErr error
	}{
		{"teacher may start", "t1", types.RoleTeacher, nil},
		{"student may not start", "s1", types.RoleStudent, types.ErrForbidden},
		{"admin may not start", "a1", types.RoleAdmin, types.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Join("meet-1", tt.actor, tt.role)
			if err := s.Start("meet-1", tt.actor, tt.role); err != tt.wantErr {
				t.Errorf("Start() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_StartHostDesignation(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "t1", types.RoleTeacher)
	s.Join("meet-1", "t2", types.RoleTeacher)

	if err := s.Start("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if state := s.State("meet-1"); !state.Active || state.HostID != "t1" {
		t.Errorf("expected active meeting hosted by t1, got %+v", state)
	}

	// Restart by the host is a no-op; another teacher is rejected.
	if err := s.Start("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Errorf("host restart should be a no-op, got %v", err)
	}
	if err := s.Start("meet-1", "t2", types.RoleTeacher); err != types.ErrForbidden {
		t.Errorf("second teacher start should be forbidden, got %v", err)
	}
}

func TestStore_EndResetsState(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "t1", types.RoleTeacher)
	s.Join("meet-1", "s1", types.RoleStudent)
	if err := s.Start("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.SetWhiteboardOpen("meet-1", "t1", true); err != nil {
		t.Fatalf("SetWhiteboardOpen failed: %v", err)
	}
	if err := s.SetMuted("meet-1", "t1", "s1", true); err != nil {
		t.Fatalf("SetMuted failed: %v", err)
	}

	// Only the host may end.
	if err := s.End("meet-1", "t2", types.RoleTeacher); err != types.ErrForbidden {
		t.Errorf("non-host end should be forbidden, got %v", err)
	}
	if err := s.End("meet-1", "s1", types.RoleStudent); err != types.ErrForbidden {
		t.Errorf("student end should be forbidden, got %v", err)
	}
	if err := s.End("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Fatalf("host end failed: %v", err)
	}

	state := s.State("meet-1")
	if state.Active || state.HostID != "" || state.WhiteboardOpen {
		t.Errorf("end should reset state, got %+v", state)
	}
	if p := findParticipant(t, s, "meet-1", "s1"); p.Muted {
		t.Error("end should reset participant flags")
	}

	// Ending an inactive meeting is a no-op for any teacher.
	if err := s.End("meet-1", "t2", types.RoleTeacher); err != nil {
		t.Errorf("end of inactive meeting should be a no-op, got %v", err)
	}
}

func TestStore_FlagAuthorization(t *testing.T) {
	setup := func(t *testing.T) *Store {
		t.Helper()
		s := NewStore()
		s.Join("meet-1", "host", types.RoleTeacher)
		s.Join("meet-1", "s1", types.RoleStudent)
		if err := s.Start("meet-1", "host", types.RoleTeacher); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Store) error
		wantErr error
	}{
		{
			name:   "self mute",
			mutate: func(s *Store) error { return s.SetMuted("meet-1", "s1", "s1", true) },
		},
		{
			name:   "host mutes another participant",
			mutate: func(s *Store) error { return s.SetMuted("meet-1", "host", "s1", true) },
		},
		{
			name:    "student mutes another participant",
			mutate:  func(s *Store) error { return s.SetMuted("meet-1", "s1", "host", true) },
			wantErr: types.ErrForbidden,
		},
		{
			name:   "self video toggle",
			mutate: func(s *Store) error { return s.SetVideoEnabled("meet-1", "s1", "s1", false) },
		},
		{
			name:    "host forces another participant's video",
			mutate:  func(s *Store) error { return s.SetVideoEnabled("meet-1", "host", "s1", false) },
			wantErr: types.ErrForbidden,
		},
		{
			name:   "self raise hand",
			mutate: func(s *Store) error { return s.SetRaisedHand("meet-1", "s1", "s1", true) },
		},
		{
			name:    "host raises another participant's hand",
			mutate:  func(s *Store) error { return s.SetRaisedHand("meet-1", "host", "s1", true) },
			wantErr: types.ErrForbidden,
		},
		{
			name:    "flag for absent participant",
			mutate:  func(s *Store) error { return s.SetMuted("meet-1", "ghost", "ghost", true) },
			wantErr: ErrNotInMeeting,
		},
		{
			name:    "flag in unknown meeting",
			mutate:  func(s *Store) error { return s.SetMuted("meet-404", "s1", "s1", true) },
			wantErr: ErrNotInMeeting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t)
			if err := tt.mutate(s); err != tt.wantErr {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_WhiteboardHostOnly(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "host", types.RoleTeacher)
	s.Join("meet-1", "s1", types.RoleStudent)

	// Before a host exists nobody may open the whiteboard.
	if err := s.SetWhiteboardOpen("meet-1", "host", true); err != types.ErrForbidden {
		t.Errorf("whiteboard before start should be forbidden, got %v", err)
	}

	if err := s.Start("meet-1", "host", types.RoleTeacher); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.SetWhiteboardOpen("meet-1", "s1", true); err != types.ErrForbidden {
		t.Errorf("student whiteboard toggle should be forbidden, got %v", err)
	}
	if err := s.SetWhiteboardOpen("meet-1", "host", true); err != nil {
		t.Fatalf("host whiteboard toggle failed: %v", err)
	}
	if state := s.State("meet-1"); !state.WhiteboardOpen {
		t.Error("whiteboard flag not reflected in state")
	}
}

func TestStore_LeaveLastDiscardsSession(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "t1", types.RoleTeacher)
	if err := s.Start("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Leave("meet-1", "t1")
	if s.Active("meet-1") {
		t.Error("meeting should be inactive after its last participant leaves")
	}
	if got := s.Participants("meet-1"); got != nil {
		t.Errorf("expected no participants, got %v", got)
	}

	// Leave on an unknown meeting must not panic.
	s.Leave("meet-404", "t1")
}

func TestStore_Stats(t *testing.T) {
	s := NewStore()
	s.Join("meet-1", "t1", types.RoleTeacher)
	s.Join("meet-2", "t2", types.RoleTeacher)
	if err := s.Start("meet-1", "t1", types.RoleTeacher); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := s.Stats()
	if stats["meetings_tracked"] != 2 {
		t.Errorf("meetings_tracked = %d, want 2", stats["meetings_tracked"])
	}
	if stats["meetings_active"] != 1 {
		t.Errorf("meetings_active = %d, want 1", stats["meetings_active"])
	}
}
