package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"classhub/internal/meeting"
	"classhub/internal/notify"
	"classhub/internal/registry"
	"classhub/internal/rooms"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

type fakeConn struct {
	id       string
	identity string
	role     string
	sent     []*types.Envelope
}

func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) WriteJSON(v interface{}) error {
	f.sent = append(f.sent, v.(*types.Envelope))
	return nil
}
func (f *fakeConn) Close() error          { return nil }
func (f *fakeConn) IdentityID() string    { return f.identity }
func (f *fakeConn) Role() string          { return f.role }
func (f *fakeConn) IsAuthenticated() bool { return f.identity != "" }
func (f *fakeConn) SetIdentity(id, role string) error {
	f.identity = id
	f.role = role
	return nil
}

type fakeStore struct {
	rosters   map[string][]types.Member
	healthErr error
}

func (s *fakeStore) SaveMessage(ctx context.Context, msg *types.ChatMessage) error { return nil }
func (s *fakeStore) RoomHistory(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	return nil, nil
}
func (s *fakeStore) ClassRoster(ctx context.Context, classID string) ([]types.Member, error) {
	roster, ok := s.rosters[classID]
	if !ok {
		return nil, interfaces.ErrClassNotFound
	}
	return roster, nil
}
func (s *fakeStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *fakeStore) Close() error                          { return nil }

type fixture struct {
	server   *Server
	store    *fakeStore
	rooms    *rooms.Manager
	meetings *meeting.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &fakeStore{rosters: make(map[string][]types.Member)}
	roomManager := rooms.NewManager()
	meetings := meeting.NewStore()
	reg := registry.NewRegistry()
	dispatcher := notify.NewDispatcher(roomManager, nil)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &fixture{
		server:   NewServer(store, meetings, roomManager, reg, dispatcher, metricsHandler),
		store:    store,
		rooms:    roomManager,
		meetings: meetings,
	}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("response unmarshal: %v", err)
	}
	if health.Status != "healthy" || health.Database != "healthy" {
		t.Errorf("health = %+v", health)
	}

	f.store.healthErr = errors.New("database locked")
	rec = f.get("/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when database is down", rec.Code)
	}
}

func TestServer_NotificationRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/notifications", NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           types.NotificationGrade,
			Message:        "graded",
			TargetIdentity: "alice",
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without idempotency key", rec.Code)
	}
}

func TestServer_NotificationDirect(t *testing.T) {
	f := newFixture(t)
	alice := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if _, err := f.rooms.Join("alice", types.RoomKindPersonal, alice); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	body := NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           types.NotificationGrade,
			Message:        "Assignment graded",
			TargetIdentity: "alice",
			IdempotencyKey: "grade-42:alice",
		},
	}
	rec := f.post(t, "/api/notifications", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(alice.sent) != 1 {
		t.Errorf("alice received %d events, want 1", len(alice.sent))
	}

	// Same key again: conflict, no second delivery.
	rec = f.post(t, "/api/notifications", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for duplicate", rec.Code)
	}
	if len(alice.sent) != 1 {
		t.Errorf("duplicate dispatch delivered again (%d events)", len(alice.sent))
	}
}

func TestServer_NotificationInvalidPayload(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/notifications", NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           "spam",
			Message:        "hi",
			TargetIdentity: "alice",
			IdempotencyKey: "k1",
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown type", rec.Code)
	}
}

func TestServer_NotificationClassFanOut(t *testing.T) {
	f := newFixture(t)
	f.store.rosters["class-101"] = []types.Member{
		{IdentityID: "alice", Role: types.RoleStudent},
		{IdentityID: "bob", Role: types.RoleStudent},
	}
	alice := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if _, err := f.rooms.Join("alice", types.RoomKindPersonal, alice); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	// bob has no open connection: his delivery is silently missed.

	rec := f.post(t, "/api/notifications", NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           types.NotificationAnnouncement,
			Message:        "Exam Friday",
			IdempotencyKey: "announce-7",
		},
		ClassID: "class-101",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp NotifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal: %v", err)
	}
	if resp.Dispatched != 2 || resp.Duplicates != 0 {
		t.Errorf("response = %+v, want 2 dispatched", resp)
	}
	if len(alice.sent) != 1 {
		t.Errorf("alice received %d events, want 1", len(alice.sent))
	}

	// Retried fan-out dedups per recipient.
	rec = f.post(t, "/api/notifications", NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           types.NotificationAnnouncement,
			Message:        "Exam Friday",
			IdempotencyKey: "announce-7",
		},
		ClassID: "class-101",
	})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response unmarshal: %v", err)
	}
	if resp.Dispatched != 0 || resp.Duplicates != 2 {
		t.Errorf("retry response = %+v, want 2 duplicates", resp)
	}
}

func TestServer_NotificationUnknownClass(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/notifications", NotifyRequest{
		NotificationEvent: types.NotificationEvent{
			Type:           types.NotificationAnnouncement,
			Message:        "hi",
			IdempotencyKey: "k1",
		},
		ClassID: "class-404",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_MeetingParticipants(t *testing.T) {
	f := newFixture(t)
	f.meetings.Join("meet-1", "alice", types.RoleStudent)
	f.meetings.Join("meet-1", "t1", types.RoleTeacher)

	rec := f.get("/api/meetings/meet-1/participants")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload types.ParticipantsPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response unmarshal: %v", err)
	}
	if payload.MeetingID != "meet-1" || len(payload.Participants) != 2 {
		t.Errorf("payload = %+v", payload)
	}

	rec = f.get("/api/meetings/meet-1/nonsense")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown subresource", rec.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/notifications")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/meetings/meet-1/participants", nil)
	del := httptest.NewRecorder()
	f.server.ServeHTTP(del, req)
	if del.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", del.Code)
	}
}
