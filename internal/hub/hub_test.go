package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"classhub/internal/meeting"
	"classhub/internal/registry"
	"classhub/internal/rooms"
	"classhub/internal/router"
	"classhub/internal/signal"
	"classhub/pkg/types"
)

type fakeConn struct {
	mu       sync.Mutex
	id       string
	identity string
	role     string
	sent     []*types.Envelope
}

func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeConn) acks() []*types.Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	var acks []*types.Ack
	for _, env := range f.sent {
		if env.Type != types.EventAck {
			continue
		}
		var ack types.Ack
		if err := json.Unmarshal(env.Payload, &ack); err == nil {
			acks = append(acks, &ack)
		}
	}
	return acks
}

type fakeStore struct{}

func (fakeStore) SaveMessage(ctx context.Context, msg *types.ChatMessage) error { return nil }
func (fakeStore) RoomHistory(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	return nil, nil
}
func (fakeStore) ClassRoster(ctx context.Context, classID string) ([]types.Member, error) {
	return nil, nil
}
func (fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (fakeStore) Close() error                          { return nil }

func newTestHub(t *testing.T) (*Hub, *registry.Registry, *rooms.Manager) {
	t.Helper()
	reg := registry.NewRegistry()
	roomManager := rooms.NewManager()
	r := router.NewRouter(reg, roomManager, meeting.NewStore(), signal.NewRelay(roomManager, nil), fakeStore{}, nil, 100)
	return NewHub(r), reg, roomManager
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestHub_StartStop(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("second Start should return ErrHubAlreadyRunning, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("second Stop should return ErrHubNotRunning, got %v", err)
	}
}

func TestHub_SubmitWhileStopped(t *testing.T) {
	h, _, _ := newTestHub(t)
	conn := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}

	err := h.Submit(conn, &types.Envelope{Type: types.EventChatMessage})
	if err != ErrHubNotRunning {
		t.Errorf("expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_ChatIsAcked(t *testing.T) {
	h, reg, _ := newTestHub(t)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = h.Stop() }()

	conn := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	join, _ := json.Marshal(types.JoinClassPayload{ClassID: "class-101"})
	if err := h.Submit(conn, &types.Envelope{Type: types.EventJoinClass, Payload: join}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	chat, _ := json.Marshal(types.ChatPayload{Content: "hello"})
	if err := h.Submit(conn, &types.Envelope{Type: types.EventChatMessage, RoomID: "class-101", Payload: chat}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, func() bool { return len(conn.acks()) >= 1 })
	acks := conn.acks()
	if !acks[0].OK || acks[0].Event != types.EventChatMessage {
		t.Errorf("unexpected ack %+v", acks[0])
	}
}

func TestHub_RejectedEventAcksError(t *testing.T) {
	h, reg, _ := newTestHub(t)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = h.Stop() }()

	conn := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Chat into a room the sender never joined.
	chat, _ := json.Marshal(types.ChatPayload{Content: "hello"})
	if err := h.Submit(conn, &types.Envelope{Type: types.EventChatMessage, RoomID: "class-999", Payload: chat}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, func() bool { return len(conn.acks()) >= 1 })
	ack := conn.acks()[0]
	if ack.OK {
		t.Error("rejected event must not ack OK")
	}
	if ack.Error != types.CodeNotAMember {
		t.Errorf("ack error = %q, want %q", ack.Error, types.CodeNotAMember)
	}
}

func TestHub_DisconnectCascade(t *testing.T) {
	h, reg, roomManager := newTestHub(t)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = h.Stop() }()

	conn := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	join, _ := json.Marshal(types.JoinClassPayload{ClassID: "class-101"})
	if err := h.Submit(conn, &types.Envelope{Type: types.EventJoinClass, Payload: join}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, func() bool { return roomManager.IsMember("class-101", "conn-1") })

	h.Disconnect("conn-1")
	waitFor(t, func() bool { return !roomManager.IsMember("class-101", "conn-1") })

	// Double disconnect is safe, running or not.
	h.Disconnect("conn-1")
	_ = h.Stop()
	h.Disconnect("conn-1")
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestHub_DisconnectWhileStoppedRunsInline(t *testing.T) {
	h, reg, roomManager := newTestHub(t)

	conn := &fakeConn{id: "conn-1", identity: "alice", role: types.RoleStudent}
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := roomManager.Join("class-101", types.RoomKindClass, conn); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	reg.TrackJoin("conn-1", "class-101")

	h.Disconnect("conn-1")
	if roomManager.IsMember("class-101", "conn-1") {
		t.Error("stopped hub should release memberships inline")
	}
}
