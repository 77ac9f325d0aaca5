package rooms

import (
	"sync"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// member is one identity's presence in a room across however many tabs it
// has open.
type member struct {
	role  string
	conns map[string]interfaces.Connection // connection id -> connection
}

type room struct {
	kind    string
	members map[string]*member // identity id -> member
}

// Manager maintains per-room member sets. Membership is always derived from
// currently-open connections; nothing here survives a restart. Presence is
// keyed on identity: a second tab joining fires no presence change, and a
// tab closing fires one only when it was the identity's last.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*room),
	}
}

// Join adds (identity, connection) to the room's member set. Returns
// first=true when this is the identity's first connection in the room.
// Joining the same room twice with the same connection is a no-op. A room
// id keeps the kind it was created with; joining it under another kind
// fails with ErrRoomKindConflict.
func (m *Manager) Join(roomID, kind string, conn interfaces.Connection) (first bool, err error) {
	if conn == nil {
		return false, ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return false, types.ErrInvalidIdentity
	}
	if !types.IsValidRoomKind(kind) {
		return false, ErrInvalidRoomKind
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		rm = &room{
			kind:    kind,
			members: make(map[string]*member),
		}
		m.rooms[roomID] = rm
	}
	if rm.kind != kind {
		return false, ErrRoomKindConflict
	}

	identityID := conn.IdentityID()
	mb, exists := rm.members[identityID]
	if !exists {
		rm.members[identityID] = &member{
			role:  conn.Role(),
			conns: map[string]interfaces.Connection{conn.ID(): conn},
		}
		return true, nil
	}
	mb.conns[conn.ID()] = conn
	return false, nil
}

// Leave removes a connection from a room. Returns last=true when that was
// the identity's last connection in the room. Leaving a room the connection
// was never in is a no-op.
func (m *Manager) Leave(roomID, connID, identityID string) (last bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return false
	}
	mb, exists := rm.members[identityID]
	if !exists {
		return false
	}
	if _, exists := mb.conns[connID]; !exists {
		return false
	}
	delete(mb.conns, connID)
	if len(mb.conns) > 0 {
		return false
	}
	delete(rm.members, identityID)
	if len(rm.members) == 0 {
		delete(m.rooms, roomID)
	}
	return true
}

// IsMember reports whether a connection is currently joined to a room.
func (m *Manager) IsMember(roomID, connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return false
	}
	for _, mb := range rm.members {
		if _, ok := mb.conns[connID]; ok {
			return true
		}
	}
	return false
}

// Members returns the distinct identities present in a room. Consumers must
// treat the result as a set; no ordering is guaranteed.
func (m *Manager) Members(roomID string) []types.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return nil
	}
	members := make([]types.Member, 0, len(rm.members))
	for identityID, mb := range rm.members {
		members = append(members, types.Member{IdentityID: identityID, Role: mb.role})
	}
	return members
}

// Connections returns every connection currently joined to a room.
func (m *Manager) Connections(roomID string) []interfaces.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return nil
	}
	var conns []interfaces.Connection
	for _, mb := range rm.members {
		for _, conn := range mb.conns {
			conns = append(conns, conn)
		}
	}
	return conns
}

// ConnectionsExcept returns a room's connections excluding one sender
// connection, for echo-suppressed broadcasts.
func (m *Manager) ConnectionsExcept(roomID, connID string) []interfaces.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return nil
	}
	var conns []interfaces.Connection
	for _, mb := range rm.members {
		for id, conn := range mb.conns {
			if id != connID {
				conns = append(conns, conn)
			}
		}
	}
	return conns
}

// Kind returns a room's kind, if the room currently exists.
func (m *Manager) Kind(roomID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, exists := m.rooms[roomID]
	if !exists {
		return "", false
	}
	return rm.kind, true
}

// Stats returns room counters for the health endpoint.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKind := map[string]int{}
	for _, rm := range m.rooms {
		byKind[rm.kind]++
	}
	return map[string]int{
		"rooms_total":    len(m.rooms),
		"rooms_class":    byKind[types.RoomKindClass],
		"rooms_personal": byKind[types.RoomKindPersonal],
		"rooms_meeting":  byKind[types.RoomKindMeeting],
	}
}
