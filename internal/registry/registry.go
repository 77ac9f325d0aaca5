package registry

import (
	"sync"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// record tracks one connection's identity and the rooms it has joined.
// Room bookkeeping lives here so a disconnect can cascade a leave for every
// room in one step.
type record struct {
	conn     interfaces.Connection
	identity string
	role     string
	rooms    map[string]struct{}
}

// Registry tracks every open connection keyed by connection id. Multiple
// connections may share an identity (multi-tab); each is tracked
// independently.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*record),
	}
}

// Register adds a connection with no identity and no room memberships.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	rec := &record{
		conn:  conn,
		rooms: make(map[string]struct{}),
	}
	if conn.IsAuthenticated() {
		rec.identity = conn.IdentityID()
		rec.role = conn.Role()
	}
	r.conns[conn.ID()] = rec
	return nil
}

// AttachIdentity binds an authenticated identity to a connection.
func (r *Registry) AttachIdentity(connID, identityID, role string) error {
	if !types.IsValidID(identityID) || !types.IsValidRole(role) {
		return types.ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.conns[connID]
	if !exists {
		return ErrUnknownConnection
	}
	rec.identity = identityID
	rec.role = role
	return rec.conn.SetIdentity(identityID, role)
}

// Remove discards a connection record and returns the rooms it had joined
// so the caller can cascade a leave for each. Idempotent: removing an
// already-removed id returns ok=false and an empty room list.
func (r *Registry) Remove(connID string) (identityID string, rooms []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.conns[connID]
	if !exists {
		return "", nil, false
	}
	rooms = make([]string, 0, len(rec.rooms))
	for roomID := range rec.rooms {
		rooms = append(rooms, roomID)
	}
	delete(r.conns, connID)
	return rec.identity, rooms, true
}

// Get returns the connection for an id.
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.conns[connID]
	if !exists {
		return nil, false
	}
	return rec.conn, true
}

// Identity returns the identity bound to a connection, if any.
func (r *Registry) Identity(connID string) (identityID, role string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.conns[connID]
	if !exists || rec.identity == "" {
		return "", "", false
	}
	return rec.identity, rec.role, true
}

// TrackJoin records that a connection joined a room. No-op for unknown
// connections; membership itself lives in the rooms manager.
func (r *Registry) TrackJoin(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.conns[connID]; exists {
		rec.rooms[roomID] = struct{}{}
	}
}

// TrackLeave records that a connection left a room.
func (r *Registry) TrackLeave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.conns[connID]; exists {
		delete(rec.rooms, roomID)
	}
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	for _, rec := range r.conns {
		if rec.identity != "" {
			authenticated++
		}
	}
	return map[string]int{
		"total_connections":         len(r.conns),
		"authenticated_connections": authenticated,
	}
}
