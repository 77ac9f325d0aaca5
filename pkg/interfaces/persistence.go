package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// Store is the persistence collaborator the core consumes. The CRUD backend
// owns the durable schema; the core is write-once for chat messages and
// read-only for rosters.
type Store interface {
	// SaveMessage persists a chat message. Routing must not broadcast a
	// message whose save failed.
	SaveMessage(ctx context.Context, msg *types.ChatMessage) error

	// RoomHistory returns up to limit most recent messages for a room in
	// ascending timestamp order, for replay on join.
	RoomHistory(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error)

	// ClassRoster returns the identities enrolled in a class. Returns
	// ErrClassNotFound for an unknown class id.
	ClassRoster(ctx context.Context, classID string) ([]types.Member, error)

	// HealthCheck verifies connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the underlying database.
	Close() error
}
