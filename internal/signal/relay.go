package signal

import (
	"encoding/json"
	"log"

	"classhub/internal/metrics"
	"classhub/internal/rooms"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Relay is the stateless pass-through for peer negotiation messages
// (offer, answer, ICE candidate). It performs no semantic validation of the
// payload contents: delivery is keyed only on room membership, sender
// excluded, and each receiving client filters by the embedded from field.
// Broadcast signaling is O(n²) connection setup for n participants; that is
// a known limit of the mesh topology, acceptable at classroom meeting scale.
type Relay struct {
	rooms   *rooms.Manager
	metrics *metrics.Metrics
}

func NewRelay(roomManager *rooms.Manager, m *metrics.Metrics) *Relay {
	return &Relay{
		rooms:   roomManager,
		metrics: m,
	}
}

// Relay fans a signaling event out to every room member except the sender.
// The from field is stamped from the authenticated sender identity so
// receivers can trust it.
func (r *Relay) Relay(sender interfaces.Connection, eventType, roomID string, data json.RawMessage) error {
	if !r.rooms.IsMember(roomID, sender.ID()) {
		return types.ErrNotAMember
	}

	payload, err := json.Marshal(types.SignalPayload{
		From: sender.IdentityID(),
		Data: data,
	})
	if err != nil {
		return err
	}
	out := &types.Envelope{
		Type:    eventType,
		RoomID:  roomID,
		Payload: payload,
	}

	for _, conn := range r.rooms.ConnectionsExcept(roomID, sender.ID()) {
		if err := conn.WriteJSON(out); err != nil {
			// Best-effort: a closed recipient is a delivery miss, never an
			// error surfaced to the sender.
			r.metrics.DeliveryDropped()
			log.Printf("signal delivery dropped: type=%s room=%s to=%s err=%v",
				eventType, roomID, conn.IdentityID(), err)
		}
	}
	return nil
}
