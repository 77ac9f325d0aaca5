package notify

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"classhub/internal/metrics"
	"classhub/internal/rooms"
	"classhub/pkg/types"
)

// dedupWindow bounds how long an idempotency key is remembered. Long enough
// to absorb controller retries, short enough to keep the map small.
const dedupWindow = 10 * time.Minute

// Dispatcher delivers NotificationEvents to personal rooms or whole rooms.
// It is constructed once at process start and passed by reference to every
// collaborator that emits notifications; there is no global notifier.
//
// Duplicate detection is a server-side invariant: a caller-supplied
// idempotency key is remembered for the dedup window and a repeat dispatch
// is rejected. Delivery itself stays at-most-once with no durable outbox,
// so a recipient offline at dispatch time misses the notification.
type Dispatcher struct {
	rooms   *rooms.Manager
	metrics *metrics.Metrics

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewDispatcher(roomManager *rooms.Manager, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		rooms:   roomManager,
		metrics: m,
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// Dispatch performs at-most-one delivery attempt for the event. The
// dispatcher never resolves rosters: callers expanding a class roster call
// Dispatch once per recipient identity.
func (d *Dispatcher) Dispatch(event *types.NotificationEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	if err := types.ValidatePayload(event); err != nil {
		return err
	}
	hasIdentity := event.TargetIdentity != ""
	hasRoom := event.TargetRoom != ""
	if hasIdentity == hasRoom {
		return ErrAmbiguousTarget
	}

	if event.IdempotencyKey != "" {
		if dup := d.markSeen(event.IdempotencyKey); dup {
			d.metrics.NotificationDeduped()
			return ErrDuplicate
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now()
	}

	// A personal room's id is the identity id itself.
	roomID := event.TargetRoom
	if hasIdentity {
		roomID = event.TargetIdentity
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	out := &types.Envelope{
		Type:    types.EventNotification,
		Payload: payload,
	}

	d.metrics.NotificationDispatched()
	delivered := 0
	for _, conn := range d.rooms.Connections(roomID) {
		if err := conn.WriteJSON(out); err != nil {
			d.metrics.DeliveryDropped()
			continue
		}
		delivered++
	}
	log.Printf("notification dispatched: type=%s room=%s delivered=%d",
		event.Type, roomID, delivered)
	return nil
}

// markSeen records a key and reports whether it was already present within
// the window. Stale keys are pruned on the way in.
func (d *Dispatcher) markSeen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > dedupWindow {
			delete(d.seen, k)
		}
	}
	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = now
	return false
}
