package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"classhub/internal/router"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Hub is the single owner of room membership mutations and event routing.
// One run goroutine drains the channels, so every inbound event, join, and
// disconnect is processed to completion before the next: membership changes
// are atomic with respect to routing, and events from one sender reach all
// recipients in emission order (FIFO per sender-room pair follows from the
// loop's global FIFO within this process).
//
// Single-process assumption: this hub owns every connection. Scaling across
// processes needs a pub/sub backplane behind the router's interface.
type Hub struct {
	eventChannel      chan *EventContext
	disconnectChannel chan string // connection id
	shutdownChannel   chan struct{}

	router *router.Router

	running bool
	mu      sync.RWMutex
}

// EventContext wraps an inbound envelope with its sender connection.
type EventContext struct {
	Sender   interfaces.Connection
	Envelope *types.Envelope
}

func NewHub(r *router.Router) *Hub {
	return &Hub{
		// Buffer sized for classroom message bursts; disconnects are rarer.
		eventChannel:      make(chan *EventContext, 1000),
		disconnectChannel: make(chan string, 100),
		shutdownChannel:   make(chan struct{}),
		router:            r,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	// A previous Stop leaves the shutdown channel closed; a fresh one makes
	// the hub restartable.
	h.shutdownChannel = make(chan struct{})
	shutdown := h.shutdownChannel
	h.mu.Unlock()

	log.Println("starting event hub")
	go h.run(ctx, shutdown)
	return nil
}

// Stop shuts the hub down. Events still queued are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// Submit queues an inbound event for routing. Non-blocking: a full channel
// returns an error so the transport read loop never stalls.
func (h *Hub) Submit(sender interfaces.Connection, env *types.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.eventChannel <- &EventContext{Sender: sender, Envelope: env}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues a connection teardown. Safe to call more than once for
// the same id; the cascade itself is idempotent.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		// Hub already stopped: release memberships inline.
		h.router.HandleDisconnect(connID)
		return
	}
	h.mu.RUnlock()

	select {
	case h.disconnectChannel <- connID:
	default:
		// Channel full: handle inline rather than lose the cleanup.
		h.router.HandleDisconnect(connID)
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer log.Println("event hub stopped")

	for {
		select {
		case evt := <-h.eventChannel:
			h.handleEvent(ctx, evt)
		case connID := <-h.disconnectChannel:
			h.router.HandleDisconnect(connID)
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes one event and acks the sender. Errors drop the event;
// other room members see nothing. Chat additionally acks success, since the
// sender needs to learn the message is durable.
func (h *Hub) handleEvent(ctx context.Context, evt *EventContext) {
	err := h.router.Dispatch(ctx, evt.Sender, evt.Envelope)
	if err != nil {
		log.Printf("event dropped: type=%s from=%s err=%v",
			evt.Envelope.Type, evt.Sender.IdentityID(), err)
		h.sendAck(evt.Sender, &types.Ack{
			OK:    false,
			Event: evt.Envelope.Type,
			Error: router.ErrorCode(err),
		})
		return
	}
	if evt.Envelope.Type == types.EventChatMessage {
		h.sendAck(evt.Sender, &types.Ack{OK: true, Event: evt.Envelope.Type})
	}
}

func (h *Hub) sendAck(conn interfaces.Connection, ack *types.Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	env := &types.Envelope{
		Type:    types.EventAck,
		Payload: payload,
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("failed to ack %s: %v", conn.IdentityID(), err)
	}
}
