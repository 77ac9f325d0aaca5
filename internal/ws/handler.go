package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"classhub/internal/hub"
	"classhub/internal/metrics"
	"classhub/internal/registry"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy belongs to the fronting proxy in deployment.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Config holds the transport timings and buffer size.
type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// Handler upgrades websocket requests, authenticates the bearer token, and
// pumps inbound events into the hub. Identity is resolved before the
// connection is registered; an unauthenticated socket never enters the
// registry.
type Handler struct {
	registry *registry.Registry
	hub      *hub.Hub
	verifier interfaces.IdentityVerifier
	metrics  *metrics.Metrics
	cfg      Config
}

func NewHandler(reg *registry.Registry, h *hub.Hub, verifier interfaces.IdentityVerifier, m *metrics.Metrics, cfg Config) *Handler {
	return &Handler{
		registry: reg,
		hub:      h,
		verifier: verifier,
		metrics:  m,
		cfg:      cfg,
	}
}

// HandleWebSocket handles GET /ws?token=<jwt>. The token may also arrive as
// an Authorization bearer header.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.cfg.BufferSize, h.cfg.WriteTimeout)
	if err := conn.SetIdentity(identity.ID, identity.Role); err != nil {
		log.Printf("failed to attach identity: %v", err)
		_ = conn.Close()
		return
	}
	if err := h.registry.Register(conn); err != nil {
		log.Printf("failed to register connection: %v", err)
		_ = conn.Close()
		return
	}

	h.metrics.ConnOpened()
	log.Printf("connection opened: conn=%s identity=%s role=%s",
		conn.ID(), identity.ID, identity.Role)

	go h.readLoop(conn)
}

// readLoop reads envelopes off the socket and submits them to the hub, with
// ping/pong heartbeat monitoring. On exit the disconnect cascade releases
// every room membership the connection held.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		h.hub.Disconnect(conn.ID())
		_ = conn.Close()
		h.metrics.ConnClosed()
		log.Printf("connection closed: conn=%s identity=%s", conn.ID(), conn.IdentityID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error: conn=%s err=%v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendAck(conn, "", types.CodeInvalidPayload)
			continue
		}
		if err := h.hub.Submit(conn, &env); err != nil {
			// Backpressure: the hub queue is full, tell the sender.
			h.sendAck(conn, env.Type, types.CodeInternal)
		}
	}
}

func (h *Handler) sendAck(conn *Connection, eventType, code string) {
	payload, err := json.Marshal(types.Ack{OK: false, Event: eventType, Error: code})
	if err != nil {
		return
	}
	_ = conn.WriteJSON(&types.Envelope{Type: types.EventAck, Payload: payload})
}
