package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"classhub/internal/meeting"
	"classhub/internal/notify"
	"classhub/internal/registry"
	"classhub/internal/rooms"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Server is the HTTP surface the external collaborators use: the CRUD
// controllers push notifications in after their persisted writes, and
// operational tooling reads health, metrics, and meeting presence. No
// business logic lives here.
type Server struct {
	store      interfaces.Store
	meetings   *meeting.Store
	rooms      *rooms.Manager
	registry   *registry.Registry
	dispatcher *notify.Dispatcher
	metrics    http.Handler
	router     *http.ServeMux
}

func NewServer(
	store interfaces.Store,
	meetings *meeting.Store,
	roomManager *rooms.Manager,
	reg *registry.Registry,
	dispatcher *notify.Dispatcher,
	metricsHandler http.Handler,
) *Server {
	s := &Server{
		store:      store,
		meetings:   meetings,
		rooms:      roomManager,
		registry:   reg,
		dispatcher: dispatcher,
		metrics:    metricsHandler,
		router:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/notifications", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleNotifications))))
	s.router.Handle("/api/meetings/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleMeetings))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/metrics", s.metrics)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NotifyRequest is the controllers' ingress shape. When ClassID is set the
// handler resolves the roster and dispatches once per enrolled identity;
// the dispatcher itself never reads rosters.
type NotifyRequest struct {
	types.NotificationEvent
	ClassID string `json:"class_id,omitempty"`
}

type NotifyResponse struct {
	Dispatched int `json:"dispatched"`
	Duplicates int `json:"duplicates"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Rooms       map[string]int `json:"rooms"`
	Meetings    map[string]int `json:"meetings"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createNotification(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// createNotification handles POST /api/notifications. An idempotency key is
// required so a retried controller call cannot double-deliver.
func (s *Server) createNotification(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		s.sendError(w, "Idempotency key is required", http.StatusBadRequest)
		return
	}

	if req.ClassID == "" {
		if err := s.dispatcher.Dispatch(&req.NotificationEvent); err != nil {
			s.sendDispatchError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(NotifyResponse{Dispatched: 1})
		return
	}

	// Class-wide fan-out: resolve the roster here, dispatch per recipient
	// with a per-recipient idempotency key.
	roster, err := s.store.ClassRoster(r.Context(), req.ClassID)
	if err != nil {
		if errors.Is(err, interfaces.ErrClassNotFound) {
			s.sendError(w, "Class not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to resolve roster", http.StatusInternalServerError)
		}
		return
	}

	resp := NotifyResponse{}
	for _, member := range roster {
		event := req.NotificationEvent
		event.TargetIdentity = member.IdentityID
		event.TargetRoom = ""
		event.IdempotencyKey = fmt.Sprintf("%s:%s", req.IdempotencyKey, member.IdentityID)
		switch err := s.dispatcher.Dispatch(&event); {
		case err == nil:
			resp.Dispatched++
		case errors.Is(err, notify.ErrDuplicate):
			resp.Duplicates++
		default:
			log.Printf("notification dispatch failed: class=%s to=%s err=%v",
				req.ClassID, member.IdentityID, err)
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrDuplicate):
		s.sendError(w, "Duplicate notification", http.StatusConflict)
	case errors.Is(err, notify.ErrAmbiguousTarget), errors.Is(err, types.ErrInvalidPayload):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.sendError(w, "Failed to dispatch notification", http.StatusInternalServerError)
	}
}

// handleMeetings serves GET /api/meetings/{id}/participants.
func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/meetings/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "participants" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	meetingID := parts[0]

	_ = json.NewEncoder(w).Encode(types.ParticipantsPayload{
		MeetingID:    meetingID,
		Participants: s.meetings.Participants(meetingID),
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
		Rooms:       s.rooms.Stats(),
		Meetings:    s.meetings.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
