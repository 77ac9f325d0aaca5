package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classhub/internal/api"
	"classhub/internal/auth"
	"classhub/internal/config"
	"classhub/internal/hub"
	"classhub/internal/meeting"
	"classhub/internal/metrics"
	"classhub/internal/notify"
	"classhub/internal/registry"
	"classhub/internal/rooms"
	"classhub/internal/router"
	"classhub/internal/signal"
	"classhub/internal/store"
	"classhub/internal/ws"
	pkgdatabase "classhub/pkg/database"
)

// Application wires the components together and owns their lifecycle.
// Initialization order follows the dependency chain:
// Store → Rooms/Registry/Meetings → Router → Hub → API/WS → HTTP.
type Application struct {
	config      *config.Config
	store       *store.Store
	registry    *registry.Registry
	rooms       *rooms.Manager
	meetings    *meeting.Store
	eventRouter *router.Router
	eventHub    *hub.Hub
	apiServer   *api.Server
	httpServer  *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	messageStore, err := store.NewStore(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	m := metrics.New()
	reg := registry.NewRegistry()
	roomManager := rooms.NewManager()
	meetings := meeting.NewStore()
	relay := signal.NewRelay(roomManager, m)
	dispatcher := notify.NewDispatcher(roomManager, m)

	eventRouter := router.NewRouter(reg, roomManager, meetings, relay, messageStore, m, cfg.Chat.HistoryLimit)
	eventHub := hub.NewHub(eventRouter)

	apiServer := api.NewServer(messageStore, meetings, roomManager, reg, dispatcher, m.Handler())

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	wsHandler := ws.NewHandler(reg, eventHub, verifier, m, ws.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       messageStore,
		registry:    reg,
		rooms:       roomManager,
		meetings:    meetings,
		eventRouter: eventRouter,
		eventHub:    eventHub,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start brings the hub up before the HTTP listener so the first websocket
// event always has a running consumer.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting classhub on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classhub started")
		return nil
	case <-ctx.Done():
		_ = app.eventHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Hub → Store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down classhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.eventHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("classhub shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
