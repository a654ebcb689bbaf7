// Package api provides the HTTP API server for Dayflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/notifications"
	"github.com/dayflow/dayflow/internal/scheduler"
	"github.com/dayflow/dayflow/internal/scheduling"
	"github.com/dayflow/dayflow/internal/storage"
	dsync "github.com/dayflow/dayflow/internal/sync"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	db    *storage.DB
	wsHub *WebSocketHub

	// Stores
	eventStore      *storage.EventStore
	meetingStore    *storage.MeetingStore
	connectionStore *storage.ConnectionStore

	// Services
	engine              *scheduling.Engine
	reconciler          *dsync.Reconciler
	notificationService *notifications.Service
	taskScheduler       *scheduler.Scheduler
	oauth               *dsync.GoogleOAuth
	tokens              *dsync.TokenStore

	log *logging.Logger
}

// Config for the server
type Config struct {
	Port                int
	DB                  *storage.DB
	Engine              *scheduling.Engine
	Reconciler          *dsync.Reconciler
	NotificationService *notifications.Service
	TaskScheduler       *scheduler.Scheduler
	OAuth               *dsync.GoogleOAuth
	Tokens              *dsync.TokenStore
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		db:                  cfg.DB,
		eventStore:          storage.NewEventStore(cfg.DB),
		meetingStore:        storage.NewMeetingStore(cfg.DB),
		connectionStore:     storage.NewConnectionStore(cfg.DB),
		engine:              cfg.Engine,
		reconciler:          cfg.Reconciler,
		notificationService: cfg.NotificationService,
		taskScheduler:       cfg.TaskScheduler,
		oauth:               cfg.OAuth,
		tokens:              cfg.Tokens,
		wsHub:               NewWebSocketHub(),
		log:                 logging.WithComponent("api"),
	}

	s.setupRouter()

	// New notifications flow straight out over the websocket.
	if s.notificationService != nil {
		s.notificationService.Subscribe(newHubSubscriber(s.wsHub))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Meetings
		r.Post("/meetings", s.handleCreateMeeting)
		r.Get("/meetings", s.handleListMeetings)
		r.Get("/meetings/{meetingID}", s.handleGetMeeting)
		r.Put("/meetings/{meetingID}", s.handleUpdateMeeting)
		r.Post("/meetings/{meetingID}/confirm", s.handleConfirmMeeting)
		r.Post("/meetings/{meetingID}/cancel", s.handleCancelMeeting)

		// Events
		r.Get("/events", s.handleListEvents)
		r.Post("/events", s.handleCreateEvent)
		r.Get("/events/{eventID}", s.handleGetEvent)
		r.Put("/events/{eventID}", s.handleUpdateEvent)
		r.Delete("/events/{eventID}", s.handleDeleteEvent)

		// Calendar connections
		r.Get("/connections", s.handleListConnections)
		r.Post("/connections", s.handleCreateConnection)
		r.Delete("/connections/{connectionID}", s.handleDisconnect)
		r.Post("/connections/{connectionID}/sync", s.handleSyncConnection)
		r.Post("/sync", s.handleSyncAll)

		// OAuth
		r.Get("/oauth/google/url", s.handleGoogleOAuthURL)
		r.Get("/oauth/google/callback", s.handleGoogleOAuthCallback)

		// Notifications
		if s.notificationService != nil {
			notifAPI := NewNotificationsAPI(s.notificationService)
			notifAPI.RegisterRoutes(r)
		}

		// Health and stats
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()

	s.log.WithField("addr", s.httpServer.Addr).Info("API server starting")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.wsHub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// userID identifies the calling user. Dayflow runs as a personal service;
// absent an explicit header every request maps to the default user.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain error kinds onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case core.IsConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Health and stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Conn().PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"websocket_clients": s.wsHub.ClientCount(),
	}
	if s.taskScheduler != nil {
		stats["scheduler"] = s.taskScheduler.GetStats()
	}
	if s.notificationService != nil {
		if n, err := s.notificationService.Stats(r.Context()); err == nil {
			stats["notifications"] = n
		}
	}
	respondJSON(w, http.StatusOK, stats)
}
